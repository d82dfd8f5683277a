package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atlekbai/accessql/internal/access"
	"github.com/atlekbai/accessql/internal/oql"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Error codes reported in ErrorResponse.Code.
const (
	CodeInvalidBody          = "INVALID_BODY"
	CodeInvalidAccess        = "INVALID_ACCESS"
	CodeParse                = "PARSE_ERROR"
	CodeUnknownEntity        = "UNKNOWN_ENTITY"
	CodeUnsupportedStatement = "UNSUPPORTED_STATEMENT"
	CodeNotEvaluatable       = "NOT_EVALUATABLE"
	CodeRuleConfiguration    = "RULE_CONFIGURATION"
	CodeAccessDenied         = "ACCESS_DENIED"
	CodeInternal             = "INTERNAL"
	CodeNotReady             = "NOT_READY"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// accessStatus classifies an error returned by the access engine.
func accessStatus(err error) (int, string, string) {
	var perr *oql.ParseError
	switch {
	case errors.As(err, &perr):
		return http.StatusBadRequest, CodeParse, "Malformed query"
	case errors.Is(err, access.ErrUnsupportedStatement):
		return http.StatusBadRequest, CodeUnsupportedStatement, "Statement cannot be filtered"
	case access.IsUnknownEntityErr(err):
		return http.StatusNotFound, CodeUnknownEntity, "Unknown entity"
	case access.IsNotEvaluatableErr(err):
		return http.StatusUnprocessableEntity, CodeNotEvaluatable, "Expression cannot be resolved"
	case access.IsSecurityViolationErr(err):
		return http.StatusForbidden, CodeAccessDenied, "Access denied"
	case access.IsRuleConfigurationErr(err):
		return http.StatusInternalServerError, CodeRuleConfiguration, "Invalid rule configuration"
	default:
		return http.StatusInternalServerError, CodeInternal, "Internal error"
	}
}

func writeAccessError(w http.ResponseWriter, err error) {
	status, code, message := accessStatus(err)
	details := err.Error()
	if code == CodeInternal {
		details = ""
	}
	writeError(w, status, code, message, details)
}
