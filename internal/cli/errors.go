// Package cli provides exit codes and error classification for the accessql
// CLI.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/atlekbai/accessql/internal/access"
	"github.com/atlekbai/accessql/internal/app"
	"github.com/atlekbai/accessql/internal/oql"
)

// Exit codes.
const (
	ExitSuccess   = 0
	ExitGeneral   = 1
	ExitConfig    = 2
	ExitRuleParse = 3
	ExitDBConnect = 4
	// ExitDenied is returned by check when access is denied.
	ExitDenied = 5
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ConfigError creates an ExitError with ExitConfig code.
func ConfigError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// RuleParseError creates an ExitError with ExitRuleParse code.
func RuleParseError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitRuleParse, Message: msg, Err: err}
}

// DBConnectError creates an ExitError with ExitDBConnect code.
func DBConnectError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitDBConnect, Message: msg, Err: err}
}

// GeneralError creates an ExitError with ExitGeneral code.
func GeneralError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitGeneral, Message: msg, Err: err}
}

// Classify wraps err in an ExitError whose code follows the error's cause.
// An ExitError is returned unchanged.
func Classify(msg string, err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	var pe *oql.ParseError
	switch {
	case errors.Is(err, app.ErrDatabase):
		return DBConnectError(msg, err)
	case errors.As(err, &pe),
		access.IsRuleConfigurationErr(err),
		errors.Is(err, app.ErrMapping):
		return RuleParseError(msg, err)
	}
	return GeneralError(msg, err)
}

// Report prints err to w and returns the process exit code.
func Report(w io.Writer, err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(w, "Error:", exitErr.Error())
		return exitErr.Code
	}
	fmt.Fprintln(w, "Error:", err)
	return ExitGeneral
}
