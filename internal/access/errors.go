package access

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use the Is*Err helpers or errors.Is to classify an error
// returned from this package.
var (
	// ErrRuleConfiguration marks a rule set that cannot be loaded: a rule that
	// does not parse, binds other than exactly one alias, uses parameters or
	// references unknown properties. The rule set must be fixed by an operator.
	ErrRuleConfiguration = errors.New("access: invalid rule configuration")

	// ErrNotEvaluatable is returned when a path or expression cannot be
	// resolved against the mapping model or evaluated without a query.
	ErrNotEvaluatable = errors.New("access: expression not evaluatable")

	// ErrSecurityViolation is the outcome of a denied CheckAccess call. It is
	// an expected result, not a defect.
	ErrSecurityViolation = errors.New("access: security violation")

	// ErrUnknownEntity is returned when an entity name is not in the mapping.
	ErrUnknownEntity = errors.New("access: unknown entity")

	// ErrUnsupportedStatement is returned when asked to filter a statement
	// other than SELECT, UPDATE or DELETE.
	ErrUnsupportedStatement = errors.New("access: unsupported statement")
)

// RuleConfigurationError describes why a single rule was rejected.
type RuleConfigurationError struct {
	Rule string // rule name or source text
	Msg  string
	Err  error // underlying parse or resolution error, if any
}

func (e *RuleConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("access rule %q: %s: %v", e.Rule, e.Msg, e.Err)
	}
	return fmt.Sprintf("access rule %q: %s", e.Rule, e.Msg)
}

func (e *RuleConfigurationError) Unwrap() error { return e.Err }

func (e *RuleConfigurationError) Is(target error) bool { return target == ErrRuleConfiguration }

// NotEvaluatableError names the expression that could not be resolved.
type NotEvaluatableError struct {
	Expr   string
	Reason string
}

func (e *NotEvaluatableError) Error() string {
	return fmt.Sprintf("cannot evaluate %s: %s", e.Expr, e.Reason)
}

func (e *NotEvaluatableError) Is(target error) bool { return target == ErrNotEvaluatable }

func notEvaluatable(expr, format string, args ...any) error {
	return &NotEvaluatableError{Expr: expr, Reason: fmt.Sprintf(format, args...)}
}

// IsRuleConfigurationErr returns true if err is or wraps ErrRuleConfiguration.
func IsRuleConfigurationErr(err error) bool {
	return errors.Is(err, ErrRuleConfiguration)
}

// IsNotEvaluatableErr returns true if err is or wraps ErrNotEvaluatable.
func IsNotEvaluatableErr(err error) bool {
	return errors.Is(err, ErrNotEvaluatable)
}

// IsSecurityViolationErr returns true if err is or wraps ErrSecurityViolation.
func IsSecurityViolationErr(err error) bool {
	return errors.Is(err, ErrSecurityViolation)
}

// IsUnknownEntityErr returns true if err is or wraps ErrUnknownEntity.
func IsUnknownEntityErr(err error) bool {
	return errors.Is(err, ErrUnknownEntity)
}
