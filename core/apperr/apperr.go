// Package apperr defines the stable error taxonomy surfaced across
// transports: every externally visible failure carries one of these codes
// so adapters can map it to a status without inspecting error strings.
package apperr

import "fmt"

// Code identifies the class of failure.
type Code string

const (
	// Validation covers malformed requests: bad field type, missing
	// required field, or a value outside its documented constraints.
	Validation Code = "VALIDATION"
	// RuleEval covers a predicate raising at evaluation time, e.g. a
	// runtime regex failure. Callers fail closed on this code.
	RuleEval Code = "RULE_EVAL"
	// AdvisorUnavailable covers timeout, open breaker, or exhausted
	// retries against the AI advisor.
	AdvisorUnavailable Code = "ADVISOR_UNAVAILABLE"
	// Config covers an invalid rule file, at startup or reload.
	Config Code = "CONFIG"
	// Internal covers anything unexpected; the reason is redacted before
	// it reaches a caller.
	Internal Code = "INTERNAL"
)

// Error is the typed error carried across package boundaries. Message is
// for logs; UserMessage is the short, stable phrase safe to return to a
// caller.
type Error struct {
	Code        Code
	Message     string
	UserMessage string
	Field       string
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with message used for both the log line and the
// user-visible phrase.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, UserMessage: message}
}

// Wrap builds an Error around cause, keeping message as the user-visible
// phrase and the cause's text in the log line only.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, UserMessage: message, cause: cause}
}

// WithField sets the offending field name on a validation error and returns it
// for chaining.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// Validationf builds a VALIDATION error for field with a formatted message.
func Validationf(field, format string, args ...any) *Error {
	return New(Validation, fmt.Sprintf(format, args...)).WithField(field)
}

// As reports whether err is an *Error and returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
