package types

import (
	"errors"
	"fmt"
)

// Stable error codes surfaced to external callers.
const (
	CodeToolNotFound         = "ToolNotFoundError"
	CodeInvalidArgument      = "InvalidArgumentError"
	CodeTimeout              = "TimeoutError"
	CodeTransientUnavailable = "TransientUnavailableError"
	CodePermanent            = "PermanentError"
	CodeBinding              = "BindingError"
	CodeDuplicateName        = "DuplicateNameError"
)

// Error is the structured error carried on every failed ToolResult. Code is
// one of the Code* constants and is stable across releases; Message is for
// humans; Details is optional context (e.g. offending argument keys).
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a structured error with the given code.
func NewError(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches detail context and returns the error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Transient reports whether the error should be retried by the gateway.
// Only timeouts and transient unavailability qualify; everything else is
// permanent by policy.
func (e *Error) Transient() bool {
	return e.Code == CodeTimeout || e.Code == CodeTransientUnavailable
}

// AsError extracts a *Error from err, wrapping unknown errors as permanent.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Code: CodePermanent, Message: err.Error()}
}
