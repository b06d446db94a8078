// Package errors provides coded application errors. Every error crossing a
// service boundary carries one of the codes below so callers (and the HTTP
// layer) can branch on the kind of failure without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies the kind of failure.
type Code string

const (
	ErrCodeNotFound          Code = "NOT_FOUND"
	ErrCodeUnauthorized      Code = "UNAUTHORIZED"
	ErrCodeForbidden         Code = "FORBIDDEN"
	ErrCodeInvalidTransition Code = "INVALID_TRANSITION"
	ErrCodeInvalidAssignment Code = "INVALID_ASSIGNMENT"
	ErrCodeUnresolvedRouting Code = "UNRESOLVED_ROUTING"
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeConflict          Code = "CONFLICT"
	ErrCodeInternal          Code = "INTERNAL"
)

// Error is a coded error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports that a resource does not exist.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resource, id)
}

// InvalidInput reports a malformed or out-of-range request field.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeInvalidInput, "%s: %s", field, message)
}

// CodeOf extracts the code from an error chain. Errors without a code are
// reported as internal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
