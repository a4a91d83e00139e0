package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies an error for transport mapping (HTTP status, logging).
type ErrorCode string

const (
	ErrCodeInternal    ErrorCode = "internal"
	ErrCodeNotFound    ErrorCode = "not_found"
	ErrCodeConflict    ErrorCode = "conflict"
	ErrCodeInvalid     ErrorCode = "invalid"
	ErrCodeUnavailable ErrorCode = "unavailable"
)

// Error is a coded error carrying an optional wrapped cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with no underlying cause.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
// Wrapping nil returns nil so repository call sites can wrap unconditionally.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound builds the canonical not-found error for a resource instance.
func NotFound(resource string, id any) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %v not found", resource, id),
	}
}

// CodeOf extracts the code from an error chain, defaulting to internal.
func CodeOf(err error) ErrorCode {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether err carries ErrCodeNotFound anywhere in its chain.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}
