// Package errors provides coded domain errors for the sync server.
//
// Usage:
//
//	// In services - return typed errors
//	if !change.Kind().Valid() {
//	    return errors.MalformedRecordf("unknown kind %q", kind)
//	}
//
//	// In handlers - check with errors.Is
//	if errors.Is(err, errors.ErrMalformedRecord) {
//	    ...
//	}
//
//	// Or switch on the Code
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeStoreIO:
//	        ...
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	// CodeMalformedRecord means an incoming change could not be interpreted.
	// The whole batch it belongs to is rejected.
	CodeMalformedRecord Code = "MALFORMED_RECORD"
	// CodeStoreIO means the persistence layer failed. Never retried.
	CodeStoreIO      Code = "STORE_IO"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeInternal     Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeMalformedRecord:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// Sentinel errors for use with errors.Is().
var (
	ErrMalformedRecord = &Error{Code: CodeMalformedRecord, Message: "malformed record"}
	ErrStoreIO         = &Error{Code: CodeStoreIO, Message: "store failure"}
)

// MalformedRecord creates a malformed record error.
func MalformedRecord(msg string) *Error {
	return &Error{Code: CodeMalformedRecord, Message: msg}
}

// MalformedRecordf creates a malformed record error with formatted message.
func MalformedRecordf(format string, args ...any) *Error {
	return &Error{Code: CodeMalformedRecord, Message: fmt.Sprintf(format, args...)}
}

// MalformedRecordWithDetails creates a malformed record error with details.
func MalformedRecordWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeMalformedRecord, Message: msg, Details: details}
}

// StoreIOf wraps a persistence failure with formatted message.
func StoreIOf(err error, format string, args ...any) *Error {
	return &Error{Code: CodeStoreIO, Message: fmt.Sprintf(format, args...), cause: err}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// RateLimited creates a rate limit error.
func RateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// CodeOf returns the Code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
