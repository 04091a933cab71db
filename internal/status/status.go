// Package status defines the result codes carried in API responses and the
// typed error used across the server to classify failures.
package status

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a numeric result code. Its values appear verbatim in the "result"
// field of JSON responses, so they must stay stable.
type Code int

const (
	OK          Code = 0
	NotFound    Code = 2
	IO          Code = 5
	Access      Code = 7
	Busy        Code = 9
	Invalid     Code = 13
	NoSpace     Code = 16
	Unsupported Code = 20
	InvalidArg  Code = 21
	Duplicate   Code = 27
	Unexpected  Code = 28
	EOF         Code = 31
	Pipe        Code = 41
)

// String returns a human-readable name for the code
func (c Code) String() string {
	switch c {
	case OK:
		return "Success"
	case NotFound:
		return "No Such Entity"
	case IO:
		return "IO Issue"
	case Access:
		return "Access Denied"
	case Busy:
		return "Busy"
	case Invalid:
		return "Invalid"
	case NoSpace:
		return "No Space"
	case Unsupported:
		return "Unsupported"
	case InvalidArg:
		return "Invalid Argument"
	case Duplicate:
		return "Duplicate"
	case Unexpected:
		return "Unexpected Error"
	case EOF:
		return "End of File"
	case Pipe:
		return "Broken Pipe"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is a classified failure.
type Error struct {
	Code    Code   // Result code reported to clients
	Message string // Human-readable message, safe to return to clients
	Err     error  // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error with the given code around err.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewInvalidArg creates an invalid-argument error
func NewInvalidArg(format string, args ...any) *Error {
	return New(InvalidArg, format, args...)
}

// NewNotFound creates a not-found error
func NewNotFound(format string, args ...any) *Error {
	return New(NotFound, format, args...)
}

// NewDuplicate creates a duplicate error
func NewDuplicate(format string, args ...any) *Error {
	return New(Duplicate, format, args...)
}

// NewAccess creates an access-denied error
func NewAccess(format string, args ...any) *Error {
	return New(Access, format, args...)
}

// NewBusy creates a busy error
func NewBusy(format string, args ...any) *Error {
	return New(Busy, format, args...)
}

// NewUnsupported creates an unsupported error
func NewUnsupported(format string, args ...any) *Error {
	return New(Unsupported, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain. nil maps to OK
// and unclassified errors to Unexpected.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return Unexpected
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	if err == nil {
		return ""
	}
	return "Unexpected Error"
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool {
	return Is(err, NotFound)
}

// IsBusy checks if an error is a busy error
func IsBusy(err error) bool {
	return Is(err, Busy)
}

// IsDuplicate checks if an error is a duplicate error
func IsDuplicate(err error) bool {
	return Is(err, Duplicate)
}

// IsEndOfStream reports whether err means the peer went away.
func IsEndOfStream(err error) bool {
	c := CodeOf(err)
	return err != nil && (c == EOF || c == Pipe)
}

// HTTPStatus maps a result code to the HTTP status used for error responses.
func HTTPStatus(code Code) int {
	switch code {
	case OK:
		return http.StatusOK
	case InvalidArg, Invalid, Duplicate, Busy:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	case Access:
		return http.StatusForbidden
	case Unsupported:
		return http.StatusBadRequest
	case NoSpace:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
