package client

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/muurk/dictserver/internal/status"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the server refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeHTTP indicates a non-success status without a result body
	ErrTypeHTTP
	// ErrTypeAPI indicates the server answered with a result code
	ErrTypeAPI
	// ErrTypeParse indicates a malformed response
	ErrTypeParse
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeAPI:
		return "API Error"
	case ErrTypeParse:
		return "Parse Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is returned by every Client method.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int         // HTTP status, if a response arrived
	Result     status.Code // server result code for ErrTypeAPI
	Err        error
	Retryable  bool
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError maps a transport error to an Error.
func ClassifyNetworkError(err error) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &Error{Type: ErrTypeTimeout, Message: "request timed out", Err: err, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Type: ErrTypeDNS, Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name), Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{Type: ErrTypeConnectionRefused, Message: "server refused connection", Err: err, Retryable: true}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{Type: ErrTypeNetwork, Message: "host unreachable", Err: err, Retryable: true}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{Type: ErrTypeNetwork, Message: "network unreachable", Err: err, Retryable: true}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err)
	}

	return &Error{Type: ErrTypeNetwork, Message: "network error occurred", Err: err, Retryable: true}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error) *Error {
	classified := ClassifyNetworkError(err)
	if classified == nil {
		return &Error{Type: ErrTypeNetwork, Message: message, Retryable: true}
	}
	classified.Message = message + ": " + classified.Message
	return classified
}

// NewHTTPError creates an HTTP-level error. Server errors are retryable.
func NewHTTPError(statusCode int, message string) *Error {
	return &Error{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500,
	}
}

// NewAPIError creates an error from a result body. Busy and server-side
// failures are retryable.
func NewAPIError(statusCode int, result status.Code, message string) *Error {
	return &Error{
		Type:       ErrTypeAPI,
		Message:    message,
		StatusCode: statusCode,
		Result:     result,
		Retryable:  result == status.Busy || result == status.IO || statusCode >= 500,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *Error {
	return &Error{Type: ErrTypeParse, Message: message, Err: err}
}

func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsNetworkError reports a transport failure of any kind.
func IsNetworkError(err error) bool {
	if e, ok := asError(err); ok {
		return e.Type == ErrTypeNetwork || e.Type == ErrTypeTimeout ||
			e.Type == ErrTypeConnectionRefused || e.Type == ErrTypeDNS
	}
	return false
}

// IsAPIError checks if an error carries a server result code
func IsAPIError(err error) bool {
	e, ok := asError(err)
	return ok && e.Type == ErrTypeAPI
}

// ResultOf returns the server result code, status.OK for nil and
// status.Unexpected when the server sent none.
func ResultOf(err error) status.Code {
	if err == nil {
		return status.OK
	}
	if e, ok := asError(err); ok && e.Type == ErrTypeAPI {
		return e.Result
	}
	return status.Unexpected
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	if e, ok := asError(err); ok {
		return e.Retryable
	}
	return false
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	e, ok := asError(err)
	if !ok {
		return err.Error()
	}

	switch e.Type {
	case ErrTypeTimeout:
		return "Server not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Server refused connection - is dictserver running?"
	case ErrTypeDNS:
		return "Cannot resolve server hostname"
	case ErrTypeNetwork:
		return "Network error - check connection"
	case ErrTypeHTTP:
		return fmt.Sprintf("Server error (HTTP %d)", e.StatusCode)
	case ErrTypeAPI:
		return fmt.Sprintf("%s (%s)", e.Message, e.Result)
	case ErrTypeParse:
		return "Failed to parse server response"
	default:
		return e.Message
	}
}

// GetTroubleshootingHint returns advice for an error, or "" if there is none.
func GetTroubleshootingHint(err error) string {
	e, ok := asError(err)
	if !ok {
		return ""
	}

	switch e.Type {
	case ErrTypeConnectionRefused, ErrTypeTimeout:
		return strings.Join([]string{
			"Troubleshooting:",
			"  • Check that dictserver is running and listening on that port",
			"  • Run `dictctl scan` to find servers on the local network",
		}, "\n")
	case ErrTypeAPI:
		switch e.Result {
		case status.Access:
			return strings.Join([]string{
				"The server refused the operation.",
				"  • Set [dictionary.webapi] enabled = true in the server config",
				"  • Check the per-operation flags (add_key, remove_dictionary, ...)",
			}, "\n")
		case status.NotFound:
			return "Run `dictctl list` to see the dictionaries the server knows."
		}
	}
	return ""
}
