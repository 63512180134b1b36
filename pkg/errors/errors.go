package errors

import (
	"errors"
	"fmt"
)

// Type classifies a terminal request outcome. Callers use it to decide
// whether to retry, skip, or abort.
type Type string

const (
	// TypeRateLimited marks a remote 429 response. Retryable.
	TypeRateLimited Type = "rate_limited"
	// TypeTransport marks a timeout or connection-level failure. Retryable.
	TypeTransport Type = "transport"
	// TypeProxyExhausted marks the absence of any working proxy when one is
	// required. Retryable a bounded number of times.
	TypeProxyExhausted Type = "proxy_exhausted"
	// TypeUpstream marks a non-429 4xx/5xx response. Not retried: replaying a
	// malformed request only wastes a slot.
	TypeUpstream Type = "upstream"
	// TypeCancelled marks a caller-driven cancellation or deadline. Fatal.
	TypeCancelled Type = "cancelled"
	// TypeUnknown marks anything the dispatcher could not classify.
	TypeUnknown Type = "unknown"
)

// Error is a classified request error carrying its taxonomy kind and, for
// HTTP outcomes, the status code.
type Error struct {
	Type    Type
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(t Type, message string, code int) *Error {
	return &Error{Type: t, Message: message, Code: code}
}

// Wrap creates a classified error around an underlying cause
func Wrap(t Type, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// IsRetryable reports whether an error type should be retried
func IsRetryable(t Type) bool {
	switch t {
	case TypeRateLimited, TypeTransport, TypeProxyExhausted:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode reports whether an HTTP status code indicates a
// retryable failure
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // transport error, no response
		return true
	case 429:
		return true
	default:
		return false
	}
}

// TypeOf extracts the classification from an error, returning TypeUnknown for
// errors that did not originate in the dispatcher.
func TypeOf(err error) Type {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Type
	}
	return TypeUnknown
}

// Is reports whether err is a classified error of the given type
func Is(err error, t Type) bool {
	return TypeOf(err) == t
}
