package errors

import (
	"fmt"
	"io"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := New(TypeUpstream, "gone", 404)
	want := "upstream error (code 404): gone"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	err = New(TypeTransport, "connection refused", 0)
	want = "transport error: connection refused"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := Wrap(TypeTransport, "read body", cause)

	if err.Unwrap() != cause {
		t.Errorf("Expected Unwrap to return the cause, got %v", err.Unwrap())
	}
}

func TestTypeOf(t *testing.T) {
	err := New(TypeRateLimited, "throttled", 429)

	if got := TypeOf(err); got != TypeRateLimited {
		t.Errorf("Expected rate_limited, got %s", got)
	}

	// Classification survives fmt wrapping.
	wrapped := fmt.Errorf("target failed: %w", err)
	if got := TypeOf(wrapped); got != TypeRateLimited {
		t.Errorf("Expected rate_limited through wrapping, got %s", got)
	}

	if got := TypeOf(io.EOF); got != TypeUnknown {
		t.Errorf("Expected unknown for foreign errors, got %s", got)
	}
	if got := TypeOf(nil); got != TypeUnknown {
		t.Errorf("Expected unknown for nil, got %s", got)
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(TypeCancelled, "cancelled", 0))

	if !Is(err, TypeCancelled) {
		t.Error("Expected Is to match the wrapped classification")
	}
	if Is(err, TypeUpstream) {
		t.Error("Expected Is to reject a different classification")
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []Type{TypeRateLimited, TypeTransport, TypeProxyExhausted}
	for _, typ := range retryable {
		if !IsRetryable(typ) {
			t.Errorf("Expected %s to be retryable", typ)
		}
	}

	fatal := []Type{TypeUpstream, TypeCancelled, TypeUnknown}
	for _, typ := range fatal {
		if IsRetryable(typ) {
			t.Errorf("Expected %s to be fatal", typ)
		}
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	if !IsRetryableStatusCode(0) {
		t.Error("Expected status 0 (no response) to be retryable")
	}
	if !IsRetryableStatusCode(429) {
		t.Error("Expected status 429 to be retryable")
	}
	for _, code := range []int{400, 403, 404, 500, 503} {
		if IsRetryableStatusCode(code) {
			t.Errorf("Expected status %d to be fatal", code)
		}
	}
}
