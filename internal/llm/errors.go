package llm

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError reports that a backend rejected a call with HTTP 429.
// Retrying after a backoff is expected to succeed.
type RateLimitError struct {
	RetryAfter time.Duration // zero when the backend did not say
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// AuthError reports a credential or request rejection that retrying cannot
// fix. The router aborts on these instead of rotating.
type AuthError struct {
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
}

// ServerError reports a 5xx from a backend; the call may succeed elsewhere.
type ServerError struct {
	Message    string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.StatusCode, e.Message)
}

// TransportError reports a failure to complete the HTTP exchange, such as
// a timeout or connection reset.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRateLimitError reports whether err is a backend rate-limit rejection.
func IsRateLimitError(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsAuthError reports whether err is a non-retryable credential failure.
func IsAuthError(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth)
}
