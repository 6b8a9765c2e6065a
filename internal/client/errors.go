package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx response from the Kensa API.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	// RetryAfter is the server's Retry-After hint in seconds, when present.
	RetryAfter int
}

func (e *Error) Error() string {
	return fmt.Sprintf("kensa: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsInvalidInput reports whether err is a 400.
func IsInvalidInput(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

// IsRateLimited reports whether err is a 429.
func IsRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

func hasStatus(err error, code int) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == code
	}
	return false
}
