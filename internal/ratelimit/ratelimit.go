// Package ratelimit throttles run submissions per client.
//
// The server ships an in-memory token bucket (MemoryLimiter). A shared
// implementation can replace it behind the Limiter interface when several
// instances serve the same API.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is how long until the next token is available. Zero when
	// the request was allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes one unit for key. An error means the limiter itself
	// failed; callers let the request through.
	Allow(ctx context.Context, key string) (Decision, error)

	// Close releases background resources.
	Close() error
}
