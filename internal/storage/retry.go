package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// retryPolicy re-runs a transaction body when Postgres aborts it for a
// reason that a fresh attempt can clear.
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
}

// finalizeRetry covers FinalizeRun: findings inserts and the status update
// commit together, so a deadlock against a concurrent health upsert is
// retried as a whole.
var finalizeRetry = retryPolicy{attempts: 4, baseDelay: 20 * time.Millisecond}

// transient reports whether err is worth another attempt. Context errors
// never are.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err)
}

// do runs fn until it succeeds, fails permanently, or attempts run out.
// Delays double from baseDelay with up to 100% jitter.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	delay := p.baseDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !transient(err) || attempt >= p.attempts {
			return err
		}
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter
		t := time.NewTimer(delay + jitter)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}
