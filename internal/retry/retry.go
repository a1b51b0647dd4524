// Package retry provides a small fixed-backoff retry policy for the
// repository transport operations (clone, pull, push).
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy bounds how an operation is retried: up to MaxAttempts tries with a
// fixed Backoff wait between them. The zero value retries nothing; use
// Default() for the standard transport policy.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Default returns the policy used for git transport operations.
func Default() Policy {
	return Policy{MaxAttempts: 3, Backoff: 2 * time.Second}
}

// Do runs fn until it succeeds or the policy is exhausted. Each failed
// attempt is logged. Cancellation is honored between attempts, never
// mid-operation, so an in-flight transport call always completes.
// After exhaustion the last error is returned; the caller decides whether
// that is fatal or just means skipping this tick.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%s: retry policy allows no attempts", op)
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		logger.Warn("operation failed",
			"op", op,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"err", err)

		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: canceled after attempt %d: %w", op, attempt, ctx.Err())
		case <-time.After(p.Backoff):
		}
	}
	return fmt.Errorf("%s: exhausted %d attempts: %w", op, p.MaxAttempts, err)
}
