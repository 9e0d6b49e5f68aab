// ABOUTME: Shared transaction runner re-running functions on commit conflicts
// ABOUTME: Converts exhausted retries into the taxonomy ConflictError

package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/retry"
)

// DefaultTransactPolicy re-runs a conflicting transaction up to 25 times
// with short jittered exponential waits.
func DefaultTransactPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 25,
		Backoff:     retry.Exponential(2*time.Millisecond, 100*time.Millisecond, 5*time.Millisecond),
	}
}

// runTransact calls attempt until it commits, fails with a non-conflict
// error, or the policy is exhausted.
func runTransact(ctx context.Context, policy retry.Policy, logger *slog.Logger, attempt func(ctx context.Context) error) error {
	policy.Retryable = func(err error) bool { return errors.Is(err, errConflict) }

	err := policy.Do(ctx, func(ctx context.Context, n int) error {
		err := attempt(ctx)
		if errors.Is(err, errConflict) && logger != nil {
			logger.Debug("transaction conflict, retrying", "attempt", n)
		}
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errConflict):
		return apperr.Conflict("transaction retries exhausted")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Network(err)
	}
	return err
}

// publicErr converts a stray conflict outside Transact into the taxonomy.
func publicErr(err error) error {
	if errors.Is(err, errConflict) {
		return apperr.Conflict("store busy")
	}
	return err
}
