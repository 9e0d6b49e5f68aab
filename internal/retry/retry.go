// ABOUTME: Bounded retry policy with pluggable backoff functions
// ABOUTME: Used by transactional store commits and seed-account bootstrap

// Package retry runs an operation until it succeeds, the attempt budget is
// spent, the error is not retryable, or the context is done.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ErrExhausted is wrapped into the last error when all attempts failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Backoff returns the delay before the given retry. attempt starts at 1 for
// the first retry.
type Backoff func(attempt int) time.Duration

// Policy is a first-class retry policy.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Retryable decides whether an error should be retried. Nil retries everything.
	Retryable func(error) bool
}

// Linear waits base*attempt between tries: 1s, 2s, 3s for base=1s.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Exponential doubles base per attempt up to ceiling, adding up to jitter of noise.
func Exponential(base, ceiling, jitter time.Duration) Backoff {
	return func(attempt int) time.Duration {
		delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
		if delay > ceiling || delay <= 0 {
			delay = ceiling
		}
		if jitter > 0 {
			delay += time.Duration(rand.Int64N(int64(jitter)))
		}
		return delay
	}
}

// None disables waiting between attempts.
func None(int) time.Duration { return 0 }

// Do calls fn until it returns nil or the policy gives up. The attempt
// number passed to fn starts at 1. When attempts are exhausted the returned
// error wraps both ErrExhausted and the last failure.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = None
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if delay := backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return errors.Join(ErrExhausted, lastErr)
}
