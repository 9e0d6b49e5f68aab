// ABOUTME: Tests for the retry policy
// ABOUTME: Covers attempt budgets, non-retryable errors, backoff shapes, and cancellation

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: None}
	calls := 0

	err := p.Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_Exhausted(t *testing.T) {
	p := Policy{MaxAttempts: 2}
	last := errors.New("still failing")

	err := p.Do(context.Background(), func(context.Context, int) error { return last })

	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, last)
}

func TestDo_NonRetryableStopsEarly(t *testing.T) {
	permanent := errors.New("permanent")
	p := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}
	calls := 0

	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return permanent
	})

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, Backoff: Linear(time.Hour)}

	err := p.Do(ctx, func(context.Context, int) error {
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Policy{}.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errors.New("x")
	})
	assert.Equal(t, 1, calls)
}

func TestLinear(t *testing.T) {
	b := Linear(time.Second)
	assert.Equal(t, time.Second, b(1))
	assert.Equal(t, 2*time.Second, b(2))
	assert.Equal(t, 3*time.Second, b(3))
}

func TestExponential(t *testing.T) {
	b := Exponential(10*time.Millisecond, 50*time.Millisecond, 0)
	assert.Equal(t, 10*time.Millisecond, b(1))
	assert.Equal(t, 20*time.Millisecond, b(2))
	assert.Equal(t, 40*time.Millisecond, b(3))
	assert.Equal(t, 50*time.Millisecond, b(4))

	jittered := Exponential(time.Millisecond, time.Millisecond, 5*time.Millisecond)
	for i := 0; i < 20; i++ {
		d := jittered(1)
		assert.GreaterOrEqual(t, d, time.Millisecond)
		assert.Less(t, d, 6*time.Millisecond)
	}
}
