// ABOUTME: Tests for mount scopes
// ABOUTME: Results after unmount are dropped while the operation still completes

package mount

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_DeliversWhileMounted(t *testing.T) {
	scope := NewScope("dashboard", nil)
	got := make(chan int, 1)

	Run(scope, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	}, func(v int, err error) {
		require.NoError(t, err)
		got <- v
	})

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("result not delivered")
	}
}

func TestRun_DropsAfterUnmount(t *testing.T) {
	scope := NewScope("dashboard", nil)
	release := make(chan struct{})
	var completed, delivered atomic.Bool

	Run(scope, context.Background(), func(ctx context.Context) (string, error) {
		<-release
		completed.Store(true)
		return "stale", nil
	}, func(string, error) {
		delivered.Store(true)
	})

	scope.Close()
	close(release)
	scope.Wait()

	assert.True(t, completed.Load(), "operation still runs to completion")
	assert.False(t, delivered.Load(), "result dropped after unmount")
	assert.False(t, scope.Mounted())
}

func TestRun_IgnoresCallerCancellation(t *testing.T) {
	scope := NewScope("admin", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	Run(scope, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, ctx.Err()
	}, func(_ struct{}, err error) {
		sawErr = err
	})
	scope.Wait()
	assert.NoError(t, sawErr)
}

func TestDo(t *testing.T) {
	scope := NewScope("content", nil)
	boom := errors.New("boom")

	var got error
	ok := Do(scope, context.Background(), func(ctx context.Context) (int, error) {
		return 0, boom
	}, func(_ int, err error) { got = err })
	assert.True(t, ok)
	assert.ErrorIs(t, got, boom)

	ok = Do(scope, context.Background(), func(ctx context.Context) (int, error) {
		scope.Close() // navigation during the call
		return 1, nil
	}, func(int, error) { t.Fatal("delivered after unmount") })
	assert.False(t, ok)
}
