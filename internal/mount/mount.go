// ABOUTME: Mount scope that drops async results arriving after a view is left
// ABOUTME: Operations keep running; only their delivery is suppressed

// Package mount ties asynchronous results to the lifetime of a view.
//
// Leaving a view closes its Scope. Operations started through Run are not
// cancelled (the remote request still completes) but their results are
// discarded instead of being delivered to the closed view.
package mount

import (
	"context"
	"log/slog"
	"sync"
)

// Scope is the lifetime of one mounted view.
type Scope struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewScope returns an open scope.
func NewScope(name string, logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scope{name: name, logger: logger.With("component", "mount", "scope", name)}
}

// Name returns the scope's view name.
func (s *Scope) Name() string {
	return s.name
}

// Mounted reports whether the scope is still open.
func (s *Scope) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close unmounts the scope. In-flight operations are left running.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Wait blocks until every operation started in the scope has finished.
func (s *Scope) Wait() {
	s.wg.Wait()
}

// Run starts op in the background, detached from ctx's cancellation, and
// calls deliver with its result only while scope is mounted. It returns
// immediately. Delivery holds the scope lock, so Close waits for a
// delivery in progress.
func Run[T any](scope *Scope, ctx context.Context, op func(context.Context) (T, error), deliver func(T, error)) {
	detached := context.WithoutCancel(ctx)
	scope.wg.Add(1)
	go func() {
		defer scope.wg.Done()
		v, err := op(detached)

		scope.mu.Lock()
		defer scope.mu.Unlock()
		if scope.closed {
			scope.logger.Debug("dropping result for unmounted view", "error", err)
			return
		}
		deliver(v, err)
	}()
}

// Do runs op synchronously and delivers its result only if scope is
// still mounted afterwards. It reports whether the result was delivered.
func Do[T any](scope *Scope, ctx context.Context, op func(context.Context) (T, error), deliver func(T, error)) bool {
	v, err := op(context.WithoutCancel(ctx))

	scope.mu.Lock()
	defer scope.mu.Unlock()
	if scope.closed {
		scope.logger.Debug("dropping result for unmounted view", "error", err)
		return false
	}
	deliver(v, err)
	return true
}
