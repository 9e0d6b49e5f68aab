// ABOUTME: Tests for store and session instrumentation
// ABOUTME: Uses prometheus testutil against a private registry

package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/store"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestInstrumentStore_CountsOperations(t *testing.T) {
	m, reg := newTestMetrics(t)
	s := InstrumentStore(store.NewMockStore(), m)
	ctx := context.Background()

	id, err := s.Create(ctx, "content", store.Fields{"title": "Squats"})
	require.NoError(t, err)
	rec, err := s.GetOne(ctx, "content", id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Squats", rec.String("title"))

	require.NoError(t, s.Update(ctx, "content", id, store.Fields{"title": "Lunges"}))
	require.NoError(t, s.Delete(ctx, "content", id))

	count, err := testutil.GatherAndCount(reg, "fitportal_store_op_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 4, count, "one series per op/collection/status")
	assert.Equal(t, 0, testutil.CollectAndCount(m.StoreErrors))
}

func TestInstrumentStore_ErrorsByKind(t *testing.T) {
	m, _ := newTestMetrics(t)
	mock := store.NewMockStore()
	s := InstrumentStore(mock, m)
	ctx := context.Background()

	err := s.Update(ctx, "content", "missing", store.Fields{"title": "x"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("update", "not_found")))

	mock.InjectError(errors.New("connection reset"))
	_, err = s.GetOne(ctx, "content", "any")
	require.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("get_one", "network")))

	require.Error(t, s.Ping(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("ping", "network")))
}

func TestInstrumentStore_TransactPassesErrorsThrough(t *testing.T) {
	m, _ := newTestMetrics(t)
	s := InstrumentStore(store.NewMockStore(), m)

	boom := errors.New("boom")
	err := s.Transact(context.Background(), func(tx store.Tx) error { return boom })
	assert.Same(t, boom, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("transact", "internal")))
}

func TestSessionHooks(t *testing.T) {
	m, _ := newTestMetrics(t)
	hooks := m.SessionHooks()

	hooks.OnAttempt("login", nil)
	hooks.OnAttempt("login", apperr.New(apperr.KindWrongPassword, ""))
	hooks.OnAttempt("login", apperr.New(apperr.KindWrongPassword, ""))
	hooks.OnTransition("signed_in")
	hooks.OnTransition("signed_out")
	hooks.OnTransition("signed_in")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("login", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("login", "wrong_password")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionTransitions.WithLabelValues("signed_in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionTransitions.WithLabelValues("signed_out")))
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
