// ABOUTME: RecordStore decorator that records latency and error metrics
// ABOUTME: Every call passes through unchanged to the wrapped store

package metrics

import (
	"context"
	"time"

	"github.com/2389/fitportal/internal/store"
)

// Store wraps a RecordStore with Prometheus instrumentation.
type Store struct {
	next store.RecordStore
	m    *Metrics
}

var _ store.RecordStore = (*Store)(nil)

// InstrumentStore returns next decorated with m's store collectors.
func InstrumentStore(next store.RecordStore, m *Metrics) *Store {
	return &Store{next: next, m: m}
}

func (s *Store) observe(op, collection string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		s.m.StoreErrors.WithLabelValues(op, resultLabel(err)).Inc()
	}
	s.m.StoreOpDuration.WithLabelValues(op, collection, status).Observe(time.Since(start).Seconds())
}

// GetOne times a single-record read.
func (s *Store) GetOne(ctx context.Context, collection, id string) (*store.Record, error) {
	start := time.Now()
	rec, err := s.next.GetOne(ctx, collection, id)
	s.observe("get_one", collection, start, err)
	return rec, err
}

// GetAll times a query over collection.
func (s *Store) GetAll(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	start := time.Now()
	recs, err := s.next.GetAll(ctx, collection, q)
	s.observe("get_all", collection, start, err)
	return recs, err
}

// Create times an insert under a new id.
func (s *Store) Create(ctx context.Context, collection string, fields store.Fields) (string, error) {
	start := time.Now()
	id, err := s.next.Create(ctx, collection, fields)
	s.observe("create", collection, start, err)
	return id, err
}

// Put times a create-or-replace at id.
func (s *Store) Put(ctx context.Context, collection, id string, fields store.Fields) error {
	start := time.Now()
	err := s.next.Put(ctx, collection, id, fields)
	s.observe("put", collection, start, err)
	return err
}

// Update times a partial merge into an existing record.
func (s *Store) Update(ctx context.Context, collection, id string, partial store.Fields) error {
	start := time.Now()
	err := s.next.Update(ctx, collection, id, partial)
	s.observe("update", collection, start, err)
	return err
}

// Delete times a record removal.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, collection, id)
	s.observe("delete", collection, start, err)
	return err
}

// Transact is recorded under the pseudo-collection "_tx" since one
// transaction may span several collections.
func (s *Store) Transact(ctx context.Context, fn func(tx store.Tx) error) error {
	start := time.Now()
	err := s.next.Transact(ctx, fn)
	s.observe("transact", "_tx", start, err)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", "", start, err)
	return err
}

func (s *Store) Close() error {
	return s.next.Close()
}
