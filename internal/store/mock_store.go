// ABOUTME: Mock RecordStore implementation for testing
// ABOUTME: In-memory collections with copy semantics, call counting, and error injection

package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/2389/fitportal/internal/apperr"
)

// MockStore is an in-memory RecordStore for tests. Transact holds the
// store lock for the duration of the function, so transactions never
// conflict.
type MockStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Record // collection -> id -> record
	calls       atomic.Int64
	injected    error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		collections: make(map[string]map[string]*Record),
	}
}

// Calls returns the number of store operations invoked so far.
func (m *MockStore) Calls() int {
	return int(m.calls.Load())
}

// InjectError makes every subsequent operation fail with a NetworkError
// wrapping err. Pass nil to clear.
func (m *MockStore) InjectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injected = err
}

func (m *MockStore) begin() error {
	m.calls.Add(1)
	if m.injected != nil {
		return apperr.Network(m.injected)
	}
	return nil
}

// GetOne retrieves a record by id.
func (m *MockStore) GetOne(ctx context.Context, collection, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.begin(); err != nil {
		return nil, err
	}
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	rec, ok := m.collections[collection][id]
	if !ok {
		return nil, nil
	}

	// Return a copy
	out := rec.Clone()
	return &out, nil
}

// GetAll returns records in collection matching q.
func (m *MockStore) GetAll(ctx context.Context, collection string, q Query) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.begin(); err != nil {
		return nil, err
	}
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := q.Err(); err != nil {
		return nil, err
	}

	all := make([]Record, 0, len(m.collections[collection]))
	for _, rec := range m.collections[collection] {
		all = append(all, rec.Clone())
	}
	return q.Apply(all), nil
}

// Create inserts a record under a new id.
func (m *MockStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(); err != nil {
		return "", err
	}
	return m.createLocked(m.collections, collection, fields)
}

// Put creates or replaces the record at id.
func (m *MockStore) Put(ctx context.Context, collection, id string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(); err != nil {
		return err
	}
	return m.putLocked(m.collections, collection, id, fields)
}

// Update merges partial into an existing record.
func (m *MockStore) Update(ctx context.Context, collection, id string, partial Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(); err != nil {
		return err
	}
	return m.updateLocked(m.collections, collection, id, partial)
}

// Delete removes a record if present.
func (m *MockStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(); err != nil {
		return err
	}
	if err := validateCollection(collection); err != nil {
		return err
	}
	delete(m.collections[collection], id)
	return nil
}

// Transact runs fn against a staged copy of the touched records and
// applies the staged writes when fn returns nil.
func (m *MockStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.Network(err)
	}

	tx := &mockTx{store: m, staged: make(map[string]map[string]*Record)}
	if err := fn(tx); err != nil {
		return err
	}

	for collection, recs := range tx.staged {
		for id, rec := range recs {
			if rec == nil {
				delete(m.collections[collection], id)
				continue
			}
			if m.collections[collection] == nil {
				m.collections[collection] = make(map[string]*Record)
			}
			m.collections[collection][id] = rec
		}
	}
	return nil
}

// Ping always succeeds unless an error is injected.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.begin()
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

type collections map[string]map[string]*Record

func (m *MockStore) createLocked(into collections, collection string, fields Fields) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	norm, err := normalizeFields(fields)
	if err != nil {
		return "", err
	}

	ts := now()
	rec := &Record{
		ID:         uuid.New().String(),
		Collection: collection,
		Fields:     norm,
		CreatedAt:  ts,
		UpdatedAt:  ts,
		Version:    1,
	}
	if into[collection] == nil {
		into[collection] = make(map[string]*Record)
	}
	into[collection][rec.ID] = rec
	return rec.ID, nil
}

func (m *MockStore) putLocked(into collections, collection, id string, fields Fields) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	norm, err := normalizeFields(fields)
	if err != nil {
		return err
	}

	ts := now()
	rec := &Record{ID: id, Collection: collection, Fields: norm, CreatedAt: ts, UpdatedAt: ts, Version: 1}
	if prev := m.current(into, collection, id); prev != nil {
		rec.CreatedAt = prev.CreatedAt
		rec.UpdatedAt = touch(prev.UpdatedAt)
		rec.Version = prev.Version + 1
	}
	if into[collection] == nil {
		into[collection] = make(map[string]*Record)
	}
	into[collection][id] = rec
	return nil
}

func (m *MockStore) updateLocked(into collections, collection, id string, partial Fields) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	norm, err := normalizeFields(partial)
	if err != nil {
		return err
	}

	prev := m.current(into, collection, id)
	if prev == nil {
		return apperr.NotFound(collection + "/" + id)
	}

	rec := prev.Clone()
	rec.Fields = mergeFields(prev.Fields, norm)
	rec.UpdatedAt = touch(prev.UpdatedAt)
	rec.Version = prev.Version + 1
	if into[collection] == nil {
		into[collection] = make(map[string]*Record)
	}
	into[collection][id] = &rec
	return nil
}

// current resolves a record through staged writes first, then the base
// collections. A staged nil means deleted.
func (m *MockStore) current(into collections, collection, id string) *Record {
	if recs, ok := into[collection]; ok {
		if rec, staged := recs[id]; staged {
			return rec
		}
	}
	return m.collections[collection][id]
}

type mockTx struct {
	store  *MockStore
	staged collections
}

func (t *mockTx) Get(collection, id string) (*Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	rec := t.store.current(t.staged, collection, id)
	if rec == nil {
		return nil, nil
	}
	out := rec.Clone()
	return &out, nil
}

func (t *mockTx) Create(collection string, fields Fields) (string, error) {
	return t.store.createLocked(t.staged, collection, fields)
}

func (t *mockTx) Put(collection, id string, fields Fields) error {
	return t.store.putLocked(t.staged, collection, id, fields)
}

func (t *mockTx) Update(collection, id string, partial Fields) error {
	return t.store.updateLocked(t.staged, collection, id, partial)
}

func (t *mockTx) Delete(collection, id string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if t.staged[collection] == nil {
		t.staged[collection] = make(map[string]*Record)
	}
	t.staged[collection][id] = nil
	return nil
}
