// ABOUTME: RecordStore interfaces and the Record type shared by all backends
// ABOUTME: Defines timestamps, reserved keys, and typed field accessors

package store

import (
	"context"
	"errors"
	"time"
)

// TimeFormat is the ISO-8601 layout used for every stored timestamp.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// Reserved record keys managed by the store.
const (
	KeyID        = "id"
	KeyCreatedAt = "createdAt"
	KeyUpdatedAt = "updatedAt"
)

// errConflict marks a commit that lost a race and should be re-run.
var errConflict = errors.New("transaction conflict")

// Fields holds the caller-controlled part of a record.
type Fields map[string]any

// Record is a stored document.
type Record struct {
	ID         string
	Collection string
	Fields     Fields
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int64
}

// Reader is the read half of a RecordStore.
type Reader interface {
	// GetOne returns the record, or nil with no error when it does not exist.
	GetOne(ctx context.Context, collection, id string) (*Record, error)
	GetAll(ctx context.Context, collection string, q Query) ([]Record, error)
}

// Writer is the write half of a RecordStore.
type Writer interface {
	// Create inserts a record under a new server-assigned id.
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	// Put creates or replaces the record at id, keeping createdAt on replace.
	Put(ctx context.Context, collection, id string, fields Fields) error
	// Update shallow-merges partial into an existing record.
	Update(ctx context.Context, collection, id string, partial Fields) error
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, collection, id string) error
}

// Tx is the view of the store inside Transact. Operations run under the
// context passed to Transact.
type Tx interface {
	Get(collection, id string) (*Record, error)
	Create(collection string, fields Fields) (string, error)
	Put(collection, id string, fields Fields) error
	Update(collection, id string, partial Fields) error
	Delete(collection, id string) error
}

// RecordStore is the full record store contract.
type RecordStore interface {
	Reader
	Writer
	// Transact runs fn atomically, re-running it on commit conflicts.
	Transact(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// FormatTime renders t in TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a TimeFormat (or RFC3339) timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// now returns the store clock truncated to TimeFormat precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Fields = cloneFields(r.Fields)
	return out
}

// Has reports whether the field is present.
func (r Record) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}

// String returns a string field, or "" when absent or not a string.
func (r Record) String(field string) string {
	s, _ := r.Fields[field].(string)
	return s
}

// Float returns a numeric field.
func (r Record) Float(field string) (float64, bool) {
	f, ok := r.Fields[field].(float64)
	return f, ok
}

// Bool returns a boolean field, false when absent.
func (r Record) Bool(field string) bool {
	b, _ := r.Fields[field].(bool)
	return b
}

// Time parses a timestamp field.
func (r Record) Time(field string) (time.Time, bool) {
	s, ok := r.Fields[field].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Strings returns a list-of-strings field, skipping non-string elements.
func (r Record) Strings(field string) []string {
	list, ok := r.Fields[field].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Map returns a nested object field.
func (r Record) Map(field string) map[string]any {
	m, _ := r.Fields[field].(map[string]any)
	return m
}
