// Package store provides the generic record store behind every fitportal
// domain service.
//
// # Architecture
//
// Records are schemaless JSON documents grouped into named collections, in
// the style of a hosted document database. The package is interface-driven:
//
//   - Reader: GetOne, GetAll
//   - Writer: Create, Put, Update, Delete
//   - RecordStore: Reader + Writer + Transact, Ping, Close
//
// Three implementations share one contract and one query matcher:
//
//   - SQLiteStore: embedded modernc.org/sqlite, one "records" table
//   - PostgresStore: pgx/v5 pool, JSONB fields column
//   - MockStore: in-memory twin for tests, returns copies
//
// # Records
//
// Every record carries server-managed id, createdAt and updatedAt values.
// Caller-supplied fields may not use those keys. Field values are
// normalised on write:
//
//   - numbers become float64
//   - time.Time becomes an ISO-8601 string in TimeFormat
//   - slices and maps become []any and map[string]any
//
// so that a record read back compares equal to the normalised input on
// every backend.
//
// # Queries
//
// Query is an immutable value. Where, OrderBy and Limit each return a new
// Query:
//
//	q := store.NewQuery().
//		Where("category", store.OpEq, "Fitness").
//		OrderBy("createdAt", store.Desc).
//		Limit(20)
//
// Comparisons are type-strict. A record missing the filtered or ordered
// field never matches. SQL backends push simple equality filters down to
// the database; the shared matcher is authoritative for the final result.
//
// # Transactions
//
// Transact runs a function against a Tx. The whole function re-runs when
// the commit conflicts, up to the configured retry policy, after which the
// call fails with apperr.ErrConflict. The function must only touch the
// store through the Tx it is given.
//
// Outside Transact there is no cross-record atomicity: two callers doing
// read-then-Update on the same counter may lose one increment.
//
// # Error Handling
//
// Only apperr taxonomy errors leave this package:
//
//   - apperr.ErrValidation: bad collection, field path, or reserved key
//   - apperr.ErrNotFound: Update of a missing record
//   - apperr.ErrConflict: Transact retries exhausted
//   - apperr.ErrNetwork: any driver failure
//
// GetOne reports absence as a nil record, not an error. Delete is
// idempotent.
package store
