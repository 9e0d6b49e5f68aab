// ABOUTME: SQLite implementation of the RecordStore interface using modernc.org/sqlite
// ABOUTME: Stores JSON documents in one records table with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/retry"
)

// SQLiteStore implements RecordStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	policy retry.Policy
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteTransactPolicy overrides the conflict retry policy.
func WithSQLiteTransactPolicy(p retry.Policy) SQLiteOption {
	return func(s *SQLiteStore) { s.policy = p }
}

// WithSQLiteLogger sets the store logger.
func WithSQLiteLogger(logger *slog.Logger) SQLiteOption {
	return func(s *SQLiteStore) { s.logger = logger.With("component", "store") }
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. ":memory:" opens a private
// in-memory database.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		logger: slog.Default().With("component", "store"),
		policy: DefaultTransactPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := ":memory:"
	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = "file:" + path
	}
	dsn += "?_txlock=immediate&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serialises writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s.db = db

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			fields     TEXT NOT NULL,
			version    INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_records_collection_created
			ON records(collection, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return publicErr(translateSQLiteErr(s.db.PingContext(ctx)))
}

// GetOne retrieves a record by id, nil when absent.
func (s *SQLiteStore) GetOne(ctx context.Context, collection, id string) (*Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	rec, err := sqliteGet(ctx, s.db, collection, id)
	return rec, publicErr(translateSQLiteErr(err))
}

// GetAll returns records in collection matching q.
func (s *SQLiteStore) GetAll(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := q.Err(); err != nil {
		return nil, err
	}

	query := `SELECT id, fields, version, created_at, updated_at FROM records WHERE collection = ?`
	args := []any{collection}
	for _, f := range q.pushdown() {
		path := "$." + f.Field
		switch v := f.Value.(type) {
		case bool:
			query += ` AND json_type(fields, ?) = ?`
			args = append(args, path, map[bool]string{true: "true", false: "false"}[v])
		case string:
			query += ` AND json_type(fields, ?) = 'text' AND json_extract(fields, ?) = ?`
			args = append(args, path, path, v)
		case float64:
			query += ` AND json_type(fields, ?) IN ('integer', 'real') AND json_extract(fields, ?) = ?`
			args = append(args, path, path, v)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, publicErr(translateSQLiteErr(fmt.Errorf("querying records: %w", err)))
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows, collection)
		if err != nil {
			return nil, publicErr(translateSQLiteErr(err))
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, publicErr(translateSQLiteErr(fmt.Errorf("iterating records: %w", err)))
	}

	return q.Apply(records), nil
}

// Create inserts a record under a new id.
func (s *SQLiteStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	id, err := sqliteCreate(ctx, s.db, collection, fields)
	return id, publicErr(translateSQLiteErr(err))
}

// Put creates or replaces the record at id.
func (s *SQLiteStore) Put(ctx context.Context, collection, id string, fields Fields) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return publicErr(translateSQLiteErr(sqlitePut(ctx, s.db, collection, id, fields)))
}

// Update merges partial into an existing record inside a short transaction.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, partial Fields) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return s.Transact(ctx, func(tx Tx) error {
		return tx.Update(collection, id, partial)
	})
}

// Delete removes a record if present.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return publicErr(translateSQLiteErr(sqliteDelete(ctx, s.db, collection, id)))
}

// Transact runs fn inside an immediate (write-locked) transaction.
func (s *SQLiteStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	return runTransact(ctx, s.policy, s.logger, func(ctx context.Context) error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return translateSQLiteErr(fmt.Errorf("beginning transaction: %w", err))
		}

		if err := fn(&sqliteTx{ctx: ctx, tx: sqlTx}); err != nil {
			_ = sqlTx.Rollback()
			return err
		}

		if err := sqlTx.Commit(); err != nil {
			return translateSQLiteErr(fmt.Errorf("committing transaction: %w", err))
		}
		return nil
	})
}

// sqlExecer is the subset of *sql.DB and *sql.Tx used by record operations.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner, collection string) (*Record, error) {
	var (
		rec                  Record
		fieldsJSON           string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &fieldsJSON, &rec.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	fields, err := decodeFields([]byte(fieldsJSON))
	if err != nil {
		return nil, err
	}
	rec.Fields = fields
	rec.Collection = collection

	if rec.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

func sqliteGet(ctx context.Context, q sqlExecer, collection, id string) (*Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, fields, version, created_at, updated_at FROM records WHERE collection = ? AND id = ?`,
		collection, id)
	rec, err := scanSQLiteRecord(row, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return rec, nil
}

func sqliteCreate(ctx context.Context, q sqlExecer, collection string, fields Fields) (string, error) {
	norm, err := normalizeFields(fields)
	if err != nil {
		return "", err
	}
	data, err := encodeFields(norm)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	ts := FormatTime(now())
	_, err = q.ExecContext(ctx, `
		INSERT INTO records (collection, id, fields, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
	`, collection, id, data, ts, ts)
	if err != nil {
		return "", fmt.Errorf("inserting record: %w", err)
	}
	return id, nil
}

func sqlitePut(ctx context.Context, q sqlExecer, collection, id string, fields Fields) error {
	if err := validateID(id); err != nil {
		return err
	}
	norm, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	data, err := encodeFields(norm)
	if err != nil {
		return err
	}

	ts := FormatTime(now())
	_, err = q.ExecContext(ctx, `
		INSERT INTO records (collection, id, fields, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			fields = excluded.fields,
			version = records.version + 1,
			updated_at = max(excluded.updated_at, records.updated_at)
	`, collection, id, data, ts, ts)
	if err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

func sqliteUpdate(ctx context.Context, q sqlExecer, collection, id string, partial Fields) error {
	norm, err := normalizeFields(partial)
	if err != nil {
		return err
	}

	prev, err := sqliteGet(ctx, q, collection, id)
	if err != nil {
		return err
	}
	if prev == nil {
		return apperr.NotFound(collection + "/" + id)
	}

	data, err := encodeFields(mergeFields(prev.Fields, norm))
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE records SET fields = ?, version = version + 1, updated_at = ?
		WHERE collection = ? AND id = ? AND version = ?
	`, data, FormatTime(touch(prev.UpdatedAt)), collection, id, prev.Version)
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return errConflict
	}
	return nil
}

func sqliteDelete(ctx context.Context, q sqlExecer, collection, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqliteTx) Get(collection, id string) (*Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	rec, err := sqliteGet(t.ctx, t.tx, collection, id)
	return rec, translateSQLiteErr(err)
}

func (t *sqliteTx) Create(collection string, fields Fields) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	id, err := sqliteCreate(t.ctx, t.tx, collection, fields)
	return id, translateSQLiteErr(err)
}

func (t *sqliteTx) Put(collection, id string, fields Fields) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return translateSQLiteErr(sqlitePut(t.ctx, t.tx, collection, id, fields))
}

func (t *sqliteTx) Update(collection, id string, partial Fields) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return translateSQLiteErr(sqliteUpdate(t.ctx, t.tx, collection, id, partial))
}

func (t *sqliteTx) Delete(collection, id string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return translateSQLiteErr(sqliteDelete(t.ctx, t.tx, collection, id))
}

// translateSQLiteErr maps driver errors into the taxonomy. Busy and locked
// databases count as transaction conflicts.
func translateSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errConflict) {
		return err
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return errConflict
	}
	return apperr.Network(err)
}
