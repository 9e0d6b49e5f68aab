// ABOUTME: PostgreSQL implementation of the RecordStore interface using pgx/v5
// ABOUTME: JSONB documents with row locks and unique-violation retries in Transact

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/retry"
)

// PostgresStore implements RecordStore on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	policy retry.Policy
}

// NewPostgresStore connects to url, verifies the connection, and creates
// the schema if needed.
func NewPostgresStore(ctx context.Context, url string, logger *slog.Logger, policy retry.Policy) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "store"),
		policy: policy,
	}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("Postgres store initialized")
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
			version    BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_records_collection_created
			ON records (collection, created_at);

		CREATE INDEX IF NOT EXISTS idx_records_fields
			ON records USING GIN (fields jsonb_path_ops);
	`)
	return err
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return publicErr(translatePgErr(s.pool.Ping(ctx)))
}

// GetOne retrieves a record by id, nil when absent.
func (s *PostgresStore) GetOne(ctx context.Context, collection, id string) (*Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	rec, err := pgGet(ctx, s.pool, collection, id, false)
	return rec, publicErr(translatePgErr(err))
}

// GetAll returns records in collection matching q. Top-level equality
// filters are pushed down as a JSONB containment predicate.
func (s *PostgresStore) GetAll(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := q.Err(); err != nil {
		return nil, err
	}

	query := `SELECT id, fields, version, created_at, updated_at FROM records WHERE collection = $1`
	args := []any{collection}
	if eq := q.pushdown(); len(eq) > 0 {
		contains := make(map[string]any, len(eq))
		for _, f := range eq {
			contains[f.Field] = f.Value
		}
		data, err := json.Marshal(contains)
		if err != nil {
			return nil, apperr.Validation("query", err.Error())
		}
		query += ` AND fields @> $2::jsonb`
		args = append(args, string(data))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, publicErr(translatePgErr(fmt.Errorf("querying records: %w", err)))
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanPgRecord(rows, collection)
		if err != nil {
			return nil, publicErr(translatePgErr(err))
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, publicErr(translatePgErr(fmt.Errorf("iterating records: %w", err)))
	}

	return q.Apply(records), nil
}

// Create inserts a record under a new id.
func (s *PostgresStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	id, err := pgCreate(ctx, s.pool, collection, fields)
	return id, publicErr(translatePgErr(err))
}

// Put creates or replaces the record at id.
func (s *PostgresStore) Put(ctx context.Context, collection, id string, fields Fields) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return publicErr(translatePgErr(pgPut(ctx, s.pool, collection, id, fields, true)))
}

// Update merges partial into an existing record with the JSONB || operator.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, partial Fields) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return publicErr(translatePgErr(pgUpdate(ctx, s.pool, collection, id, partial)))
}

// Delete removes a record if present.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return publicErr(translatePgErr(pgDelete(ctx, s.pool, collection, id)))
}

// Transact runs fn in a READ COMMITTED transaction. Reads lock rows with
// SELECT ... FOR UPDATE; a Put of a record read as absent is a plain
// INSERT, so concurrent creators conflict and re-run.
func (s *PostgresStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	return runTransact(ctx, s.policy, s.logger, func(ctx context.Context) error {
		pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return translatePgErr(fmt.Errorf("beginning transaction: %w", err))
		}

		tx := &pgTx{ctx: ctx, tx: pgxTx, absent: make(map[string]bool)}
		if err := fn(tx); err != nil {
			_ = pgxTx.Rollback(ctx)
			return err
		}

		if err := pgxTx.Commit(ctx); err != nil {
			return translatePgErr(fmt.Errorf("committing transaction: %w", err))
		}
		return nil
	})
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanPgRecord(row pgx.Row, collection string) (*Record, error) {
	var (
		rec    Record
		fields []byte
	)
	if err := row.Scan(&rec.ID, &fields, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	decoded, err := decodeFields(fields)
	if err != nil {
		return nil, err
	}
	rec.Fields = decoded
	rec.Collection = collection
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func pgGet(ctx context.Context, q pgQuerier, collection, id string, forUpdate bool) (*Record, error) {
	query := `SELECT id, fields, version, created_at, updated_at FROM records WHERE collection = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rec, err := scanPgRecord(q.QueryRow(ctx, query, collection, id), collection)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return rec, nil
}

func pgCreate(ctx context.Context, q pgQuerier, collection string, fields Fields) (string, error) {
	norm, err := normalizeFields(fields)
	if err != nil {
		return "", err
	}
	data, err := encodeFields(norm)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	ts := now()
	_, err = q.Exec(ctx, `
		INSERT INTO records (collection, id, fields, version, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, 1, $4, $4)
	`, collection, id, string(data), ts)
	if err != nil {
		return "", fmt.Errorf("inserting record: %w", err)
	}
	return id, nil
}

func pgPut(ctx context.Context, q pgQuerier, collection, id string, fields Fields, upsert bool) error {
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

	query := `
		INSERT INTO records (collection, id, fields, version, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, 1, $4, $4)`
	if upsert {
		query += `
		ON CONFLICT (collection, id) DO UPDATE SET
			fields = EXCLUDED.fields,
			version = records.version + 1,
			updated_at = GREATEST(records.updated_at, EXCLUDED.updated_at)`
	}
	if _, err := q.Exec(ctx, query, collection, id, string(data), now()); err != nil {
		return fmt.Errorf("putting record: %w", err)
	}
	return nil
}

func pgUpdate(ctx context.Context, q pgQuerier, collection, id string, partial Fields) error {
	norm, err := normalizeFields(partial)
	if err != nil {
		return err
	}
	data, err := encodeFields(norm)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE records
		SET fields = fields || $3::jsonb,
			version = version + 1,
			updated_at = GREATEST(updated_at, $4)
		WHERE collection = $1 AND id = $2
	`, collection, id, string(data), now())
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(collection + "/" + id)
	}
	return nil
}

func pgDelete(ctx context.Context, q pgQuerier, collection, id string) error {
	if _, err := q.Exec(ctx, `DELETE FROM records WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

type pgTx struct {
	ctx    context.Context
	tx     pgx.Tx
	absent map[string]bool // collection/id read as missing in this transaction
}

func (t *pgTx) Get(collection, id string) (*Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	rec, err := pgGet(t.ctx, t.tx, collection, id, true)
	if err != nil {
		return nil, translatePgErr(err)
	}
	if rec == nil {
		t.absent[collection+"/"+id] = true
	}
	return rec, nil
}

func (t *pgTx) Create(collection string, fields Fields) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	id, err := pgCreate(t.ctx, t.tx, collection, fields)
	return id, translatePgErr(err)
}

func (t *pgTx) Put(collection, id string, fields Fields) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	key := collection + "/" + id
	err := pgPut(t.ctx, t.tx, collection, id, fields, !t.absent[key])
	if err == nil {
		delete(t.absent, key)
	}
	return translatePgErr(err)
}

func (t *pgTx) Update(collection, id string, partial Fields) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return translatePgErr(pgUpdate(t.ctx, t.tx, collection, id, partial))
}

func (t *pgTx) Delete(collection, id string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return translatePgErr(pgDelete(t.ctx, t.tx, collection, id))
}

// translatePgErr maps pgx errors into the taxonomy. Unique violations,
// serialization failures, and deadlocks count as transaction conflicts.
func translatePgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errConflict) {
		return err
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			return errConflict
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return apperr.Wrap(apperr.KindNetwork, err, "database timeout")
	}
	return apperr.Network(err)
}
