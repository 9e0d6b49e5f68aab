// ABOUTME: Postgres test helpers; tests skip when no database is configured
// ABOUTME: Set FITPORTAL_TEST_POSTGRES_URL to run the contract suite against Postgres

package store

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	url := os.Getenv("FITPORTAL_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("FITPORTAL_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url, nil, DefaultTransactPolicy())
	if err != nil {
		t.Skipf("Skipping test: cannot connect to test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	// Clean up existing data
	if err := truncateRecords(ctx, s.pool); err != nil {
		t.Skipf("Skipping test: cannot clean database: %v", err)
	}
	return s
}

func truncateRecords(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE records`)
	return err
}
