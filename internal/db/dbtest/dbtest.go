// Package dbtest opens the integration-test database named by TEST_DB_DSN.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekogravitycat/museum-booking-backend/internal/db"
)

// Pool connects to TEST_DB_DSN, applies the schema and closes the pool when the test ends.
// The test is skipped when TEST_DB_DSN is not set.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn, db.PoolOptions{})
	if err != nil {
		t.Fatalf("unable to connect to database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("unable to apply schema: %v", err)
	}
	return pool
}

// Truncate empties the given tables.
func Truncate(t *testing.T, pool *pgxpool.Pool, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if _, err := pool.Exec(context.Background(), "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			t.Fatalf("failed to clean table %s: %v", table, err)
		}
	}
}
