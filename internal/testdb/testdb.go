package testdb

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/ragpipe/internal/platform/postgres"
	"github.com/phrazzld/ragpipe/internal/platform/sqlite"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 5 * time.Second

// Environment variables checked, in order, for a PostgreSQL test database.
const (
	EnvTestDatabaseURL = "RAG_TEST_DATABASE_URL"
	EnvDatabaseURL     = "DATABASE_URL"
)

// DatabaseURL returns the PostgreSQL URL for integration tests, or "" when none is set.
func DatabaseURL() string {
	for _, name := range []string{EnvTestDatabaseURL, EnvDatabaseURL} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenSQLite creates a migrated SQLite database in a temporary directory that is
// closed when the test ends.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err, "Failed to open sqlite database")
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, sqlite.Migrate(ctx, db, discardLogger()), "Failed to run migrations")

	return db
}

// OpenPostgres connects to the database named by DatabaseURL and applies migrations.
// The test is skipped when no URL is configured.
func OpenPostgres(t *testing.T) *sql.DB {
	t.Helper()

	url := DatabaseURL()
	if url == "" {
		t.Skipf("%s not set, skipping PostgreSQL test", EnvTestDatabaseURL)
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err, "Failed to open database connection")
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "Failed to ping database")
	require.NoError(t, postgres.Migrate(ctx, db, discardLogger()), "Failed to run migrations")

	return db
}

// WithTx executes a test function within a transaction, automatically rolling back
// after the test completes.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "Failed to begin transaction")

	defer func() {
		err := tx.Rollback()
		// sql.ErrTxDone is expected if tx is already committed or rolled back
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("Warning: failed to rollback transaction: %v", err)
		}
	}()

	fn(t, tx)
}
