package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/ragpipe/internal/platform/postgres"
	"github.com/phrazzld/ragpipe/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		TableName:      "query_results",
		ColumnName:     "question",
		ConstraintName: "test_constraint",
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "no rows", err: sql.ErrNoRows, expected: store.ErrNotFound},
		{name: "unique violation", err: newPgError("23505"), expected: store.ErrDuplicate},
		{name: "check violation", err: newPgError("23514"), expected: store.ErrInvalidEntity},
		{name: "not null violation", err: newPgError("23502"), expected: store.ErrInvalidEntity},
		{name: "wrapped not null violation", err: fmt.Errorf("exec: %w", newPgError("23502")), expected: store.ErrInvalidEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, postgres.MapError(tt.err), tt.expected)
		})
	}

	assert.NoError(t, postgres.MapError(nil))

	generic := errors.New("generic error")
	assert.Same(t, generic, postgres.MapError(generic))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.False(t, postgres.IsUniqueViolation(nil))
	assert.False(t, postgres.IsUniqueViolation(errors.New("generic error")))
	assert.True(t, postgres.IsUniqueViolation(newPgError("23505")))
	assert.False(t, postgres.IsUniqueViolation(newPgError("23503")))
}

// unusedDB fails the test if the store reaches the database.
type unusedDB struct {
	store.DBTX
	t *testing.T
}

func (u unusedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	u.t.Fatal("database should not be reached for an invalid record")
	return nil
}

func TestInsertResultRejectsInvalidRecord(t *testing.T) {
	t.Parallel()

	s := postgres.NewPostgresResultStore(unusedDB{t: t})
	err := s.InsertResult(context.Background(), &store.ResultRecord{User: "alice"})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestMigrationsEmbedded(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(postgres.Migrations(), ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_create_query_results.sql", entries[0].Name())
}
