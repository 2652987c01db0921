package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/phrazzld/ragpipe/internal/platform/logger"
	"github.com/phrazzld/ragpipe/internal/store"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		// ALLOW-PANIC: the embedded directory is fixed at compile time
		panic(err)
	}
	return sub
}

// Migrate applies the embedded migrations to db.
func Migrate(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	return store.Migrate(ctx, db, "postgres", Migrations(), log)
}

// PostgresResultStore implements the store.ResultStore interface using PostgreSQL
type PostgresResultStore struct {
	db store.DBTX
}

// NewPostgresResultStore creates a new PostgresResultStore
func NewPostgresResultStore(db store.DBTX) *PostgresResultStore {
	return &PostgresResultStore{
		db: db,
	}
}

var _ store.ResultStore = (*PostgresResultStore)(nil)

// InsertResult persists a result record to the database
func (s *PostgresResultStore) InsertResult(ctx context.Context, record *store.ResultRecord) error {
	log := logger.FromContext(ctx)

	if err := record.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO query_results ("user", question, answer, llm_model, cache_hit, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	var metadata any
	if len(record.Metadata) > 0 {
		metadata = string(record.Metadata)
	}

	err := s.db.QueryRowContext(ctx, query,
		record.User,
		record.Question,
		record.Answer,
		record.ModelName,
		record.CacheHit,
		metadata,
		record.CreatedAt,
	).Scan(&record.ID)
	if err != nil {
		log.Error("failed to insert query result",
			"user", record.User,
			"model", record.ModelName,
			"error", err)
		mapped := MapError(err)
		if mapped == err {
			mapped = fmt.Errorf("%w: %w", store.ErrInsertFailed, err)
		}
		return store.NewStoreError("query_result", "insert", "failed to insert result", mapped)
	}

	return nil
}
