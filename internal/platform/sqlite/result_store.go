package sqlite

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

	_ "modernc.org/sqlite"
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

// Open opens the database file at path with a busy timeout so concurrent workers
// wait for the write lock instead of failing.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate applies the embedded migrations to db.
func Migrate(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	return store.Migrate(ctx, db, "sqlite3", Migrations(), log)
}

// ResultStore implements store.ResultStore on SQLite.
type ResultStore struct {
	db store.DBTX
}

// NewResultStore creates a new ResultStore.
func NewResultStore(db store.DBTX) *ResultStore {
	return &ResultStore{db: db}
}

var _ store.ResultStore = (*ResultStore)(nil)

// InsertResult persists a result record.
func (s *ResultStore) InsertResult(ctx context.Context, record *store.ResultRecord) error {
	log := logger.FromContext(ctx)

	if err := record.Validate(); err != nil {
		return err
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	var metadata any
	if len(record.Metadata) > 0 {
		metadata = string(record.Metadata)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO query_results (user, question, answer, llm_model, cache_hit, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.User,
		record.Question,
		record.Answer,
		record.ModelName,
		record.CacheHit,
		metadata,
		record.CreatedAt,
	)
	if err != nil {
		log.Error("failed to insert query result",
			"user", record.User,
			"model", record.ModelName,
			"error", err)
		return store.NewStoreError("query_result", "insert", "failed to insert result",
			fmt.Errorf("%w: %w", store.ErrInsertFailed, err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return store.NewStoreError("query_result", "insert", "failed to read inserted id", err)
	}
	record.ID = id

	return nil
}
