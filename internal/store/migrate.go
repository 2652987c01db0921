package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// MigrationTableName is the goose version table.
const MigrationTableName = "schema_migrations"

// slogGooseLogger adapts the goose logger interface to use slog
type slogGooseLogger struct {
	logger *slog.Logger
}

// Printf implements the goose.Logger Printf method by forwarding messages to slog.Info
func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Fatalf implements the goose.Logger Fatalf method by forwarding error messages to slog.Error.
// It does NOT call os.Exit; the error is returned to the caller instead.
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// Migrate applies every pending migration found at the root of migrations.
// dialect is a goose dialect name ("postgres", "sqlite3").
func Migrate(ctx context.Context, db *sql.DB, dialect string, migrations fs.FS, logger *slog.Logger) error {
	goose.SetLogger(&slogGooseLogger{logger: logger.With("component", "migrations")})
	goose.SetBaseFS(migrations)
	goose.SetTableName(MigrationTableName)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect %q: %w", dialect, err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
