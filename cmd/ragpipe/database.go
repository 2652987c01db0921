package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/phrazzld/ragpipe/internal/config"
	"github.com/phrazzld/ragpipe/internal/platform/postgres"
	"github.com/phrazzld/ragpipe/internal/platform/sqlite"
	"github.com/phrazzld/ragpipe/internal/redact"
	"github.com/phrazzld/ragpipe/internal/store"
)

// setupDatabase opens the result store database, applies pending migrations and
// returns the matching ResultStore.
func setupDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, store.ResultStore, error) {
	var (
		db      *sql.DB
		results store.ResultStore
		migrate func(context.Context, *sql.DB, *slog.Logger) error
		err     error
	)

	switch cfg.Driver {
	case "sqlite":
		db, err = sqlite.Open(cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		results = sqlite.NewResultStore(db)
		migrate = sqlite.Migrate
	case "pgx":
		db, err = sql.Open("pgx", cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database connection: %s", redact.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		results = postgres.NewPostgresResultStore(db)
		migrate = postgres.Migrate
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %s", redact.Error(err))
	}

	if err := migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("database connection established", "driver", cfg.Driver)
	return db, results, nil
}
