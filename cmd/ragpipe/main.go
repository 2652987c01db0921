// Package main implements the ragpipe command: a worker that consumes RAG tasks from
// a durable queue and answers them in batches, plus the tooling to submit tasks and
// apply result store migrations.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/phrazzld/ragpipe/internal/config"
	"github.com/phrazzld/ragpipe/internal/platform/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragpipe",
		Short:         "Batched RAG task distribution and processing",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newWorkerCmd(),
		newSubmitCmd(),
		newMigrateCmd(),
	)

	return root
}

// initializeApp loads configuration and sets up structured logging.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Debug("configuration loaded",
		"log_level", cfg.Server.LogLevel,
		"queue", cfg.Queue.Name,
		"cache_driver", cfg.Cache.Driver,
		"database_driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider)

	return cfg, log, nil
}
