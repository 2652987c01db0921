package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phrazzld/ragpipe/internal/platform/rabbitmq"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume tasks from the queue and process them in batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := initializeApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			consumer := rabbitmq.NewConsumer(cfg.Queue, log)
			inspector := rabbitmq.NewClient(cfg.Queue, log)
			defer func() {
				if err := inspector.Close(); err != nil {
					log.Warn("failed to close queue inspector", "error", err)
				}
			}()

			app, err := newApplication(ctx, cfg, log, consumer, inspector)
			if err != nil {
				return err
			}
			defer app.cleanup()

			return app.Run(ctx)
		},
	}
}
