package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply result store migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := initializeApp()
			if err != nil {
				return err
			}

			db, _, err := setupDatabase(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			log.Info("result store is up to date", "driver", cfg.Database.Driver)
			return nil
		},
	}
}
