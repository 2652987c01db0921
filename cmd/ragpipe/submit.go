package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phrazzld/ragpipe/internal/platform/rabbitmq"
	"github.com/phrazzld/ragpipe/internal/task"
)

func newSubmitCmd() *cobra.Command {
	var (
		user      string
		question  string
		documents []string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Validate a task and publish it to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := initializeApp()
			if err != nil {
				return err
			}

			client := rabbitmq.NewClient(cfg.Queue, log)
			defer func() {
				if err := client.Close(); err != nil {
					log.Warn("failed to close queue client", "error", err)
				}
			}()

			producer, err := task.NewProducer(client, task.ProducerConfig{
				MaxAttempts: cfg.Producer.MaxAttempts,
				RetryDelay:  cfg.Producer.RetryDelay(),
			}, log)
			if err != nil {
				return err
			}

			t, err := producer.Submit(cmd.Context(), user, question, documents)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "submitted task %s for %s (%s)\n",
				t.ID, t.User, strings.Join(t.DocumentRefs, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", task.DefaultUser, "user the task is submitted for")
	cmd.Flags().StringVar(&question, "question", "", "question to answer")
	cmd.Flags().StringArrayVar(&documents, "pdf", nil, "document reference to answer from (repeatable)")
	_ = cmd.MarkFlagRequired("question")

	return cmd
}
