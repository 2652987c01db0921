package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// ProducerConfig holds the publish retry policy.
type ProducerConfig struct {
	// MaxAttempts is the total number of publish attempts. Values below 1 mean 1.
	MaxAttempts int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
}

// Producer validates tasks and publishes them to a queue.
// Submitting identical content twice enqueues two independent tasks.
type Producer struct {
	writer QueueWriter
	config ProducerConfig
	logger *slog.Logger
}

// NewProducer creates a Producer publishing to writer.
func NewProducer(writer QueueWriter, config ProducerConfig, logger *slog.Logger) (*Producer, error) {
	if writer == nil {
		return nil, errors.New("queue writer cannot be nil")
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Producer{
		writer: writer,
		config: config,
		logger: logger.With("component", "task_producer"),
	}, nil
}

// Submit validates the task and publishes it, retrying failed publishes with a fixed
// delay up to MaxAttempts. Validation errors are returned without publishing.
func (p *Producer) Submit(ctx context.Context, user, question string, documentRefs []string) (Task, error) {
	t, err := NewTask(user, question, documentRefs)
	if err != nil {
		return Task{}, err
	}

	body, err := Encode(t)
	if err != nil {
		return Task{}, fmt.Errorf("failed to encode task: %w", err)
	}

	backoff := retry.WithMaxRetries(uint64(p.config.MaxAttempts-1),
		retry.NewConstant(max(p.config.RetryDelay, time.Millisecond)))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.writer.Publish(ctx, body); err != nil {
			if errors.Is(err, ErrQueueClosed) {
				return err
			}
			p.logger.WarnContext(ctx, "publish attempt failed",
				"task_id", t.ID,
				"attempt", attempt,
				"max_attempts", p.config.MaxAttempts,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "task submission failed",
			"task_id", t.ID,
			"attempts", attempt,
			"error", err)
		return Task{}, fmt.Errorf("%w after %d attempt(s): %w", ErrSubmitFailed, attempt, err)
	}

	p.logger.InfoContext(ctx, "task submitted",
		"task_id", t.ID,
		"user", t.User,
		"documents", len(t.DocumentRefs))
	return t, nil
}
