package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/phrazzld/ragpipe/internal/config"
	"github.com/phrazzld/ragpipe/internal/task"
)

// Consumer reads tasks from the durable queue with manual acknowledgment.
type Consumer struct {
	cfg    config.QueueConfig
	logger *slog.Logger
}

var _ task.QueueReader = (*Consumer)(nil)

// NewConsumer creates a Consumer.
func NewConsumer(cfg config.QueueConfig, logger *slog.Logger) *Consumer {
	return &Consumer{
		cfg:    cfg,
		logger: logger.With("component", "rabbitmq_consumer", "queue", cfg.Name),
	}
}

// Consume opens a connection, declares the queue, applies the prefetch limit and
// starts delivering. The returned channel closes when the connection drops or ctx is
// done; the connection is closed in both cases.
func (c *Consumer) Consume(ctx context.Context) (<-chan task.Delivery, error) {
	conn, err := dial(c.cfg)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := declare(ch, c.cfg.Name); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := ch.Consume(c.cfg.Name, "", false, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("consume %s: %w", c.cfg.Name, err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	out := make(chan task.Delivery)

	go func() {
		defer close(out)
		defer func() { _ = conn.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case amqpErr, ok := <-closed:
				if ok && amqpErr != nil {
					c.logger.Warn("rabbitmq connection closed",
						"code", amqpErr.Code,
						"reason", amqpErr.Reason)
				}
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- toDelivery(msg):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	c.logger.Info("consumer started", "prefetch", c.cfg.PrefetchCount)
	return out, nil
}

// acknowledger is the part of amqp.Delivery used to acknowledge a message.
type acknowledger interface {
	Ack(multiple bool) error
}

func toDelivery(msg amqp.Delivery) task.Delivery {
	return newDelivery(msg.Body, msg)
}

func newDelivery(body []byte, a acknowledger) task.Delivery {
	return task.NewDelivery(body, func() error {
		return a.Ack(false)
	})
}
