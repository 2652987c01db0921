package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/phrazzld/ragpipe/internal/config"
	"github.com/phrazzld/ragpipe/internal/task"
)

// ErrNack is returned when the broker negatively acknowledges a published message.
var ErrNack = errors.New("message not confirmed by broker")

// Client publishes tasks to the durable queue. The connection is opened lazily and
// discarded after any failure so the next call redials.
type Client struct {
	cfg    config.QueueConfig
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ task.QueueWriter = (*Client)(nil)

// NewClient creates a Client. No connection is made until first use.
func NewClient(cfg config.QueueConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "rabbitmq_client", "queue", cfg.Name),
	}
}

// channel returns the open confirm-mode channel, connecting if needed.
// The caller must hold c.mu.
func (c *Client) channel() (*amqp.Channel, error) {
	if c.ch != nil && !c.ch.IsClosed() {
		return c.ch, nil
	}
	c.reset()

	conn, err := dial(c.cfg)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	if _, err := declare(ch, c.cfg.Name); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.conn, c.ch = conn, ch
	c.logger.Info("connected to rabbitmq", "host", c.cfg.Host, "vhost", c.cfg.VHost)
	return ch, nil
}

// reset closes and forgets the current connection. The caller must hold c.mu.
func (c *Client) reset() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.ch = nil, nil
}

// Publish sends body as a persistent message and waits for the broker confirm.
func (c *Client) Publish(ctx context.Context, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.channel()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", c.cfg.Name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		c.reset()
		return fmt.Errorf("publish: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		c.reset()
		return fmt.Errorf("wait for confirm: %w", err)
	}
	if !acked {
		return ErrNack
	}
	return nil
}

// QueueLength returns the number of ready messages in the queue.
func (c *Client) QueueLength(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.channel()
	if err != nil {
		return 0, err
	}
	q, err := ch.QueueDeclarePassive(c.cfg.Name, true, false, false, false, nil)
	if err != nil {
		c.reset()
		return 0, fmt.Errorf("inspect queue %s: %w", c.cfg.Name, err)
	}
	return q.Messages, nil
}

// Close closes the connection if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.ch = nil, nil
	return err
}
