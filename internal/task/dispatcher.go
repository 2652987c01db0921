package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

// AckMode selects when a consumed message is acknowledged.
type AckMode string

const (
	// AckOnReceipt acknowledges as soon as the payload parses. A crash after that
	// point loses the task; it is never processed twice.
	AckOnReceipt AckMode = "receipt"
	// AckOnCompletion acknowledges once every item of the task has reached a terminal
	// state. A crash before that point redelivers the task, which may then be
	// processed twice.
	AckOnCompletion AckMode = "completion"
)

// ParseAckMode converts a configured name into an AckMode.
func ParseAckMode(name string) (AckMode, error) {
	switch AckMode(name) {
	case AckOnReceipt, AckOnCompletion:
		return AckMode(name), nil
	default:
		return "", fmt.Errorf("unknown ack mode %q", name)
	}
}

// Batch is a group of tasks handed to the worker pool together.
type Batch struct {
	Number int64
	Tasks  []Task
	// acks is parallel to Tasks. Entries are nil when the task was acknowledged
	// on receipt.
	acks []func() error
}

func (b Batch) ackFor(i int) func() error {
	if i < len(b.acks) {
		return b.acks[i]
	}
	return nil
}

// BatchHandler receives full batches from the Dispatcher.
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch Batch) error
}

// DispatcherConfig holds batching settings.
type DispatcherConfig struct {
	// BatchSize is the number of tasks that triggers a dispatch.
	BatchSize int
	// MaxPendingBatches bounds batches waiting for hand-off. When full, consumption
	// pauses until the worker pool accepts more work.
	MaxPendingBatches int
	AckMode           AckMode
	// FlushInterval dispatches a partial batch after this long without one filling.
	// Zero disables time-based flushing.
	FlushInterval time.Duration
	// ReconnectDelay is the wait before consuming again after the queue connection
	// is lost or cannot be established.
	ReconnectDelay time.Duration
}

// DispatcherStats are cumulative dispatcher counters.
type DispatcherStats struct {
	Received   int64 `json:"received"`
	Malformed  int64 `json:"malformed"`
	Batches    int64 `json:"batches"`
	Reconnects int64 `json:"reconnects"`
}

// Dispatcher consumes tasks from a queue, groups them into batches and hands the
// batches to a BatchHandler. Run is the single reader of the queue; the batch
// buffer is owned by it and never shared.
type Dispatcher struct {
	reader  QueueReader
	handler BatchHandler
	config  DispatcherConfig
	logger  *slog.Logger

	received   atomic.Int64
	malformed  atomic.Int64
	batches    atomic.Int64
	reconnects atomic.Int64
}

var errConnectionLost = errors.New("queue delivery channel closed")

// NewDispatcher creates a Dispatcher.
func NewDispatcher(reader QueueReader, handler BatchHandler, config DispatcherConfig, logger *slog.Logger) (*Dispatcher, error) {
	if reader == nil {
		return nil, errors.New("queue reader cannot be nil")
	}
	if handler == nil {
		return nil, errors.New("batch handler cannot be nil")
	}
	if config.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", config.BatchSize)
	}
	if config.MaxPendingBatches < 1 {
		config.MaxPendingBatches = 1
	}
	if config.AckMode == "" {
		config.AckMode = AckOnReceipt
	}
	if _, err := ParseAckMode(string(config.AckMode)); err != nil {
		return nil, err
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	return &Dispatcher{
		reader:  reader,
		handler: handler,
		config:  config,
		logger:  logger.With("component", "dispatcher"),
	}, nil
}

// accumulator is the batch buffer. It is only touched by the Run goroutine.
type accumulator struct {
	tasks []Task
	acks  []func() error
}

func (a *accumulator) len() int { return len(a.tasks) }

func (a *accumulator) reset(capacity int) {
	a.tasks = make([]Task, 0, capacity)
	a.acks = make([]func() error, 0, capacity)
}

// Run consumes until ctx is cancelled, reconnecting after a fixed delay whenever the
// queue connection fails. On shutdown, a partial batch of already-acknowledged tasks
// is dispatched and Run returns once every pending batch has been handed off.
func (d *Dispatcher) Run(ctx context.Context) error {
	pending := make(chan Batch, d.config.MaxPendingBatches)
	handoffDone := make(chan struct{})

	// Batches already dispatched must still be executed after shutdown begins.
	handoffCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(handoffDone)
		for batch := range pending {
			if err := d.handler.HandleBatch(handoffCtx, batch); err != nil {
				d.logger.Error("batch hand-off failed",
					"batch", batch.Number,
					"error", err)
			}
		}
	}()

	acc := &accumulator{}
	acc.reset(d.config.BatchSize)

	d.logger.Info("dispatcher started",
		"batch_size", d.config.BatchSize,
		"ack_mode", d.config.AckMode,
		"flush_interval", d.config.FlushInterval)

	backoff := retry.NewConstant(d.config.ReconnectDelay)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		deliveries, err := d.reader.Consume(ctx)
		if err != nil {
			d.reconnects.Add(1)
			d.logger.Warn("failed to start consuming, retrying",
				"delay", d.config.ReconnectDelay,
				"error", err)
			return retry.RetryableError(err)
		}

		d.logger.Info("consuming from queue")
		if err := d.consume(ctx, deliveries, acc, pending); err != nil {
			d.reconnects.Add(1)
			d.logger.Warn("queue connection lost, reconnecting",
				"delay", d.config.ReconnectDelay,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})

	if acc.len() > 0 {
		if d.config.AckMode == AckOnReceipt {
			d.logger.Info("flushing partial batch on shutdown", "tasks", acc.len())
			d.flush(acc, pending)
		} else {
			d.logger.Info("leaving unacknowledged tasks for redelivery", "tasks", acc.len())
		}
	}
	close(pending)
	<-handoffDone

	d.logger.Info("dispatcher stopped")
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// consume reads deliveries until ctx is done (nil) or the channel closes
// (errConnectionLost).
func (d *Dispatcher) consume(ctx context.Context, deliveries <-chan Delivery, acc *accumulator, pending chan<- Batch) error {
	var tick <-chan time.Time
	if d.config.FlushInterval > 0 {
		ticker := time.NewTicker(d.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-tick:
			if acc.len() > 0 {
				d.logger.Debug("flush interval elapsed", "tasks", acc.len())
				d.flush(acc, pending)
			}

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				if d.config.AckMode == AckOnCompletion && acc.len() > 0 {
					// The broker redelivers unacknowledged messages on the next connection.
					d.logger.Warn("discarding unacknowledged tasks after connection loss",
						"tasks", acc.len())
					acc.reset(d.config.BatchSize)
				}
				return errConnectionLost
			}
			d.accept(delivery, acc, pending)
		}
	}
}

func (d *Dispatcher) accept(delivery Delivery, acc *accumulator, pending chan<- Batch) {
	d.received.Add(1)

	t, err := DecodeTask(delivery.Body)
	if err != nil {
		d.malformed.Add(1)
		d.logger.Warn("dropping malformed task", "error", err, "size", len(delivery.Body))
		if err := delivery.Acknowledge(); err != nil {
			d.logger.Error("failed to acknowledge malformed task", "error", err)
		}
		return
	}

	var ack func() error
	if d.config.AckMode == AckOnReceipt {
		if err := delivery.Acknowledge(); err != nil {
			// Unacknowledged, the message returns to the queue; processing it here too
			// would duplicate it.
			d.logger.Error("failed to acknowledge task, skipping",
				"task_id", t.ID,
				"error", err)
			return
		}
	} else {
		ack = delivery.Acknowledge
	}

	acc.tasks = append(acc.tasks, t)
	acc.acks = append(acc.acks, ack)

	d.logger.Debug("task accepted",
		"task_id", t.ID,
		"user", t.User,
		"documents", len(t.DocumentRefs),
		"buffered", acc.len())

	if acc.len() >= d.config.BatchSize {
		d.flush(acc, pending)
	}
}

// flush swaps the buffer for an empty one and queues the full batch for hand-off.
// When the hand-off queue is full it blocks, pausing consumption.
func (d *Dispatcher) flush(acc *accumulator, pending chan<- Batch) {
	batch := Batch{
		Number: d.batches.Add(1),
		Tasks:  acc.tasks,
		acks:   acc.acks,
	}
	acc.reset(d.config.BatchSize)

	select {
	case pending <- batch:
	default:
		d.logger.Warn("hand-off queue full, pausing consumption",
			"batch", batch.Number,
			"max_pending_batches", d.config.MaxPendingBatches)
		pending <- batch
	}

	d.logger.Info("batch dispatched",
		"batch", batch.Number,
		"tasks", len(batch.Tasks))
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Received:   d.received.Load(),
		Malformed:  d.malformed.Load(),
		Batches:    d.batches.Load(),
		Reconnects: d.reconnects.Load(),
	}
}
