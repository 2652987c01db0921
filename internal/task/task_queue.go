package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Delivery is a message received from a queue together with its acknowledgment.
type Delivery struct {
	Body []byte
	ack  func() error
}

// NewDelivery wraps a message body and the function that acknowledges it.
func NewDelivery(body []byte, ack func() error) Delivery {
	return Delivery{Body: body, ack: ack}
}

// Acknowledge removes the message from the queue.
func (d Delivery) Acknowledge() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// QueueReader provides consuming access to a queue.
// The returned channel is closed when the underlying connection is lost or ctx is done.
type QueueReader interface {
	Consume(ctx context.Context) (<-chan Delivery, error)
}

// QueueWriter provides publishing access to a queue.
type QueueWriter interface {
	Publish(ctx context.Context, body []byte) error
}

// MemoryQueue is an in-process queue satisfying both QueueReader and QueueWriter.
// It is not durable, and messages handed to a consumer are not redelivered if
// they are never acknowledged.
type MemoryQueue struct {
	messages chan []byte
	logger   *slog.Logger
	mu       sync.RWMutex
	closed   bool
	acked    atomic.Int64
}

var (
	_ QueueReader = (*MemoryQueue)(nil)
	_ QueueWriter = (*MemoryQueue)(nil)
)

// NewMemoryQueue creates a new queue with the specified buffer size
func NewMemoryQueue(size int, logger *slog.Logger) *MemoryQueue {
	return &MemoryQueue{
		messages: make(chan []byte, size),
		logger:   logger,
	}
}

// Publish adds a message to the queue.
// Returns an error if the queue is full or closed
func (q *MemoryQueue) Publish(_ context.Context, body []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.messages <- body:
		q.logger.Debug("message enqueued",
			"queue_len", len(q.messages),
			"queue_cap", cap(q.messages))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.messages))
	}
}

// Consume starts delivering queued messages. The returned channel closes when ctx is
// done or the queue is closed and drained.
func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed && len(q.messages) == 0 {
		return nil, ErrQueueClosed
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case body, ok := <-q.messages:
				if !ok {
					return
				}
				d := NewDelivery(body, func() error {
					q.acked.Add(1)
					return nil
				})
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// QueueLength returns the number of messages waiting to be consumed.
func (q *MemoryQueue) QueueLength(context.Context) (int, error) {
	return len(q.messages), nil
}

// Acked returns how many deliveries have been acknowledged.
func (q *MemoryQueue) Acked() int64 {
	return q.acked.Load()
}

// Close closes the queue, preventing further publishing
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.messages)
		q.logger.Info("memory queue closed")
	}
}
