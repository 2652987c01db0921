package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
)

// ItemProcessor runs a single item to completion.
type ItemProcessor interface {
	Process(ctx context.Context, item Item) Result
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount bounds how many items execute concurrently.
	// If zero or negative, defaults to 1
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 4,
	}
}

// WorkerPool executes the items of dispatched batches with bounded concurrency.
// The bound is independent of the batch size.
type WorkerPool struct {
	pool      *ants.Pool
	processor ItemProcessor
	logger    *slog.Logger

	// wg tracks submitted items for clean shutdown
	wg sync.WaitGroup

	// resultHandler is called with every item result. If nil, results are only logged.
	resultHandler func(Result)
}

var _ BatchHandler = (*WorkerPool)(nil)

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(processor ItemProcessor, config WorkerPoolConfig, logger *slog.Logger) (*WorkerPool, error) {
	if processor == nil {
		return nil, errors.New("item processor cannot be nil")
	}

	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	log := logger.With("component", "worker_pool")
	pool, err := ants.NewPool(workerCount, ants.WithPanicHandler(func(p any) {
		log.Error("worker panic recovered", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &WorkerPool{
		pool:      pool,
		processor: processor,
		logger:    log,
	}, nil
}

// SetResultHandler sets a callback invoked after each item reaches a terminal state.
// It must be called before the first batch is handled.
func (p *WorkerPool) SetResultHandler(handler func(Result)) {
	p.resultHandler = handler
}

// HandleBatch submits every item of every task in the batch to the pool. Submission
// blocks while all workers are busy. In completion ack mode each task is acknowledged
// once all of its items have finished.
func (p *WorkerPool) HandleBatch(ctx context.Context, batch Batch) error {
	submitted := 0
	for i, t := range batch.Tasks {
		items := t.Items()
		ack := batch.ackFor(i)
		remaining := new(atomic.Int32)
		remaining.Store(int32(len(items)))

		for _, item := range items {
			p.wg.Add(1)
			err := p.pool.Submit(func() {
				defer p.wg.Done()
				res := p.processor.Process(ctx, item)
				if p.resultHandler != nil {
					p.resultHandler(res)
				}
				if remaining.Add(-1) == 0 && ack != nil {
					if err := ack(); err != nil {
						p.logger.Error("failed to acknowledge task",
							"task_id", t.ID,
							"batch", batch.Number,
							"error", err)
					}
				}
			})
			if err != nil {
				p.wg.Done()
				if errors.Is(err, ants.ErrPoolClosed) {
					err = ErrPoolStopped
				}
				return fmt.Errorf("batch %d: submitted %d items: %w", batch.Number, submitted, err)
			}
			submitted++
		}
	}

	p.logger.Debug("batch submitted",
		"batch", batch.Number,
		"tasks", len(batch.Tasks),
		"items", submitted,
		"running", p.pool.Running())
	return nil
}

// Running returns the number of items currently executing.
func (p *WorkerPool) Running() int {
	return p.pool.Running()
}

// Stop waits for submitted items to finish, up to timeout, then releases the pool.
func (p *WorkerPool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool", "running", p.pool.Running())

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.pool.Release()
		p.logger.Info("worker pool stopped")
		return nil
	case <-time.After(timeout):
		p.pool.Release()
		p.logger.Warn("worker pool stop timed out", "timeout", timeout)
		return ErrStopTimeout
	}
}
