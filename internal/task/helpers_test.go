package task

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/phrazzld/ragpipe/internal/platform/logger"
)

// testLogger returns a debug-level JSON logger writing to a per-test buffer.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	_, log := logger.NewTestLogger(t)
	return log
}

// recordingHandler is a BatchHandler that stores every batch it receives.
type recordingHandler struct {
	mu      sync.Mutex
	batches []Batch
}

func (h *recordingHandler) HandleBatch(_ context.Context, b Batch) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, b)
	return nil
}

func (h *recordingHandler) Batches() []Batch {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Batch(nil), h.batches...)
}

// processorFunc adapts a function to ItemProcessor.
type processorFunc func(ctx context.Context, item Item) Result

func (f processorFunc) Process(ctx context.Context, item Item) Result {
	return f(ctx, item)
}
