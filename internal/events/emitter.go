package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryBroadcaster is an in-process Broadcaster. It stores registered handlers
// per channel and dispatches every published outcome to them synchronously.
type InMemoryBroadcaster struct {
	handlers map[string][]OutcomeHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryBroadcaster creates a new instance of InMemoryBroadcaster.
func NewInMemoryBroadcaster(logger *slog.Logger) *InMemoryBroadcaster {
	return &InMemoryBroadcaster{
		handlers: make(map[string][]OutcomeHandler),
		logger:   logger.With("component", "in_memory_broadcaster"),
	}
}

// Subscribe adds a handler that receives every outcome published on channel.
func (b *InMemoryBroadcaster) Subscribe(channel string, handler OutcomeHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], handler)
	b.logger.Debug("registered outcome handler",
		"channel", channel,
		"handler_count", len(b.handlers[channel]))
}

var _ Broadcaster = (*InMemoryBroadcaster)(nil)

// Publish decodes payload and hands it to all handlers subscribed to channel.
// If any handler returns an error, the outcome will still be sent to all other handlers,
// and the first error encountered will be returned.
func (b *InMemoryBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	outcome, err := DecodeOutcome(payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	handlers := make([]OutcomeHandler, len(b.handlers[channel]))
	copy(handlers, b.handlers[channel])
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("no handlers registered for channel", "channel", channel)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleOutcome(ctx, outcome); err != nil {
			b.logger.Error("handler failed to process outcome",
				"error", err,
				"handler_index", i,
				"channel", channel,
				"user", outcome.User)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// LogHandler returns a handler that writes every outcome to logger.
func LogHandler(logger *slog.Logger) OutcomeHandler {
	return OutcomeHandlerFunc(func(ctx context.Context, o Outcome) error {
		if o.Failed() {
			logger.WarnContext(ctx, "outcome",
				"user", o.User,
				"pdf_id", o.DocumentRef,
				"error_kind", o.ErrorKind,
				"error", o.Error)
			return nil
		}
		logger.InfoContext(ctx, "outcome",
			"user", o.User,
			"pdf_id", o.DocumentRef,
			"llm_model", o.Model,
			"answer_length", len(o.Answer))
		return nil
	})
}
