package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrEmptyChannel is returned when a Publisher is created without a channel name.
var ErrEmptyChannel = errors.New("broadcast channel name cannot be empty")

// Publisher serializes outcomes and pushes them onto a single broadcast channel.
type Publisher struct {
	broadcaster Broadcaster
	channel     string
	logger      *slog.Logger
}

// NewPublisher creates a Publisher for channel.
func NewPublisher(broadcaster Broadcaster, channel string, logger *slog.Logger) (*Publisher, error) {
	if broadcaster == nil {
		return nil, errors.New("broadcaster cannot be nil")
	}
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	return &Publisher{
		broadcaster: broadcaster,
		channel:     channel,
		logger:      logger.With("component", "outcome_publisher", "channel", channel),
	}, nil
}

// PublishOutcome broadcasts outcome as a UTF-8 JSON string.
func (p *Publisher) PublishOutcome(ctx context.Context, outcome Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	if err := p.broadcaster.Publish(ctx, p.channel, payload); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}

	p.logger.DebugContext(ctx, "outcome published",
		"user", outcome.User,
		"pdf_id", outcome.DocumentRef,
		"failed", outcome.Failed())
	return nil
}
