package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Outcome is the broadcast payload describing one processed item.
// A successful outcome serializes to exactly
// {"user","question","pdf_id","answer","llm_model"}; failed items additionally carry
// error and error_kind, with answer and llm_model left empty.
type Outcome struct {
	User        string `json:"user"`
	Question    string `json:"question"`
	DocumentRef string `json:"pdf_id"`
	Answer      string `json:"answer"`
	Model       string `json:"llm_model"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
}

// Failed reports whether the outcome describes a failed item.
func (o Outcome) Failed() bool {
	return o.ErrorKind != ""
}

// DecodeOutcome parses a broadcast payload.
func DecodeOutcome(payload []byte) (Outcome, error) {
	var o Outcome
	if err := json.Unmarshal(payload, &o); err != nil {
		return Outcome{}, fmt.Errorf("failed to decode outcome: %w", err)
	}
	return o, nil
}

// OutcomeHandler defines an interface for components that consume broadcast outcomes.
type OutcomeHandler interface {
	// HandleOutcome processes the given outcome within the provided context.
	HandleOutcome(ctx context.Context, outcome Outcome) error
}

// OutcomeHandlerFunc adapts a function to the OutcomeHandler interface.
type OutcomeHandlerFunc func(ctx context.Context, outcome Outcome) error

// HandleOutcome calls f(ctx, outcome).
func (f OutcomeHandlerFunc) HandleOutcome(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

// Broadcaster pushes a serialized payload onto a named broadcast channel.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
