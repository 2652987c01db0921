// Package mocks provides mock implementations for testing task components.
package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/ragpipe/internal/events"
	"github.com/phrazzld/ragpipe/internal/generation"
	"github.com/phrazzld/ragpipe/internal/store"
)

// Generator is a simple implementation of the generation.Generator interface.
type Generator struct {
	GenerateFunc func(ctx context.Context, question, documentRef string) (generation.Answer, error)

	mu    sync.Mutex
	calls int
}

// Generate produces an answer for a question against one document.
func (m *Generator) Generate(ctx context.Context, question, documentRef string) (generation.Answer, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, question, documentRef)
	}
	return generation.Answer{Text: "answer for " + documentRef, Model: "GPT-3.5"}, nil
}

// Calls returns how many times Generate was invoked.
func (m *Generator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ResultStore is a simple in-memory implementation of the store.ResultStore interface.
type ResultStore struct {
	InsertResultFunc func(ctx context.Context, record *store.ResultRecord) error

	mu      sync.Mutex
	records []store.ResultRecord
}

// InsertResult records the result, or delegates to InsertResultFunc when set.
func (m *ResultStore) InsertResult(ctx context.Context, record *store.ResultRecord) error {
	if m.InsertResultFunc != nil {
		if err := m.InsertResultFunc(ctx, record); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *record)
	return nil
}

// Records returns a copy of every inserted record.
func (m *ResultStore) Records() []store.ResultRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.ResultRecord(nil), m.records...)
}

// OutcomePublisher is a simple implementation of the task.OutcomePublisher interface.
type OutcomePublisher struct {
	PublishOutcomeFunc func(ctx context.Context, outcome events.Outcome) error

	mu       sync.Mutex
	outcomes []events.Outcome
}

// PublishOutcome records the outcome, or delegates to PublishOutcomeFunc when set.
func (m *OutcomePublisher) PublishOutcome(ctx context.Context, outcome events.Outcome) error {
	if m.PublishOutcomeFunc != nil {
		if err := m.PublishOutcomeFunc(ctx, outcome); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	return nil
}

// Outcomes returns a copy of every published outcome.
func (m *OutcomePublisher) Outcomes() []events.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Outcome(nil), m.outcomes...)
}
