package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ResultRecord is the persisted outcome of one processed item.
// Records are append-only: they are inserted once and never updated or deleted.
type ResultRecord struct {
	ID        int64
	User      string
	Question  string
	Answer    string
	ModelName string
	CacheHit  bool
	// Metadata is an opaque JSON document; nil is stored as NULL.
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// Validate checks the fields every result sink requires.
func (r *ResultRecord) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("%w: question is required", ErrInvalidEntity)
	}
	if strings.TrimSpace(r.ModelName) == "" {
		return fmt.Errorf("%w: model name is required", ErrInvalidEntity)
	}
	if len(r.Metadata) > 0 && !json.Valid(r.Metadata) {
		return fmt.Errorf("%w: metadata is not valid JSON", ErrInvalidEntity)
	}
	return nil
}

// ResultStore is the append-only result sink.
type ResultStore interface {
	// InsertResult persists the record and fills in its ID and CreatedAt.
	InsertResult(ctx context.Context, record *ResultRecord) error
}
