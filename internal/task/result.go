package task

import (
	"github.com/phrazzld/ragpipe/internal/events"
)

// CacheModel is recorded as the model name for answers served from the cache.
const CacheModel = "CACHE"

// ErrorKind classifies why an item failed.
type ErrorKind string

// Item failure kinds.
const (
	ErrorKindGeneratorFailed  ErrorKind = "generator_failed"
	ErrorKindGeneratorTimeout ErrorKind = "generator_timeout"
)

// Result is the terminal state of one item: either OK with an Outcome, or failed with
// a Kind and the underlying error.
type Result struct {
	Item     Item
	Outcome  events.Outcome
	CacheHit bool
	Kind     ErrorKind
	Err      error
}

// OK reports whether the item produced an answer.
func (r Result) OK() bool {
	return r.Kind == ""
}

func succeeded(item Item, answer, model string, cacheHit bool) Result {
	return Result{
		Item: item,
		Outcome: events.Outcome{
			User:        item.User,
			Question:    item.Question,
			DocumentRef: item.DocumentRef,
			Answer:      answer,
			Model:       model,
		},
		CacheHit: cacheHit,
	}
}

func failed(item Item, kind ErrorKind, err error) Result {
	return Result{
		Item: item,
		Outcome: events.Outcome{
			User:        item.User,
			Question:    item.Question,
			DocumentRef: item.DocumentRef,
			Error:       err.Error(),
			ErrorKind:   string(kind),
		},
		Kind: kind,
		Err:  err,
	}
}
