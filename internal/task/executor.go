package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/phrazzld/ragpipe/internal/cache"
	"github.com/phrazzld/ragpipe/internal/events"
	"github.com/phrazzld/ragpipe/internal/generation"
	"github.com/phrazzld/ragpipe/internal/store"
)

// AnswerCache is the cache-aside store used by the executor.
type AnswerCache interface {
	Lookup(ctx context.Context, key string) (cache.Entry, bool, error)
	Store(ctx context.Context, key string, entry cache.Entry) error
}

// OutcomePublisher broadcasts item outcomes.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome events.Outcome) error
}

// ExecutorConfig holds per-item execution settings.
type ExecutorConfig struct {
	// GenerateTimeout bounds each generator call. Zero disables the deadline.
	GenerateTimeout time.Duration
}

// Stats are cumulative executor counters.
type Stats struct {
	Processed   int64 `json:"processed"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	Failures    int64 `json:"failures"`
}

// Executor processes single items: cache lookup, generation on miss, persistence,
// cache write on miss, and outcome broadcast, in that order.
type Executor struct {
	cache     AnswerCache
	generator generation.Generator
	sink      store.ResultStore
	publisher OutcomePublisher
	config    ExecutorConfig
	logger    *slog.Logger

	processed atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	failures  atomic.Int64
}

// NewExecutor creates an Executor. All collaborators are required.
func NewExecutor(
	answers AnswerCache,
	generator generation.Generator,
	sink store.ResultStore,
	publisher OutcomePublisher,
	config ExecutorConfig,
	logger *slog.Logger,
) (*Executor, error) {
	if answers == nil {
		return nil, errors.New("answer cache cannot be nil")
	}
	if generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if sink == nil {
		return nil, errors.New("result store cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("outcome publisher cannot be nil")
	}
	return &Executor{
		cache:     answers,
		generator: generator,
		sink:      sink,
		publisher: publisher,
		config:    config,
		logger:    logger.With("component", "item_executor"),
	}, nil
}

// Process runs one item to a terminal Result. It never panics and never returns
// without broadcasting an outcome.
func (e *Executor) Process(ctx context.Context, item Item) Result {
	log := e.logger.With(
		"task_id", item.TaskID,
		"user", item.User,
		"document_ref", item.DocumentRef)

	key := cache.Fingerprint(item.DocumentRef, item.Question)

	entry, hit, err := e.cache.Lookup(ctx, key)
	if err != nil {
		log.WarnContext(ctx, "cache lookup failed, treating as miss", "error", err)
		hit = false
	}

	var (
		answer   string
		model    string
		metadata json.RawMessage
	)

	if hit {
		e.hits.Add(1)
		answer = entry.Answer
		model = CacheModel
		metadata = entry.Metadata
	} else {
		e.misses.Add(1)
		gen, err := e.generate(ctx, item)
		if err != nil {
			kind := ErrorKindGeneratorFailed
			if errors.Is(err, context.DeadlineExceeded) {
				kind = ErrorKindGeneratorTimeout
			}
			e.failures.Add(1)
			e.processed.Add(1)
			log.ErrorContext(ctx, "answer generation failed",
				"error_kind", kind,
				"error", err)

			res := failed(item, kind, err)
			if err := e.publisher.PublishOutcome(ctx, res.Outcome); err != nil {
				log.ErrorContext(ctx, "failed to publish error outcome", "error", err)
			}
			return res
		}
		answer = gen.Text
		model = gen.Model
		metadata = encodeMetadata(gen.Metadata, log)
	}
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	record := &store.ResultRecord{
		User:      item.User,
		Question:  item.Question,
		Answer:    answer,
		ModelName: model,
		CacheHit:  hit,
		Metadata:  metadata,
	}
	if err := e.sink.InsertResult(ctx, record); err != nil {
		log.ErrorContext(ctx, "failed to persist result", "error", err)
	}

	if !hit {
		if err := e.cache.Store(ctx, key, cache.Entry{Answer: answer, Metadata: metadata}); err != nil {
			log.WarnContext(ctx, "failed to cache answer", "error", err)
		}
	}

	e.processed.Add(1)
	res := succeeded(item, answer, model, hit)
	if err := e.publisher.PublishOutcome(ctx, res.Outcome); err != nil {
		log.ErrorContext(ctx, "failed to publish outcome", "error", err)
	}

	log.InfoContext(ctx, "item processed",
		"cache_hit", hit,
		"llm_model", model)
	return res
}

type generated struct {
	answer generation.Answer
	err    error
}

// generate calls the generator under the configured deadline. The call runs in its
// own goroutine so a generator that ignores ctx cannot hold the worker past the
// deadline.
func (e *Executor) generate(ctx context.Context, item Item) (generation.Answer, error) {
	if e.config.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.GenerateTimeout)
		defer cancel()
	}

	done := make(chan generated, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generated{err: fmt.Errorf("%w: %v", ErrGeneratorPanic, r)}
			}
		}()
		ans, err := e.generator.Generate(ctx, item.Question, item.DocumentRef)
		done <- generated{answer: ans, err: err}
	}()

	select {
	case g := <-done:
		return g.answer, g.err
	case <-ctx.Done():
		return generation.Answer{}, fmt.Errorf("generation aborted: %w", ctx.Err())
	}
}

func encodeMetadata(meta map[string]any, log *slog.Logger) json.RawMessage {
	if meta == nil {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		log.Warn("failed to encode generation metadata", "error", err)
		return nil
	}
	return raw
}

// Stats returns a snapshot of the executor counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Processed:   e.processed.Load(),
		CacheHits:   e.hits.Load(),
		CacheMisses: e.misses.Load(),
		Failures:    e.failures.Load(),
	}
}
