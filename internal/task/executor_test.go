package task

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/ragpipe/internal/cache"
	"github.com/phrazzld/ragpipe/internal/events"
	"github.com/phrazzld/ragpipe/internal/generation"
	"github.com/phrazzld/ragpipe/internal/platform/logger"
	"github.com/phrazzld/ragpipe/internal/platform/memory"
	"github.com/phrazzld/ragpipe/internal/store"
	"github.com/phrazzld/ragpipe/internal/task/mocks"
)

type executorFixture struct {
	executor  *Executor
	logs      *logger.TestLogBuffer
	kv        *memory.KV
	generator *mocks.Generator
	sink      *mocks.ResultStore
	publisher *mocks.OutcomePublisher
}

func newExecutorFixture(t *testing.T, cfg ExecutorConfig) *executorFixture {
	t.Helper()

	kv, err := memory.NewKV(100, time.Hour)
	require.NoError(t, err)
	answers, err := cache.NewAnswerCache(kv, time.Hour)
	require.NoError(t, err)

	logs, log := logger.NewTestLogger(t)
	f := &executorFixture{
		logs: logs,
		kv:   kv,
		generator: &mocks.Generator{
			GenerateFunc: func(_ context.Context, question, documentRef string) (generation.Answer, error) {
				return generation.Answer{
					Text:     "answer about " + documentRef,
					Metadata: map[string]any{"intent": "general"},
					Model:    "GPT-3.5",
				}, nil
			},
		},
		sink:      &mocks.ResultStore{},
		publisher: &mocks.OutcomePublisher{},
	}
	f.executor, err = NewExecutor(answers, f.generator, f.sink, f.publisher, cfg, log)
	require.NoError(t, err)
	return f
}

func testItem(documentRef string) Item {
	return Item{TaskID: uuid.New(), User: "alice", Question: "What is X?", DocumentRef: documentRef}
}

func TestNewExecutorRequiresCollaborators(t *testing.T) {
	kv, err := memory.NewKV(1, time.Hour)
	require.NoError(t, err)
	answers, err := cache.NewAnswerCache(kv, time.Hour)
	require.NoError(t, err)
	log := testLogger(t)

	_, err = NewExecutor(nil, &mocks.Generator{}, &mocks.ResultStore{}, &mocks.OutcomePublisher{}, ExecutorConfig{}, log)
	assert.Error(t, err)
	_, err = NewExecutor(answers, nil, &mocks.ResultStore{}, &mocks.OutcomePublisher{}, ExecutorConfig{}, log)
	assert.Error(t, err)
	_, err = NewExecutor(answers, &mocks.Generator{}, nil, &mocks.OutcomePublisher{}, ExecutorConfig{}, log)
	assert.Error(t, err)
	_, err = NewExecutor(answers, &mocks.Generator{}, &mocks.ResultStore{}, nil, ExecutorConfig{}, log)
	assert.Error(t, err)
}

func TestExecutorCacheMissThenHit(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{})
	ctx := context.Background()

	first := f.executor.Process(ctx, testItem("a.pdf"))
	require.True(t, first.OK())
	assert.False(t, first.CacheHit)
	assert.Equal(t, "GPT-3.5", first.Outcome.Model)
	assert.Equal(t, "answer about a.pdf", first.Outcome.Answer)

	second := f.executor.Process(ctx, testItem("a.pdf"))
	require.True(t, second.OK())
	assert.True(t, second.CacheHit)
	assert.Equal(t, CacheModel, second.Outcome.Model)
	assert.Equal(t, first.Outcome.Answer, second.Outcome.Answer)

	assert.Equal(t, 1, f.generator.Calls(), "a hit must not invoke the generator")

	records := f.sink.Records()
	require.Len(t, records, 2)
	assert.False(t, records[0].CacheHit)
	assert.Equal(t, "GPT-3.5", records[0].ModelName)
	assert.True(t, records[1].CacheHit)
	assert.Equal(t, CacheModel, records[1].ModelName)
	assert.JSONEq(t, `{"intent":"general"}`, string(records[1].Metadata), "hits return cached metadata")

	assert.Equal(t, Stats{Processed: 2, CacheHits: 1, CacheMisses: 1}, f.executor.Stats())
}

func TestExecutorCacheIsSharedAcrossUsers(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{})
	ctx := context.Background()

	f.executor.Process(ctx, testItem("a.pdf"))
	other := testItem("a.pdf")
	other.User = "bob"
	res := f.executor.Process(ctx, other)

	assert.True(t, res.CacheHit)
	assert.Equal(t, "bob", res.Outcome.User)
}

func TestExecutorRecordAndOutcomePerItem(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{})
	ctx := context.Background()

	refs := []string{"a.pdf", "b.pdf", "c.pdf", "a.pdf"}
	for _, ref := range refs {
		require.True(t, f.executor.Process(ctx, testItem(ref)).OK())
	}

	assert.Len(t, f.sink.Records(), len(refs))
	outcomes := f.publisher.Outcomes()
	require.Len(t, outcomes, len(refs))
	for i, o := range outcomes {
		assert.Equal(t, refs[i], o.DocumentRef)
		assert.False(t, o.Failed())
	}
}

func TestExecutorGeneratorFailure(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{})
	f.generator.GenerateFunc = func(context.Context, string, string) (generation.Answer, error) {
		return generation.Answer{}, errors.New("model exploded")
	}

	res := f.executor.Process(context.Background(), testItem("a.pdf"))

	assert.False(t, res.OK())
	assert.Equal(t, ErrorKindGeneratorFailed, res.Kind)
	assert.Empty(t, f.sink.Records(), "failed items must not be persisted")

	outcomes := f.publisher.Outcomes()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "generator_failed", outcomes[0].ErrorKind)
	assert.Contains(t, outcomes[0].Error, "model exploded")
	assert.Empty(t, outcomes[0].Answer)

	_, found, err := f.kv.Get(context.Background(), cache.Fingerprint("a.pdf", "What is X?"))
	require.NoError(t, err)
	assert.False(t, found, "failed items must not be cached")
	assert.Equal(t, int64(1), f.executor.Stats().Failures)

	logger.AssertLogContains(t, f.logs, "answer generation failed")
	logger.AssertLogField(t, f.logs, "error_kind", "generator_failed")
	logger.AssertLogField(t, f.logs, "document_ref", "a.pdf")
}

func TestExecutorGeneratorTimeout(t *testing.T) {
	t.Run("generator honours context", func(t *testing.T) {
		f := newExecutorFixture(t, ExecutorConfig{GenerateTimeout: 20 * time.Millisecond})
		f.generator.GenerateFunc = func(ctx context.Context, _, _ string) (generation.Answer, error) {
			<-ctx.Done()
			return generation.Answer{}, ctx.Err()
		}

		res := f.executor.Process(context.Background(), testItem("a.pdf"))
		assert.Equal(t, ErrorKindGeneratorTimeout, res.Kind)
	})

	t.Run("generator ignores context", func(t *testing.T) {
		f := newExecutorFixture(t, ExecutorConfig{GenerateTimeout: 20 * time.Millisecond})
		f.generator.GenerateFunc = func(context.Context, string, string) (generation.Answer, error) {
			time.Sleep(300 * time.Millisecond)
			return generation.Answer{Text: "late", Model: "GPT-3.5"}, nil
		}

		start := time.Now()
		res := f.executor.Process(context.Background(), testItem("a.pdf"))
		assert.Equal(t, ErrorKindGeneratorTimeout, res.Kind)
		assert.Less(t, time.Since(start), 250*time.Millisecond)
		assert.Empty(t, f.sink.Records())
	})
}

func TestExecutorGeneratorPanic(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{})
	f.generator.GenerateFunc = func(context.Context, string, string) (generation.Answer, error) {
		panic("boom")
	}

	res := f.executor.Process(context.Background(), testItem("a.pdf"))
	assert.Equal(t, ErrorKindGeneratorFailed, res.Kind)
	assert.ErrorIs(t, res.Err, ErrGeneratorPanic)
}

func TestExecutorPersistenceFailureStillPublishes(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{})
	f.sink.InsertResultFunc = func(context.Context, *store.ResultRecord) error {
		return errors.New("disk full")
	}

	res := f.executor.Process(context.Background(), testItem("a.pdf"))
	assert.True(t, res.OK())
	assert.Len(t, f.publisher.Outcomes(), 1)

	_, found, err := f.kv.Get(context.Background(), cache.Fingerprint("a.pdf", "What is X?"))
	require.NoError(t, err)
	assert.True(t, found, "cache write must not depend on persistence")
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (failingKV) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

func TestExecutorCacheUnavailableTreatedAsMiss(t *testing.T) {
	answers, err := cache.NewAnswerCache(failingKV{}, time.Hour)
	require.NoError(t, err)
	gen := &mocks.Generator{}
	sink := &mocks.ResultStore{}
	pub := &mocks.OutcomePublisher{}
	logs, log := logger.NewTestLogger(t)
	e, err := NewExecutor(answers, gen, sink, pub, ExecutorConfig{}, log)
	require.NoError(t, err)

	res := e.Process(context.Background(), testItem("a.pdf"))
	assert.True(t, res.OK())
	assert.False(t, res.CacheHit)
	assert.Equal(t, 1, gen.Calls())
	assert.Len(t, sink.Records(), 1)
	assert.Len(t, pub.Outcomes(), 1)

	logger.AssertLogContains(t, logs, "cache lookup failed, treating as miss")
	logger.AssertLogContains(t, logs, "failed to cache answer")
	logger.AssertLogField(t, logs, "level", "WARN")
}

func TestExecutorStoresValidMetadata(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{})
	f.generator.GenerateFunc = func(context.Context, string, string) (generation.Answer, error) {
		return generation.Answer{Text: "a", Model: "GPT-4"}, nil
	}

	f.executor.Process(context.Background(), testItem("a.pdf"))
	records := f.sink.Records()
	require.Len(t, records, 1)
	assert.True(t, json.Valid(records[0].Metadata))
}

// stepRecorder records the order in which the executor touches its collaborators.
type stepRecorder struct {
	mu      sync.Mutex
	steps   []string
	entries map[string]cache.Entry
}

func newStepRecorder() *stepRecorder {
	return &stepRecorder{entries: make(map[string]cache.Entry)}
}

func (r *stepRecorder) record(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *stepRecorder) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

func (r *stepRecorder) Lookup(_ context.Context, key string) (cache.Entry, bool, error) {
	r.record("lookup")
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok, nil
}

func (r *stepRecorder) Store(_ context.Context, key string, entry cache.Entry) error {
	r.record("store")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = entry
	return nil
}

func (r *stepRecorder) InsertResult(context.Context, *store.ResultRecord) error {
	r.record("persist")
	return nil
}

func (r *stepRecorder) PublishOutcome(context.Context, events.Outcome) error {
	r.record("publish")
	return nil
}

func (r *stepRecorder) generator(err error) *mocks.Generator {
	return &mocks.Generator{
		GenerateFunc: func(_ context.Context, _, documentRef string) (generation.Answer, error) {
			r.record("generate")
			if err != nil {
				return generation.Answer{}, err
			}
			return generation.Answer{Text: "answer about " + documentRef, Model: "GPT-3.5"}, nil
		},
	}
}

func TestExecutorStepOrder(t *testing.T) {
	tests := []struct {
		name      string
		cached    bool
		genErr    error
		wantSteps []string
	}{
		{
			name:      "miss",
			wantSteps: []string{"lookup", "generate", "persist", "store", "publish"},
		},
		{
			name:      "hit",
			cached:    true,
			wantSteps: []string{"lookup", "persist", "publish"},
		},
		{
			name:      "generator failure",
			genErr:    errors.New("model exploded"),
			wantSteps: []string{"lookup", "generate", "publish"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newStepRecorder()
			item := testItem("a.pdf")
			if tt.cached {
				rec.entries[cache.Fingerprint(item.DocumentRef, item.Question)] = cache.Entry{
					Answer:   "cached answer",
					Metadata: json.RawMessage(`{}`),
				}
			}

			e, err := NewExecutor(rec, rec.generator(tt.genErr), rec, rec, ExecutorConfig{}, testLogger(t))
			require.NoError(t, err)

			res := e.Process(context.Background(), item)
			assert.Equal(t, tt.genErr == nil, res.OK())
			assert.Equal(t, tt.wantSteps, rec.Steps())
		})
	}
}
