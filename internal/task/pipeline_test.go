package task_test

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/ragpipe/internal/cache"
	"github.com/phrazzld/ragpipe/internal/events"
	"github.com/phrazzld/ragpipe/internal/generation"
	"github.com/phrazzld/ragpipe/internal/platform/logger"
	"github.com/phrazzld/ragpipe/internal/platform/memory"
	"github.com/phrazzld/ragpipe/internal/platform/sqlite"
	"github.com/phrazzld/ragpipe/internal/task"
	"github.com/phrazzld/ragpipe/internal/task/mocks"
	"github.com/phrazzld/ragpipe/internal/testdb"
)

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []events.Outcome
}

func (r *outcomeRecorder) HandleOutcome(_ context.Context, o events.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *outcomeRecorder) Outcomes() []events.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Outcome(nil), r.outcomes...)
}

type storedResult struct {
	User     string
	Answer   string
	Model    string
	CacheHit bool
}

type pipeline struct {
	queue     *task.MemoryQueue
	db        *sql.DB
	outcomes  *outcomeRecorder
	generator *mocks.Generator
	executor  *task.Executor
}

func (p *pipeline) results(t *testing.T) []storedResult {
	t.Helper()
	rows, err := p.db.Query(`SELECT user, answer, llm_model, cache_hit FROM query_results ORDER BY id`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var out []storedResult
	for rows.Next() {
		var r storedResult
		require.NoError(t, rows.Scan(&r.User, &r.Answer, &r.Model, &r.CacheHit))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

// startPipeline wires the full pipeline in-process with the given batch size and
// runs the dispatcher until the test ends.
func startPipeline(t *testing.T, batchSize int) *pipeline {
	t.Helper()
	_, log := logger.NewTestLogger(t)
	ctx := context.Background()

	db := testdb.OpenSQLite(t)

	kv, err := memory.NewKV(100, time.Hour)
	require.NoError(t, err)
	answers, err := cache.NewAnswerCache(kv, time.Hour)
	require.NoError(t, err)

	broadcaster := events.NewInMemoryBroadcaster(log)
	recorder := &outcomeRecorder{}
	broadcaster.Subscribe("rag_results_channel", recorder)
	publisher, err := events.NewPublisher(broadcaster, "rag_results_channel", log)
	require.NoError(t, err)

	rag, err := generation.NewPipeline(generation.LocalRetriever{}, generation.LocalCompleter{}, generation.ModelConfig{
		LongModel:         "GPT-4",
		ShortModel:        "GPT-3.5",
		LongQuestionChars: 250,
	}, log)
	require.NoError(t, err)
	generator := &mocks.Generator{GenerateFunc: rag.Generate}

	executor, err := task.NewExecutor(answers, generator, sqlite.NewResultStore(db), publisher,
		task.ExecutorConfig{GenerateTimeout: 5 * time.Second}, log)
	require.NoError(t, err)

	pool, err := task.NewWorkerPool(executor, task.WorkerPoolConfig{WorkerCount: 2}, log)
	require.NoError(t, err)

	queue := task.NewMemoryQueue(10, log)
	dispatcher, err := task.NewDispatcher(queue, pool, task.DispatcherConfig{
		BatchSize:         batchSize,
		MaxPendingBatches: 2,
		ReconnectDelay:    10 * time.Millisecond,
	}, log)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(runCtx) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		assert.NoError(t, pool.Stop(5*time.Second))
	})

	return &pipeline{
		queue:     queue,
		db:        db,
		outcomes:  recorder,
		generator: generator,
		executor:  executor,
	}
}

const alicePayload = `{"user":"alice","question":"Summarize chapter 2","pdf_ids":["a.pdf","b.pdf"]}`

func answersByDocument(outcomes []events.Outcome) map[string]string {
	m := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		m[o.DocumentRef] = o.Answer
	}
	return m
}

func TestPipelineFirstSubmissionMissesCache(t *testing.T) {
	p := startPipeline(t, 1)

	require.NoError(t, p.queue.Publish(context.Background(), []byte(alicePayload)))
	require.Eventually(t, func() bool { return len(p.outcomes.Outcomes()) == 2 }, 5*time.Second, 10*time.Millisecond)

	outcomes := p.outcomes.Outcomes()
	docs := []string{outcomes[0].DocumentRef, outcomes[1].DocumentRef}
	sort.Strings(docs)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, docs)
	for _, o := range outcomes {
		assert.Equal(t, "alice", o.User)
		assert.Equal(t, "Summarize chapter 2", o.Question)
		assert.Equal(t, "GPT-4", o.Model)
		assert.NotEmpty(t, o.Answer)
		assert.False(t, o.Failed())
	}
	answers := answersByDocument(outcomes)
	assert.NotEqual(t, answers["a.pdf"], answers["b.pdf"], "answers must depend on the document")

	results := p.results(t)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.CacheHit)
		assert.Equal(t, "alice", r.User)
	}
	assert.Equal(t, 2, p.generator.Calls())
}

func TestPipelineResubmissionHitsCache(t *testing.T) {
	p := startPipeline(t, 1)
	ctx := context.Background()

	require.NoError(t, p.queue.Publish(ctx, []byte(alicePayload)))
	require.Eventually(t, func() bool { return len(p.outcomes.Outcomes()) == 2 }, 5*time.Second, 10*time.Millisecond)
	firstAnswers := answersByDocument(p.outcomes.Outcomes())

	require.NoError(t, p.queue.Publish(ctx, []byte(alicePayload)))
	require.Eventually(t, func() bool { return len(p.outcomes.Outcomes()) == 4 }, 5*time.Second, 10*time.Millisecond)

	second := p.outcomes.Outcomes()[2:]
	for _, o := range second {
		assert.Equal(t, task.CacheModel, o.Model)
		assert.Equal(t, firstAnswers[o.DocumentRef], o.Answer)
	}

	results := p.results(t)
	require.Len(t, results, 4)
	for _, r := range results[2:] {
		assert.True(t, r.CacheHit)
		assert.Equal(t, "CACHE", r.Model)
	}
	assert.Equal(t, 2, p.generator.Calls(), "cache hits must not invoke the generator")
	assert.Equal(t, task.Stats{Processed: 4, CacheHits: 2, CacheMisses: 2}, p.executor.Stats())
}

func TestPipelineMalformedPayloadProducesNothing(t *testing.T) {
	p := startPipeline(t, 1)
	ctx := context.Background()

	require.NoError(t, p.queue.Publish(ctx, []byte(`{"user":"alice"`)))
	require.NoError(t, p.queue.Publish(ctx, []byte(`{"user":"bob","question":"q","pdf_ids":["c.pdf"]}`)))

	require.Eventually(t, func() bool { return len(p.outcomes.Outcomes()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), p.queue.Acked())
	assert.Equal(t, "bob", p.outcomes.Outcomes()[0].User)
	assert.Len(t, p.results(t), 1)
}
