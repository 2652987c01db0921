package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/ragpipe/internal/api"
	"github.com/phrazzld/ragpipe/internal/cache"
	"github.com/phrazzld/ragpipe/internal/config"
	"github.com/phrazzld/ragpipe/internal/events"
	"github.com/phrazzld/ragpipe/internal/generation"
	"github.com/phrazzld/ragpipe/internal/platform/gemini"
	"github.com/phrazzld/ragpipe/internal/platform/memory"
	"github.com/phrazzld/ragpipe/internal/platform/redis"
	"github.com/phrazzld/ragpipe/internal/task"
)

// shutdownTimeout bounds how long in-flight items may run after the dispatcher stops.
const shutdownTimeout = 30 * time.Second

// cacheBackend bundles the key-value store and the outcome broadcaster, which share
// a connection when Redis is used.
type cacheBackend struct {
	kv          cache.KV
	broadcaster events.Broadcaster
	check       api.CheckFunc
	close       func() error
}

// application holds the worker's dependencies and owns their shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db      *sql.DB
	backend cacheBackend

	executor   *task.Executor
	pool       *task.WorkerPool
	dispatcher *task.Dispatcher
	queue      api.QueueInspector
}

// newApplication wires the pipeline: result store, answer cache, outcome publisher,
// generator, executor, worker pool and dispatcher reading from reader. The inspector
// is optional and only feeds the stats endpoint.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	reader task.QueueReader,
	inspector api.QueueInspector,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		queue:  inspector,
	}

	ok := false
	defer func() {
		if !ok {
			app.cleanup()
		}
	}()

	db, results, err := setupDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	app.db = db

	app.backend, err = setupCache(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	answers, err := cache.NewAnswerCache(app.backend.kv, cfg.Cache.TTL())
	if err != nil {
		return nil, fmt.Errorf("failed to create answer cache: %w", err)
	}

	publisher, err := events.NewPublisher(app.backend.broadcaster, cfg.Cache.Channel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create outcome publisher: %w", err)
	}

	generator, err := setupGenerator(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	app.executor, err = task.NewExecutor(answers, generator, results, publisher, task.ExecutorConfig{
		GenerateTimeout: cfg.Worker.GenerateTimeout(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	app.pool, err = task.NewWorkerPool(app.executor, task.WorkerPoolConfig{
		WorkerCount: cfg.Worker.PoolSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	ackMode, err := task.ParseAckMode(cfg.Worker.AckMode)
	if err != nil {
		return nil, err
	}

	app.dispatcher, err = task.NewDispatcher(reader, app.pool, task.DispatcherConfig{
		BatchSize:         cfg.Worker.BatchSize,
		MaxPendingBatches: cfg.Worker.MaxPendingBatches,
		AckMode:           ackMode,
		FlushInterval:     cfg.Worker.FlushInterval(),
		ReconnectDelay:    cfg.Worker.ReconnectDelay(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	logger.Info("application initialized",
		"batch_size", cfg.Worker.BatchSize,
		"pool_size", cfg.Worker.PoolSize,
		"ack_mode", ackMode)

	ok = true
	return app, nil
}

// setupCache connects the cache driver named in cfg.
func setupCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (cacheBackend, error) {
	switch cfg.Driver {
	case "redis":
		client, err := redis.New(ctx, cfg, logger)
		if err != nil {
			return cacheBackend{}, err
		}
		return cacheBackend{
			kv:          client,
			broadcaster: client,
			check:       client.Ping,
			close:       client.Close,
		}, nil
	case "memory":
		kv, err := memory.NewKV(cfg.MemorySize, cfg.TTL())
		if err != nil {
			return cacheBackend{}, err
		}
		broadcaster := events.NewInMemoryBroadcaster(logger)
		broadcaster.Subscribe(cfg.Channel, events.LogHandler(logger.With("component", "outcome_log")))
		logger.Info("using in-process cache; answers do not survive restarts")
		return cacheBackend{kv: kv, broadcaster: broadcaster}, nil
	default:
		return cacheBackend{}, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}

// setupGenerator builds the answer pipeline over the configured model provider.
func setupGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Generator, error) {
	var completer generation.Completer
	switch cfg.Provider {
	case "local":
		completer = generation.LocalCompleter{}
	case "gemini":
		c, err := gemini.NewCompleter(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM completer: %w", err)
		}
		completer = c
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	pipeline, err := generation.NewPipeline(generation.LocalRetriever{TopK: cfg.RetrievalTopK}, completer, generation.ModelConfig{
		LongModel:         cfg.LongModel,
		ShortModel:        cfg.ShortModel,
		LongQuestionChars: cfg.LongQuestionChars,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer pipeline: %w", err)
	}

	logger.Info("answer generator initialized", "provider", cfg.Provider)
	return pipeline, nil
}

// Run processes tasks until ctx is cancelled, then drains the worker pool.
func (app *application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.dispatcher.Run(gctx)
	})

	if app.config.Server.AdminPort > 0 {
		g.Go(func() error {
			return app.serveAdmin(gctx, app.router())
		})
	}

	err := g.Wait()

	if stopErr := app.pool.Stop(shutdownTimeout); stopErr != nil {
		app.logger.Error("worker pool did not drain", "error", stopErr)
		err = errors.Join(err, stopErr)
	}

	return err
}

// router builds the admin HTTP handler.
func (app *application) router() http.Handler {
	checks := map[string]api.CheckFunc{
		"database": app.db.PingContext,
	}
	if app.backend.check != nil {
		checks["cache"] = app.backend.check
	}

	return api.NewRouter(&api.Handler{
		Checks:     checks,
		Executor:   app.executor,
		Dispatcher: app.dispatcher,
		Queue:      app.queue,
		Workers:    app.pool,
	}, app.logger)
}

// cleanup releases connections. It is safe to call on a partially built application.
func (app *application) cleanup() {
	if app.backend.close != nil {
		if err := app.backend.close(); err != nil {
			app.logger.Error("error closing cache connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
