package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/phrazzld/ragpipe/internal/platform/logger"
	"github.com/phrazzld/ragpipe/internal/redact"
	"github.com/phrazzld/ragpipe/internal/task"
)

// CheckFunc reports whether a dependency is healthy.
type CheckFunc func(ctx context.Context) error

// ExecutorStats exposes item execution counters.
type ExecutorStats interface {
	Stats() task.Stats
}

// DispatcherStats exposes batching counters.
type DispatcherStats interface {
	Stats() task.DispatcherStats
}

// QueueInspector reports the number of waiting messages.
type QueueInspector interface {
	QueueLength(ctx context.Context) (int, error)
}

// WorkerGauge reports how many items are executing.
type WorkerGauge interface {
	Running() int
}

// Handler serves the admin endpoints. Nil sources are omitted from responses.
type Handler struct {
	Checks     map[string]CheckFunc
	Executor   ExecutorStats
	Dispatcher DispatcherStats
	Queue      QueueInspector
	Workers    WorkerGauge
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs every dependency check. It answers 200 {"status":"ok"} when all pass
// and 503 with per-check details otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.Checks[name](r.Context()); err != nil {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string)
			}
			resp.Checks[name] = redact.Error(err)
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			logger.FromContext(r.Context()).Warn("health check failed",
				"check", name,
				"error", redact.Error(err))
		}
	}

	RespondWithJSON(w, r, status, resp)
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Executor       *task.Stats           `json:"executor,omitempty"`
	Dispatcher     *task.DispatcherStats `json:"dispatcher,omitempty"`
	WorkersRunning *int                  `json:"workers_running,omitempty"`
	QueueLength    *int                  `json:"queue_length,omitempty"`
	QueueError     string                `json:"queue_error,omitempty"`
}

// Stats reports pipeline counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse

	if h.Executor != nil {
		s := h.Executor.Stats()
		resp.Executor = &s
	}
	if h.Dispatcher != nil {
		s := h.Dispatcher.Stats()
		resp.Dispatcher = &s
	}
	if h.Workers != nil {
		n := h.Workers.Running()
		resp.WorkersRunning = &n
	}
	if h.Queue != nil {
		n, err := h.Queue.QueueLength(r.Context())
		if err != nil {
			resp.QueueError = redact.Error(err)
			logger.FromContext(r.Context()).Warn("failed to read queue length",
				"error", redact.Error(err))
		} else {
			resp.QueueLength = &n
		}
	}

	RespondWithJSON(w, r, http.StatusOK, resp)
}
