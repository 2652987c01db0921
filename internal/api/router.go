package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/ragpipe/internal/platform/logger"
)

// NewRouter creates the admin router with all routes and middleware.
func NewRouter(h *Handler, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", h.Health)
	r.Get("/stats", h.Stats)

	return r
}

// requestLogger stores a request-scoped logger in the context and logs each request.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := base.With(slog.String("request_id", middleware.GetReqID(r.Context())))
			ctx := logger.WithLogger(r.Context(), log)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			log.Debug("request handled",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
