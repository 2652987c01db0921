package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/ragpipe/internal/config"
)

type contextKey struct{}

// Setup initializes and configures the application's logging system based on
// the provided configuration. It creates a structured JSON logger on stdout with the
// appropriate log level and sets it as the default logger for the application.
func Setup(cfg config.ServerConfig) (*slog.Logger, error) {
	logger := New(os.Stdout, cfg.LogLevel)

	// Set this logger as the default for the application
	// This allows using the slog package functions directly (slog.Info, slog.Error, etc.)
	slog.SetDefault(logger)

	return logger, nil
}

// New creates a JSON logger writing to w at the given level.
func New(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel converts a configured level name (case-insensitive) into a slog.Level.
// Unknown names fall back to info and emit a warning on stderr.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		// Create a temporary logger to output the warning
		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", name,
			"default_level", "info")
		return slog.LevelInfo
	}
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}
