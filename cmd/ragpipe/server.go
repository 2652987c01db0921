package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// serveAdmin runs the admin HTTP server until ctx is cancelled.
func (app *application) serveAdmin(ctx context.Context, handler http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.AdminPort),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("starting admin server", "port", app.config.Server.AdminPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown failed: %w", err)
	}

	app.logger.Info("admin server stopped")
	return nil
}
