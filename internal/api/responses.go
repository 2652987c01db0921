package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/ragpipe/internal/platform/logger"
)

// ErrorResponse defines the standard error response structure.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// RespondWithJSON writes a JSON response with the given status code and data.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithError writes a JSON error response with the given status code and message.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	reqID := middleware.GetReqID(r.Context())
	logger.FromContext(r.Context()).Debug("sending error response",
		slog.Int("status_code", status),
		slog.String("message", message),
		slog.String("path", r.URL.Path))
	RespondWithJSON(w, r, status, ErrorResponse{Error: message, RequestID: reqID})
}
