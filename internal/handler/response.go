package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"letschat/internal/domain"
	"letschat/internal/observability"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the chat error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Storage and unknown
// errors are logged and reported without internal detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		writeError(w, status, err.Error())
	case http.StatusServiceUnavailable:
		observability.FromContext(r.Context()).Error("storage failure",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeError(w, status, "storage temporarily unavailable")
	default:
		observability.FromContext(r.Context()).Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeError(w, status, "internal server error")
	}
}
