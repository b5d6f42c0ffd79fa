package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"letschat/internal/observability"
)

// RequestContext copies the chi request id into the observability context so
// observability.FromContext loggers carry it. It must run after chi's RequestID.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
			r = r.WithContext(observability.WithRequestID(r.Context(), reqID))
		}
		next.ServeHTTP(w, r)
	})
}
