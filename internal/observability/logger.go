package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	roomIDKey    contextKey = "room_id"
)

var logger *slog.Logger

// InitLogger initializes the global structured logger
func InitLogger(level, format string) {
	initLogger(os.Stdout, level, format)
}

func initLogger(w io.Writer, level, format string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: level == "debug",
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// FromContext returns a logger with context values attached
func FromContext(ctx context.Context) *slog.Logger {
	base := current()
	attrs := make([]any, 0, 4)

	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}

	if roomID, ok := ctx.Value(roomIDKey).(string); ok && roomID != "" {
		attrs = append(attrs, slog.String("room_id", roomID))
	}

	if len(attrs) > 0 {
		return base.With(attrs...)
	}
	return base
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithRoomID adds room ID to context
func WithRoomID(ctx context.Context, roomID string) context.Context {
	return context.WithValue(ctx, roomIDKey, roomID)
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// current returns the initialized logger, or the slog default before InitLogger runs
func current() *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

