package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_Formats(t *testing.T) {
	defer func() { logger = nil }()

	t.Run("json_format_produces_json", func(t *testing.T) {
		var buf bytes.Buffer
		initLogger(&buf, "info", "json")
		FromContext(context.Background()).Info("test message", "key", "value")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "test message", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("text_format_produces_text", func(t *testing.T) {
		var buf bytes.Buffer
		initLogger(&buf, "info", "text")
		FromContext(context.Background()).Info("test message")

		assert.Contains(t, buf.String(), "msg=\"test message\"")
	})

	t.Run("level_filters_debug", func(t *testing.T) {
		var buf bytes.Buffer
		initLogger(&buf, "warn", "json")
		log := FromContext(context.Background())
		log.Debug("hidden")
		log.Info("hidden")
		log.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestFromContext(t *testing.T) {
	defer func() { logger = nil }()

	var buf bytes.Buffer
	initLogger(&buf, "info", "json")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithRoomID(ctx, "sports")
	FromContext(ctx).Info("scoped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "sports", entry["room_id"])
}

func TestFromContext_WithoutLogger(t *testing.T) {
	logger = nil
	assert.NotNil(t, FromContext(context.Background()))
}
