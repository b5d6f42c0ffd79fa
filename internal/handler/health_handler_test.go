package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"letschat/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_ReturnsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	Health(w, req)

	result := testutil.AssertJSONResponse(t, w, http.StatusOK)
	assert.Equal(t, "ok", result["status"])
}

func up(ctx context.Context) HealthCheckResult   { return HealthCheckResult{Status: "up"} }
func down(ctx context.Context) HealthCheckResult { return HealthCheckResult{Status: "down", Error: "unreachable"} }

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Checker
		wantStatus int
		wantState  string
	}{
		{"all_up", map[string]Checker{"storage": up, "rabbitmq": up}, http.StatusOK, "ready"},
		{"one_down", map[string]Checker{"storage": up, "rabbitmq": down}, http.StatusServiceUnavailable, "not_ready"},
		{"no_checks", map[string]Checker{}, http.StatusOK, "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Ready(tt.checks)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			result := testutil.AssertJSONResponse(t, w, tt.wantStatus)
			assert.Equal(t, tt.wantState, result["status"])
			assert.NotEmpty(t, result["timestamp"])

			checks, ok := result["checks"].(map[string]interface{})
			require.True(t, ok)
			assert.Len(t, checks, len(tt.checks))
		})
	}
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(func(ctx context.Context) error { return nil })(context.Background())
	assert.Equal(t, "up", ok.Status)
	assert.Empty(t, ok.Error)

	failed := PingCheck(func(ctx context.Context) error { return errors.New("store closed") })(context.Background())
	assert.Equal(t, "down", failed.Status)
	assert.Equal(t, "store closed", failed.Error)
}

func TestDatabaseCheck(t *testing.T) {
	t.Run("up", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()

		result := DatabaseCheck(db)(context.Background())
		assert.Equal(t, "up", result.Status)
		assert.Contains(t, result.Metadata, "connections_open")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("down", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		result := DatabaseCheck(db)(context.Background())
		assert.Equal(t, "down", result.Status)
		assert.Equal(t, "connection refused", result.Error)
	})
}

func TestHealthCheckResult_OmitsEmptyFields(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, HealthCheckResult{Status: "up"})

	body := w.Body.String()
	assert.NotContains(t, body, "latency_ms")
	assert.NotContains(t, body, "error")
	assert.NotContains(t, body, "metadata")
}
