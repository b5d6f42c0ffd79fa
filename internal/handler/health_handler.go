package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"letschat/internal/messaging"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Checker probes one dependency.
type Checker func(ctx context.Context) HealthCheckResult

// Ready runs every check in parallel and reports 503 unless all are up.
func Ready(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		type named struct {
			name   string
			result HealthCheckResult
		}
		results := make(chan named, len(checks))
		for name, check := range checks {
			go func() {
				results <- named{name: name, result: check(ctx)}
			}()
		}

		collected := make(map[string]HealthCheckResult, len(checks))
		allHealthy := true
		for range checks {
			res := <-results
			collected[res.name] = res.result
			if res.result.Status != "up" {
				allHealthy = false
			}
		}

		response := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    collected,
		}

		status := http.StatusOK
		if allHealthy {
			response["status"] = "ready"
		} else {
			response["status"] = "not_ready"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	}
}

// DatabaseCheck verifies PostgreSQL connectivity and reports pool statistics
func DatabaseCheck(db *sql.DB) Checker {
	return func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		err := db.PingContext(ctx)
		latency := time.Since(start)

		if err != nil {
			return HealthCheckResult{
				Status:    "down",
				LatencyMs: latency.Milliseconds(),
				Error:     err.Error(),
			}
		}

		stats := db.Stats()
		return HealthCheckResult{
			Status:    "up",
			LatencyMs: latency.Milliseconds(),
			Metadata: map[string]interface{}{
				"connections_open":   stats.OpenConnections,
				"connections_in_use": stats.InUse,
				"connections_idle":   stats.Idle,
				"max_open":           stats.MaxOpenConnections,
			},
		}
	}
}

// PingCheck wraps any store with a ping method.
func PingCheck(ping func(ctx context.Context) error) Checker {
	return func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		err := ping(ctx)
		result := HealthCheckResult{Status: "up", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			result.Status = "down"
			result.Error = err.Error()
		}
		return result
	}
}

// RabbitMQCheck verifies the broker connection is still open
func RabbitMQCheck(rmq *messaging.RabbitMQ) Checker {
	return func(ctx context.Context) HealthCheckResult {
		if rmq.IsClosed() {
			return HealthCheckResult{
				Status: "down",
				Error:  "connection closed",
			}
		}
		return HealthCheckResult{Status: "up"}
	}
}
