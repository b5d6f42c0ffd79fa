package config

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"letschat/internal/observability"
)

// NewPostgresConnection creates a new PostgreSQL database connection
func NewPostgresConnection(ctx context.Context, dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, errors.New("database url is empty")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// RecordPoolStats copies the pool statistics into the db_connections_* gauges
// every interval until ctx is cancelled.
func RecordPoolStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		recordPoolStats(db.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func recordPoolStats(stats sql.DBStats) {
	observability.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	observability.DBConnectionsInUse.Set(float64(stats.InUse))
	observability.DBConnectionsIdle.Set(float64(stats.Idle))
}
