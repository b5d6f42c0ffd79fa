package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

const defaultTxAttempts = 3

// TxManager runs units of work inside a transaction. Work aborted by a
// serialization failure or deadlock is rerun in a fresh transaction.
type TxManager struct {
	db          *sql.DB
	maxAttempts int
}

// NewTxManager creates a new transaction manager
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db, maxAttempts: defaultTxAttempts}
}

// WithTx commits when fn succeeds and rolls back when it fails.
// fn may run more than once, so it must not have effects outside tx.
func (tm *TxManager) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= tm.maxAttempts; attempt++ {
		err = tm.run(ctx, fn)
		if err == nil || !isRetryable(err) || ctx.Err() != nil {
			return err
		}
		slog.Warn("transaction conflict, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", tm.maxAttempts, err)
}

func (tm *TxManager) run(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
