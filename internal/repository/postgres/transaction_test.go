package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxManager_WithTx(t *testing.T) {
	t.Run("commits_on_success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit()

		err = NewTxManager(db).WithTx(context.Background(), func(tx *sql.Tx) error { return nil })
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls_back_on_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		want := errors.New("boom")
		err = NewTxManager(db).WithTx(context.Background(), func(tx *sql.Tx) error { return want })
		assert.ErrorIs(t, err, want)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("joins_rollback_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(errors.New("rollback failed"))

		want := errors.New("boom")
		err = NewTxManager(db).WithTx(context.Background(), func(tx *sql.Tx) error { return want })
		assert.ErrorIs(t, err, want)
		assert.Contains(t, err.Error(), "rollback failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit_failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

		err = NewTxManager(db).WithTx(context.Background(), func(tx *sql.Tx) error { return nil })
		assert.ErrorContains(t, err, "failed to commit transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reruns_after_serialization_failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err = NewTxManager(db).WithTx(context.Background(), func(tx *sql.Tx) error {
			calls++
			if calls == 1 {
				return &pqSerializationErr
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives_up_after_max_attempts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		for i := 0; i < defaultTxAttempts; i++ {
			mock.ExpectBegin()
			mock.ExpectRollback()
		}

		calls := 0
		err = NewTxManager(db).WithTx(context.Background(), func(tx *sql.Tx) error {
			calls++
			return &pqDeadlockErr
		})
		assert.ErrorContains(t, err, "after 3 attempts")
		assert.Equal(t, defaultTxAttempts, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"matching_constraint", &pqUniqueErr, messagesPrimaryKey, true},
		{"any_constraint", &pqUniqueErr, "", true},
		{"other_constraint", &pqUniqueErr, "rooms_pkey", false},
		{"not_unique_violation", &pqFKErr, "", false},
		{"plain_error", errors.New("nope"), "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err, tt.constraint))
		})
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(&pqFKErr, ""))
	assert.True(t, IsForeignKeyViolation(&pqFKErr, "messages_room_id_fkey"))
	assert.False(t, IsForeignKeyViolation(&pqFKErr, "room_sequences_room_id_fkey"))
	assert.False(t, IsForeignKeyViolation(&pqUniqueErr, ""))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pqSerializationErr))
	assert.True(t, isRetryable(&pqDeadlockErr))
	assert.False(t, isRetryable(&pqUniqueErr))
	assert.False(t, isRetryable(errors.New("connection reset")))
}

var (
	pqUniqueErr        = pq.Error{Code: "23505", Constraint: messagesPrimaryKey}
	pqFKErr            = pq.Error{Code: "23503", Constraint: "messages_room_id_fkey"}
	pqSerializationErr = pq.Error{Code: "40001"}
	pqDeadlockErr      = pq.Error{Code: "40P01"}
)
