package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"letschat/internal/domain"
	"letschat/internal/observability"
)

const (
	nextSequenceQuery = `
		INSERT INTO room_sequences (room_id, last_id)
		VALUES ($1, 1)
		ON CONFLICT (room_id) DO UPDATE SET last_id = room_sequences.last_id + 1
		RETURNING last_id
	`

	insertMessageQuery = `
		INSERT INTO messages (room_id, id, username, text, created_at)
		VALUES ($1, $2, $3, $4, GREATEST(clock_timestamp(), COALESCE(
			(SELECT MAX(created_at) FROM messages WHERE room_id = $1), clock_timestamp())))
		RETURNING created_at
	`

	selectMessagesSinceQuery = `
		SELECT id, room_id, username, text, created_at
		FROM messages
		WHERE room_id = $1 AND id > $2
		ORDER BY id ASC
	`

	messagesPrimaryKey = "messages_pkey"
)

// MessageRepository implements domain.MessageStore for PostgreSQL.
// The room_sequences row is locked by the upsert for the rest of the
// transaction, so appends to one room are serialized and rooms stay independent.
type MessageRepository struct {
	db        *sql.DB
	tx        *TxManager
	maxLength int
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sql.DB, maxLength int) *MessageRepository {
	return &MessageRepository{
		db:        db,
		tx:        NewTxManager(db),
		maxLength: maxLength,
	}
}

// Append allocates the next room id and inserts the message in one transaction.
// A failed insert rolls the counter back, so no id is consumed.
func (r *MessageRepository) Append(ctx context.Context, roomID, username, text string) (*domain.Message, error) {
	if err := domain.ValidateMessage(username, text, r.maxLength); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		observability.DBQueryDuration.WithLabelValues("append", "messages").Observe(time.Since(start).Seconds())
	}()

	msg := &domain.Message{
		RoomID:   roomID,
		Username: username,
		Text:     text,
	}

	err := r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, nextSequenceQuery, roomID).Scan(&msg.ID); err != nil {
			if IsForeignKeyViolation(err, "") {
				return fmt.Errorf("room %s does not exist: %w", roomID, err)
			}
			return fmt.Errorf("failed to allocate message id: %w", err)
		}

		if err := tx.QueryRowContext(ctx, insertMessageQuery,
			roomID,
			msg.ID,
			username,
			text,
		).Scan(&msg.Timestamp); err != nil {
			if IsUniqueViolation(err, messagesPrimaryKey) {
				return fmt.Errorf("message id %d already taken in room %s: %w", msg.ID, roomID, err)
			}
			return fmt.Errorf("failed to create message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("append", err)
	}

	msg.Timestamp = msg.Timestamp.UTC()
	return msg, nil
}

// ReadAll retrieves every message of a room, oldest first
func (r *MessageRepository) ReadAll(ctx context.Context, roomID string) ([]*domain.Message, error) {
	return r.ReadSince(ctx, roomID, 0)
}

// ReadSince retrieves messages with id greater than afterID, oldest first
func (r *MessageRepository) ReadSince(ctx context.Context, roomID string, afterID int64) ([]*domain.Message, error) {
	if afterID < 0 {
		afterID = 0
	}

	start := time.Now()
	defer func() {
		observability.DBQueryDuration.WithLabelValues("read_since", "messages").Observe(time.Since(start).Seconds())
	}()

	rows, err := r.db.QueryContext(ctx, selectMessagesSinceQuery, roomID, afterID)
	if err != nil {
		return nil, domain.NewStorageError("read", fmt.Errorf("failed to query messages: %w", err))
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		msg := &domain.Message{}
		if err := rows.Scan(
			&msg.ID,
			&msg.RoomID,
			&msg.Username,
			&msg.Text,
			&msg.Timestamp,
		); err != nil {
			return nil, domain.NewStorageError("read", fmt.Errorf("failed to scan message: %w", err))
		}
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("read", fmt.Errorf("error iterating messages: %w", err))
	}

	return messages, nil
}
