package domain

import (
	"context"
	"time"
)

// Message represents a chat message appended to a room's history.
// ID and Timestamp are assigned by the MessageStore on append.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageStore is the ordered, append-only log of messages per room.
type MessageStore interface {
	Append(ctx context.Context, roomID, username, text string) (*Message, error)
	ReadAll(ctx context.Context, roomID string) ([]*Message, error)
	ReadSince(ctx context.Context, roomID string, afterID int64) ([]*Message, error)
}
