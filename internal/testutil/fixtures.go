package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"letschat/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// RoomOptions allows customizing room fixture creation
type RoomOptions struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// NewTestRoom creates a test room with sensible defaults
func NewTestRoom(opts ...func(*RoomOptions)) *domain.Room {
	n := idCounter.Add(1)
	o := &RoomOptions{
		ID:   fmt.Sprintf("room-%d", n),
		Name: fmt.Sprintf("Test Room %d", n),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return &domain.Room{
		ID:          o.ID,
		Name:        o.Name,
		Description: o.Description,
		CreatedAt:   o.CreatedAt,
	}
}

// WithRoomID sets the room ID
func WithRoomID(id string) func(*RoomOptions) {
	return func(o *RoomOptions) {
		o.ID = id
	}
}

// WithRoomName sets the room name
func WithRoomName(name string) func(*RoomOptions) {
	return func(o *RoomOptions) {
		o.Name = name
	}
}

// MessageOptions allows customizing message fixture creation
type MessageOptions struct {
	ID        int64
	RoomID    string
	Username  string
	Text      string
	Timestamp time.Time
}

// NewTestMessage creates a test message with sensible defaults
func NewTestMessage(opts ...func(*MessageOptions)) *domain.Message {
	o := &MessageOptions{
		ID:       1,
		RoomID:   "room-test",
		Username: "alice",
		Text:     "Test message",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}

	return &domain.Message{
		ID:        o.ID,
		RoomID:    o.RoomID,
		Username:  o.Username,
		Text:      o.Text,
		Timestamp: o.Timestamp,
	}
}

// WithMessageID sets the message ID
func WithMessageID(id int64) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.ID = id
	}
}

// WithMessageRoomID sets the room of the message
func WithMessageRoomID(roomID string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.RoomID = roomID
	}
}

// WithUsername sets the sender
func WithUsername(username string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Username = username
	}
}

// WithText sets the message body
func WithText(text string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Text = text
	}
}

// NewTestMessages creates count consecutive messages for a room, ids starting at 1
func NewTestMessages(roomID string, count int) []*domain.Message {
	base := time.Now().UTC()
	messages := make([]*domain.Message, count)
	for i := 0; i < count; i++ {
		messages[i] = NewTestMessage(
			WithMessageID(int64(i+1)),
			WithMessageRoomID(roomID),
			WithText(fmt.Sprintf("Message %d", i+1)),
			func(o *MessageOptions) { o.Timestamp = base.Add(time.Duration(i) * time.Millisecond) },
		)
	}
	return messages
}
