package domain

import (
	"context"
	"time"
)

// Room represents a chat room
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoomRepository defines read access to rooms. Rooms are created out-of-band.
type RoomRepository interface {
	GetByID(ctx context.Context, id string) (*Room, error)
	List(ctx context.Context) ([]*Room, error)
}
