package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"letschat/internal/domain"
)

// RoomRepository implements domain.RoomRepository for PostgreSQL
type RoomRepository struct {
	db *sql.DB
}

// NewRoomRepository creates a new PostgreSQL room repository
func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetByID retrieves a room by ID
func (r *RoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	query := `
		SELECT id, name, description, created_at
		FROM rooms
		WHERE id = $1
	`
	room := &domain.Room{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&room.Name,
		&room.Description,
		&room.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("get room", err)
	}
	return room, nil
}

// List retrieves all rooms ordered by name
func (r *RoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	query := `
		SELECT id, name, description, created_at
		FROM rooms
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.NewStorageError("list rooms", err)
	}
	defer rows.Close()

	rooms := make([]*domain.Room, 0)
	for rows.Next() {
		room := &domain.Room{}
		if err := rows.Scan(
			&room.ID,
			&room.Name,
			&room.Description,
			&room.CreatedAt,
		); err != nil {
			return nil, domain.NewStorageError("list rooms", fmt.Errorf("failed to scan room: %w", err))
		}
		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list rooms", err)
	}
	return rooms, nil
}
