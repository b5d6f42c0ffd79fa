// Package memory provides an in-process MessageStore and RoomRepository.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"letschat/internal/domain"
)

// roomLog is the owned state of one room: its history and next-id counter.
type roomLog struct {
	mu       sync.RWMutex
	messages []*domain.Message
	lastTime time.Time
}

// MessageStore implements domain.MessageStore in memory.
// Each room has its own lock; the map lock is only held to find or create a room.
type MessageStore struct {
	mu        sync.RWMutex
	rooms     map[string]*roomLog
	maxLength int
	now       func() time.Time
}

// NewMessageStore creates an empty store. maxLength bounds message text in runes.
func NewMessageStore(maxLength int) *MessageStore {
	return &MessageStore{
		rooms:     make(map[string]*roomLog),
		maxLength: maxLength,
		now:       time.Now,
	}
}

func (s *MessageStore) room(roomID string, create bool) *roomLog {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok || !create {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rooms[roomID]; ok {
		return r
	}
	r = &roomLog{}
	s.rooms[roomID] = r
	return r
}

// Append validates and appends a message, assigning the next id for the room.
func (s *MessageStore) Append(ctx context.Context, roomID, username, text string) (*domain.Message, error) {
	if err := domain.ValidateMessage(username, text, s.maxLength); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("append", err)
	}

	r := s.room(roomID, true)
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := s.now().UTC()
	if ts.Before(r.lastTime) {
		ts = r.lastTime
	}

	msg := &domain.Message{
		ID:        int64(len(r.messages)) + 1,
		RoomID:    roomID,
		Username:  username,
		Text:      text,
		Timestamp: ts,
	}
	r.messages = append(r.messages, msg)
	r.lastTime = ts

	copied := *msg
	return &copied, nil
}

// ReadAll returns every message of the room in id order.
func (s *MessageStore) ReadAll(ctx context.Context, roomID string) ([]*domain.Message, error) {
	return s.ReadSince(ctx, roomID, 0)
}

// ReadSince returns messages with id greater than afterID in id order.
func (s *MessageStore) ReadSince(ctx context.Context, roomID string, afterID int64) ([]*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("read", err)
	}

	r := s.room(roomID, false)
	if r == nil {
		return []*domain.Message{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if afterID < 0 {
		afterID = 0
	}
	if afterID >= int64(len(r.messages)) {
		return []*domain.Message{}, nil
	}

	// ids are 1-based and gap-free, so id N sits at index N-1
	tail := r.messages[afterID:]
	out := make([]*domain.Message, len(tail))
	for i, m := range tail {
		copied := *m
		out[i] = &copied
	}
	return out, nil
}

// RoomRepository implements domain.RoomRepository over a fixed set of rooms.
type RoomRepository struct {
	rooms map[string]*domain.Room
}

// NewRoomRepository creates a repository seeded with rooms.
func NewRoomRepository(rooms ...*domain.Room) *RoomRepository {
	repo := &RoomRepository{rooms: make(map[string]*domain.Room, len(rooms))}
	for _, room := range rooms {
		repo.rooms[room.ID] = room
	}
	return repo
}

// GetByID retrieves a room by ID
func (r *RoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	room, ok := r.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// List returns all rooms ordered by name
func (r *RoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	rooms := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}
