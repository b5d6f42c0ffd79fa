package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"letschat/internal/domain"

	"github.com/cockroachdb/pebble"
)

const roomsPrefix = "rooms/"

func roomKey(id string) []byte {
	return []byte(roomsPrefix + url.PathEscape(id))
}

// PutRoom creates or replaces a room record.
func (s *MessageStore) PutRoom(room *domain.Room) error {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return domain.NewStorageError("put room", errClosed)
	}
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}
	if err := s.db.Set(roomKey(room.ID), data, pebble.Sync); err != nil {
		return domain.NewStorageError("put room", err)
	}
	return nil
}

// GetByID retrieves a room by ID
func (s *MessageStore) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return nil, domain.NewStorageError("get room", errClosed)
	}
	v, closer, err := s.db.Get(roomKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("get room", err)
	}
	defer closer.Close()

	room := &domain.Room{}
	if err := json.Unmarshal(v, room); err != nil {
		return nil, domain.NewStorageError("get room", err)
	}
	return room, nil
}

// List returns all rooms ordered by name
func (s *MessageStore) List(ctx context.Context) ([]*domain.Room, error) {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return nil, domain.NewStorageError("list rooms", errClosed)
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(roomsPrefix),
		UpperBound: []byte("rooms0"),
	})
	if err != nil {
		return nil, domain.NewStorageError("list rooms", err)
	}
	defer iter.Close()

	rooms := make([]*domain.Room, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		room := &domain.Room{}
		if err := json.Unmarshal(iter.Value(), room); err != nil {
			return nil, domain.NewStorageError("list rooms", err)
		}
		rooms = append(rooms, room)
	}
	if err := iter.Error(); err != nil {
		return nil, domain.NewStorageError("list rooms", err)
	}

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}
