// Package pebblestore stores room history in an embedded Pebble database.
//
// Key layout, with room ids path-escaped:
//
//	room/<id>/seq             big-endian uint64, last assigned message id
//	room/<id>/msg/<%020d id>  message JSON
//	rooms/<id>                room JSON
package pebblestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"letschat/internal/domain"
	"letschat/internal/observability"

	"github.com/cockroachdb/pebble"
)

var errClosed = errors.New("pebble store is closed")

// MessageStore implements domain.MessageStore and domain.RoomRepository on Pebble.
type MessageStore struct {
	// dbMu guards db against Close; readers and writers hold it shared.
	dbMu      sync.RWMutex
	db        *pebble.DB
	maxLength int
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*roomState
}

type roomState struct {
	mu       sync.Mutex
	lastTime time.Time
}

// Open opens (or creates) a Pebble database at path.
func Open(path string, maxLength int) (*MessageStore, error) {
	return OpenWithOptions(path, &pebble.Options{}, maxLength)
}

// OpenWithOptions opens a Pebble database with explicit options, e.g. an in-memory FS.
func OpenWithOptions(path string, opts *pebble.Options, maxLength int) (*MessageStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		slog.Error("pebble open failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	slog.Info("pebble opened", slog.String("path", path))

	return &MessageStore{
		db:        db,
		maxLength: maxLength,
		now:       time.Now,
		locks:     make(map[string]*roomState),
	}, nil
}

// Close closes the underlying database.
func (s *MessageStore) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ping reports whether the database is open.
func (s *MessageStore) Ping(ctx context.Context) error {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return errClosed
	}
	return ctx.Err()
}

func (s *MessageStore) room(roomID string) *roomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.locks[roomID]
	if !ok {
		st = &roomState{}
		s.locks[roomID] = st
	}
	return st
}

func roomPrefix(roomID string) string {
	return "room/" + url.PathEscape(roomID) + "/"
}

func seqKey(roomID string) []byte {
	return []byte(roomPrefix(roomID) + "seq")
}

func msgPrefix(roomID string) []byte {
	return []byte(roomPrefix(roomID) + "msg/")
}

func msgKey(roomID string, id int64) []byte {
	return []byte(fmt.Sprintf("%smsg/%020d", roomPrefix(roomID), id))
}

func (s *MessageStore) lastID(roomID string) (int64, error) {
	v, closer, err := s.db.Get(seqKey(roomID))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt sequence for room %s", roomID)
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

// lastTimestamp returns the timestamp of the newest stored message, if any.
func (s *MessageStore) lastTimestamp(roomID string, id int64) (time.Time, error) {
	if id == 0 {
		return time.Time{}, nil
	}
	v, closer, err := s.db.Get(msgKey(roomID, id))
	if err != nil {
		return time.Time{}, err
	}
	defer closer.Close()
	var m domain.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return time.Time{}, err
	}
	return m.Timestamp, nil
}

// Append writes the message and the advanced counter in one synced batch.
func (s *MessageStore) Append(ctx context.Context, roomID, username, text string) (*domain.Message, error) {
	if err := domain.ValidateMessage(username, text, s.maxLength); err != nil {
		return nil, err
	}
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return nil, domain.NewStorageError("append", errClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("append", err)
	}

	start := time.Now()
	defer func() {
		observability.DBQueryDuration.WithLabelValues("append", "pebble").Observe(time.Since(start).Seconds())
	}()

	st := s.room(roomID)
	st.mu.Lock()
	defer st.mu.Unlock()

	last, err := s.lastID(roomID)
	if err != nil {
		return nil, domain.NewStorageError("append", err)
	}
	if st.lastTime.IsZero() {
		if st.lastTime, err = s.lastTimestamp(roomID, last); err != nil {
			return nil, domain.NewStorageError("append", err)
		}
	}

	ts := s.now().UTC()
	if ts.Before(st.lastTime) {
		ts = st.lastTime
	}
	msg := &domain.Message{
		ID:        last + 1,
		RoomID:    roomID,
		Username:  username,
		Text:      text,
		Timestamp: ts,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, domain.NewStorageError("append", fmt.Errorf("failed to marshal message: %w", err))
	}
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(msg.ID))

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(msgKey(roomID, msg.ID), data, nil); err != nil {
		return nil, domain.NewStorageError("append", err)
	}
	if err := batch.Set(seqKey(roomID), seq[:], nil); err != nil {
		return nil, domain.NewStorageError("append", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		slog.Error("pebble append failed",
			slog.String("room_id", roomID),
			slog.String("error", err.Error()))
		return nil, domain.NewStorageError("append", err)
	}
	st.lastTime = ts

	return msg, nil
}

// ReadAll returns all messages of a room in id order.
func (s *MessageStore) ReadAll(ctx context.Context, roomID string) ([]*domain.Message, error) {
	return s.ReadSince(ctx, roomID, 0)
}

// ReadSince returns messages with id greater than afterID in id order.
func (s *MessageStore) ReadSince(ctx context.Context, roomID string, afterID int64) ([]*domain.Message, error) {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return nil, domain.NewStorageError("read", errClosed)
	}
	if afterID < 0 {
		afterID = 0
	}
	// no id can follow the largest one, and afterID+1 would wrap
	if afterID == math.MaxInt64 {
		return []*domain.Message{}, nil
	}

	prefix := msgPrefix(roomID)
	upper := append(bytes.Clone(prefix[:len(prefix)-1]), '/'+1)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: msgKey(roomID, afterID+1),
		UpperBound: upper,
	})
	if err != nil {
		return nil, domain.NewStorageError("read", err)
	}
	defer iter.Close()

	messages := make([]*domain.Message, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewStorageError("read", err)
		}
		msg := &domain.Message{}
		if err := json.Unmarshal(iter.Value(), msg); err != nil {
			return nil, domain.NewStorageError("read", fmt.Errorf("invalid message at %s: %w", iter.Key(), err))
		}
		messages = append(messages, msg)
	}
	if err := iter.Error(); err != nil {
		return nil, domain.NewStorageError("read", err)
	}
	return messages, nil
}
