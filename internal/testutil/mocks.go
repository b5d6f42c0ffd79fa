// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the letschat service.
package testutil

import (
	"context"
	"errors"
	"sync"

	"letschat/internal/domain"
	"letschat/internal/store/memory"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockStorage        = errors.New("mock: storage unavailable")
)

// MockMessageStore implements domain.MessageStore for testing.
// Unset function overrides fall through to an in-memory store.
type MockMessageStore struct {
	AppendFunc    func(ctx context.Context, roomID, username, text string) (*domain.Message, error)
	ReadAllFunc   func(ctx context.Context, roomID string) ([]*domain.Message, error)
	ReadSinceFunc func(ctx context.Context, roomID string, afterID int64) ([]*domain.Message, error)

	mu          sync.Mutex
	AppendCalls int
	Backing     *memory.MessageStore
}

// NewMockMessageStore creates a MockMessageStore backed by an empty memory store
func NewMockMessageStore() *MockMessageStore {
	return &MockMessageStore{Backing: memory.NewMessageStore(0)}
}

func (m *MockMessageStore) Append(ctx context.Context, roomID, username, text string) (*domain.Message, error) {
	m.mu.Lock()
	m.AppendCalls++
	m.mu.Unlock()

	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, roomID, username, text)
	}
	return m.Backing.Append(ctx, roomID, username, text)
}

func (m *MockMessageStore) ReadAll(ctx context.Context, roomID string) ([]*domain.Message, error) {
	if m.ReadAllFunc != nil {
		return m.ReadAllFunc(ctx, roomID)
	}
	return m.Backing.ReadAll(ctx, roomID)
}

func (m *MockMessageStore) ReadSince(ctx context.Context, roomID string, afterID int64) ([]*domain.Message, error) {
	if m.ReadSinceFunc != nil {
		return m.ReadSinceFunc(ctx, roomID, afterID)
	}
	return m.Backing.ReadSince(ctx, roomID, afterID)
}

// Appends returns how many times Append was called
func (m *MockMessageStore) Appends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AppendCalls
}

// FailingAppend returns an AppendFunc that always fails with a StorageError
func FailingAppend(cause error) func(ctx context.Context, roomID, username, text string) (*domain.Message, error) {
	return func(ctx context.Context, roomID, username, text string) (*domain.Message, error) {
		return nil, &domain.StorageError{Op: "append", Err: cause}
	}
}

// MockRoomRepository implements domain.RoomRepository for testing
type MockRoomRepository struct {
	mu sync.RWMutex

	GetByIDFunc func(ctx context.Context, id string) (*domain.Room, error)
	ListFunc    func(ctx context.Context) ([]*domain.Room, error)

	Rooms map[string]*domain.Room
}

// NewMockRoomRepository creates a MockRoomRepository seeded with rooms
func NewMockRoomRepository(rooms ...*domain.Room) *MockRoomRepository {
	m := &MockRoomRepository{Rooms: make(map[string]*domain.Room)}
	for _, room := range rooms {
		m.Rooms[room.ID] = room
	}
	return m
}

func (m *MockRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if room, ok := m.Rooms[id]; ok {
		return room, nil
	}
	return nil, domain.ErrRoomNotFound
}

func (m *MockRoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Room, 0, len(m.Rooms))
	for _, room := range m.Rooms {
		result = append(result, room)
	}
	return result, nil
}

// MockEventPublisher records published message events
type MockEventPublisher struct {
	mu        sync.Mutex
	Err       error
	published []*domain.Message
}

// NewMockEventPublisher creates a new MockEventPublisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishMessageCreated(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.published = append(m.published, msg)
	return nil
}

// Published returns a copy of the recorded messages
func (m *MockEventPublisher) Published() []*domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Message, len(m.published))
	copy(out, m.published)
	return out
}
