package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"letschat/internal/channel"
	"letschat/internal/domain"
	"letschat/internal/observability"
)

// EventPublisher receives every message after it has been appended and fanned out.
type EventPublisher interface {
	PublishMessageCreated(ctx context.Context, msg *domain.Message) error
}

// Feed is a room snapshot plus the live tail that continues it.
// The first live message directly follows the last history message.
type Feed struct {
	History []*domain.Message
	Live    *channel.Subscription
}

// LastID returns the id of the newest message in History, or 0.
func (f *Feed) LastID() int64 {
	if len(f.History) == 0 {
		return 0
	}
	return f.History[len(f.History)-1].ID
}

// Close releases the live subscription.
func (f *Feed) Close() {
	if f.Live != nil {
		f.Live.Close()
	}
}

// ChatService accepts messages for rooms and serves history plus live tail to subscribers.
type ChatService struct {
	store     domain.MessageStore
	hub       *channel.Hub
	rooms     domain.RoomRepository
	events    EventPublisher
	maxLength int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a ChatService.
type Option func(*ChatService)

// WithRoomRepository makes Send and Subscribe reject rooms the repository does not know.
func WithRoomRepository(rooms domain.RoomRepository) Option {
	return func(s *ChatService) { s.rooms = rooms }
}

// WithEventPublisher forwards accepted messages to an external broker.
func WithEventPublisher(events EventPublisher) Option {
	return func(s *ChatService) { s.events = events }
}

// WithMaxMessageLength overrides the text limit checked before touching the store.
func WithMaxMessageLength(n int) Option {
	return func(s *ChatService) { s.maxLength = n }
}

// NewChatService creates a chat service over store and hub.
func NewChatService(store domain.MessageStore, hub *channel.Hub, opts ...Option) *ChatService {
	s := &ChatService{
		store:     store,
		hub:       hub,
		maxLength: domain.DefaultMaxMessageLength,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// roomLock returns the ordering lock of one room.
func (s *ChatService) roomLock(roomID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[roomID] = l
	}
	return l
}

func (s *ChatService) checkRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return &domain.ValidationError{Field: "room_id", Reason: "must not be empty"}
	}
	if s.rooms == nil {
		return nil
	}
	_, err := s.rooms.GetByID(ctx, roomID)
	return err
}

// Send appends a message and publishes it to the room's live subscribers.
// When the append fails nothing is published and the store's error is returned as is.
func (s *ChatService) Send(ctx context.Context, roomID, username, text string) (*domain.Message, error) {
	ctx = observability.WithRoomID(ctx, roomID)
	log := observability.FromContext(ctx)

	if err := domain.ValidateMessage(username, text, s.maxLength); err != nil {
		observability.ChatAppendFailures.WithLabelValues(roomID, "validation").Inc()
		return nil, err
	}
	if err := s.checkRoom(ctx, roomID); err != nil {
		return nil, err
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	msg, err := s.store.Append(ctx, roomID, username, text)
	if err != nil {
		lock.Unlock()
		kind := "storage"
		if errors.Is(err, domain.ErrValidation) {
			kind = "validation"
		}
		observability.ChatAppendFailures.WithLabelValues(roomID, kind).Inc()
		log.Error("failed to append message",
			slog.String("username", username),
			slog.String("error", err.Error()))
		return nil, err
	}
	s.hub.Publish(msg)
	lock.Unlock()

	observability.ChatMessagesAppended.WithLabelValues(roomID).Inc()
	log.Debug("message appended", slog.Int64("message_id", msg.ID))

	if s.events != nil {
		// the message is committed; a broker failure must not turn into a client retry
		if err := s.events.PublishMessageCreated(ctx, msg); err != nil {
			observability.ChatEventPublishFailures.Inc()
			log.Warn("failed to publish message event",
				slog.Int64("message_id", msg.ID),
				slog.String("error", err.Error()))
		}
	}

	return msg, nil
}

// Subscribe snapshots the room history and attaches a live subscription in
// one step with respect to Send, so no message is missing from both or present in both.
func (s *ChatService) Subscribe(ctx context.Context, roomID string) (*Feed, error) {
	ctx = observability.WithRoomID(ctx, roomID)

	if err := s.checkRoom(ctx, roomID); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, &domain.SubscriptionError{RoomID: roomID, Err: err}
		}
		return nil, err
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	history, err := s.store.ReadAll(ctx, roomID)
	if err != nil {
		return nil, err
	}
	live, err := s.hub.Subscribe(roomID)
	if err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Debug("feed opened",
		slog.String("subscription_id", live.ID()),
		slog.Int("history", len(history)))
	return &Feed{History: history, Live: live}, nil
}

// History returns messages after afterID, for clients catching up after a reconnect.
func (s *ChatService) History(ctx context.Context, roomID string, afterID int64) ([]*domain.Message, error) {
	if err := s.checkRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.store.ReadSince(ctx, roomID, afterID)
}

// ListRooms returns the known rooms, or none when no room repository is configured.
func (s *ChatService) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	if s.rooms == nil {
		return []*domain.Room{}, nil
	}
	return s.rooms.List(ctx)
}

// GetRoom returns a room by id.
func (s *ChatService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	if s.rooms == nil {
		return nil, domain.ErrRoomNotFound
	}
	return s.rooms.GetByID(ctx, roomID)
}
