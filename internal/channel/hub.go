package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"letschat/internal/domain"
)

// Hub owns the live RoomChannel of every room that has subscribers.
// Channels are created on first subscribe and dropped when the last
// subscriber leaves; rooms never share a lock beyond the map lookup.
type Hub struct {
	maxPending int

	mu     sync.Mutex
	rooms  map[string]*RoomChannel
	closed bool
}

// NewHub creates a hub. maxPending bounds each subscriber's queue; zero means unbounded.
func NewHub(maxPending int) *Hub {
	return &Hub{
		maxPending: maxPending,
		rooms:      make(map[string]*RoomChannel),
	}
}

// Run blocks until ctx is done, then closes the hub.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	slog.Info("hub shutting down gracefully")
	h.Close()
	return ctx.Err()
}

// Room returns the channel for roomID, creating it if needed.
func (h *Hub) Room(roomID string) (*RoomChannel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, &domain.SubscriptionError{RoomID: roomID, Err: domain.ErrSubscriptionClosed}
	}
	if ch, ok := h.rooms[roomID]; ok {
		return ch, nil
	}

	ch := NewRoomChannel(roomID, h.maxPending)
	ch.onEmpty = h.retire
	h.rooms[roomID] = ch
	return ch, nil
}

// Subscribe attaches a new subscriber to roomID's channel.
func (h *Hub) Subscribe(roomID string) (*Subscription, error) {
	for {
		ch, err := h.Room(roomID)
		if err != nil {
			return nil, err
		}
		sub, err := ch.subscribe()
		if errors.Is(err, errRetired) {
			// lost a race with the last subscriber leaving; the hub now has a fresh channel
			continue
		}
		return sub, err
	}
}

// Publish delivers msg to the subscribers of its room, if any.
func (h *Hub) Publish(msg *domain.Message) {
	h.mu.Lock()
	ch, ok := h.rooms[msg.RoomID]
	h.mu.Unlock()
	if ok {
		ch.Publish(msg)
	}
}

func (h *Hub) retire(ch *RoomChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[ch.roomID] != ch {
		return
	}
	if ch.retireIfEmpty() {
		delete(h.rooms, ch.roomID)
		slog.Debug("room channel released", slog.String("room_id", ch.roomID))
	}
}

// Stats returns the subscriber count of every active room.
func (h *Hub) Stats() map[string]int {
	h.mu.Lock()
	rooms := make([]*RoomChannel, 0, len(h.rooms))
	for _, ch := range h.rooms {
		rooms = append(rooms, ch)
	}
	h.mu.Unlock()

	stats := make(map[string]int, len(rooms))
	for _, ch := range rooms {
		stats[ch.roomID] = ch.Len()
	}
	return stats
}

// Close ends every subscription. Further subscribes fail with a SubscriptionError.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	rooms := h.rooms
	h.rooms = make(map[string]*RoomChannel)
	h.mu.Unlock()

	for roomID, ch := range rooms {
		ch.Close()
		slog.Info("closed room channel", slog.String("room_id", roomID))
	}
	slog.Info("hub shutdown complete")
}
