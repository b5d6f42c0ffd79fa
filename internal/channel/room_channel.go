// Package channel fans out newly appended messages to the live subscribers of a room.
package channel

import (
	"errors"
	"log/slog"
	"sync"

	"letschat/internal/domain"
	"letschat/internal/observability"
)

var errRetired = errors.New("room channel retired")

// RoomChannel multiplexes one room's live message stream to its subscribers.
// It never replays history.
type RoomChannel struct {
	roomID     string
	maxPending int

	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	closed  bool
	retired bool

	// onEmpty is called without mu held after the last subscriber leaves.
	onEmpty func(*RoomChannel)
}

// NewRoomChannel creates a channel for roomID. maxPending bounds each
// subscriber's queue; zero means unbounded.
func NewRoomChannel(roomID string, maxPending int) *RoomChannel {
	return &RoomChannel{
		roomID:     roomID,
		maxPending: maxPending,
		subs:       make(map[*Subscription]struct{}),
	}
}

// RoomID returns the room this channel serves.
func (c *RoomChannel) RoomID() string { return c.roomID }

// Publish delivers msg to every subscriber attached at the time of the call.
// Calls are serialized, so all subscribers observe the same order.
// It never waits on a subscriber; one that overflows its queue is evicted.
func (c *RoomChannel) Publish(msg *domain.Message) {
	c.mu.Lock()
	var evicted []*Subscription
	delivered := 0
	for sub := range c.subs {
		if sub.push(msg) {
			delivered++
			continue
		}
		delete(c.subs, sub)
		evicted = append(evicted, sub)
	}
	empty := len(evicted) > 0 && len(c.subs) == 0
	c.mu.Unlock()

	observability.ChatDeliveriesTotal.WithLabelValues(c.roomID).Add(float64(delivered))

	for _, sub := range evicted {
		sub.end(domain.ErrSlowSubscriber, false)
		observability.ChatSubscribersActive.WithLabelValues(c.roomID).Dec()
		observability.ChatSlowSubscribersEvicted.WithLabelValues(c.roomID).Inc()
		slog.Warn("evicted slow subscriber",
			slog.String("room_id", c.roomID),
			slog.String("subscription_id", sub.id),
			slog.Int("max_pending", c.maxPending))
	}
	if empty && c.onEmpty != nil {
		c.onEmpty(c)
	}
}

// Subscribe registers a new subscriber. It receives only messages published
// after Subscribe returns.
func (c *RoomChannel) Subscribe() (*Subscription, error) {
	sub, err := c.subscribe()
	if errors.Is(err, errRetired) {
		return nil, &domain.SubscriptionError{RoomID: c.roomID, Err: domain.ErrSubscriptionClosed}
	}
	return sub, err
}

func (c *RoomChannel) subscribe() (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retired {
		return nil, errRetired
	}
	if c.closed {
		return nil, &domain.SubscriptionError{RoomID: c.roomID, Err: domain.ErrSubscriptionClosed}
	}

	sub := newSubscription(c)
	c.subs[sub] = struct{}{}
	observability.ChatSubscribersActive.WithLabelValues(c.roomID).Inc()
	slog.Debug("subscriber registered",
		slog.String("room_id", c.roomID),
		slog.String("subscription_id", sub.id))
	return sub, nil
}

// Unsubscribe removes sub. No further messages are delivered to it.
// It is idempotent and does not wait for deliveries to other subscribers.
func (c *RoomChannel) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	_, ok := c.subs[sub]
	if ok {
		delete(c.subs, sub)
	}
	empty := ok && len(c.subs) == 0
	c.mu.Unlock()

	sub.end(domain.ErrSubscriptionClosed, true)
	if !ok {
		return
	}

	observability.ChatSubscribersActive.WithLabelValues(c.roomID).Dec()
	slog.Debug("subscriber unregistered",
		slog.String("room_id", c.roomID),
		slog.String("subscription_id", sub.id))

	if empty && c.onEmpty != nil {
		c.onEmpty(c)
	}
}

// Len returns the number of attached subscribers.
func (c *RoomChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close ends every subscription and rejects new ones.
func (c *RoomChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[*Subscription]struct{})
	c.mu.Unlock()

	for sub := range subs {
		sub.end(domain.ErrSubscriptionClosed, true)
		observability.ChatSubscribersActive.WithLabelValues(c.roomID).Dec()
	}
}

// retireIfEmpty marks the channel unusable if nobody is attached. The caller
// holds the hub lock.
func (c *RoomChannel) retireIfEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) > 0 {
		return false
	}
	c.retired = true
	return true
}
