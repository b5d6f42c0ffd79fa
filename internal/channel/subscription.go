package channel

import (
	"context"
	"iter"
	"sync"

	"letschat/internal/domain"

	"github.com/google/uuid"
)

// Subscription is one subscriber's live feed for a room. Messages queue in
// publish order in a private buffer, so a slow reader never holds up the
// publisher or other subscribers.
type Subscription struct {
	id         string
	roomID     string
	channel    *RoomChannel
	maxPending int

	mu     sync.Mutex
	queue  []*domain.Message
	err    error
	notify chan struct{}
	done   chan struct{}
}

func newSubscription(ch *RoomChannel) *Subscription {
	return &Subscription{
		id:         uuid.NewString(),
		roomID:     ch.roomID,
		channel:    ch,
		maxPending: ch.maxPending,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id }

// RoomID returns the room this subscription is attached to.
func (s *Subscription) RoomID() string { return s.roomID }

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns why the subscription ended, or nil while it is active.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// push queues msg. It returns false when the subscriber has overflowed
// its pending limit and must be evicted.
func (s *Subscription) push(msg *domain.Message) bool {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return true
	}
	if s.maxPending > 0 && len(s.queue) >= s.maxPending {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

// end marks the subscription finished. When drop is set, undelivered
// messages are discarded; otherwise Next keeps returning them before err.
func (s *Subscription) end(err error, drop bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if drop {
		s.queue = nil
	}
	if s.err != nil {
		return false
	}
	s.err = err
	close(s.done)
	return true
}

// Next blocks until the next message is published, the subscription ends,
// or ctx is done. Messages are shared between subscribers and must not be modified.
func (s *Subscription) Next(ctx context.Context) (*domain.Message, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return msg, nil
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Messages yields live messages until the subscription ends or ctx is done.
// The final pair carries the terminating error.
func (s *Subscription) Messages(ctx context.Context) iter.Seq2[*domain.Message, error] {
	return func(yield func(*domain.Message, error) bool) {
		for {
			msg, err := s.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Pending returns the number of queued, undelivered messages.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.channel.Unsubscribe(s)
}
