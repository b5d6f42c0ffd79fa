package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"letschat/internal/channel"
	"letschat/internal/domain"
	"letschat/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts ...Option) (*ChatService, *testutil.MockMessageStore, *channel.Hub) {
	t.Helper()
	store := testutil.NewMockMessageStore()
	hub := channel.NewHub(0)
	t.Cleanup(hub.Close)
	return NewChatService(store, hub, opts...), store, hub
}

func nextLive(t *testing.T, feed *Feed) *domain.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := feed.Live.Next(ctx)
	require.NoError(t, err)
	return msg
}

func TestChatService_Send_Success(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	msg, err := svc.Send(ctx, "sports", "alice", "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)
	assert.Equal(t, "sports", msg.RoomID)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hi", msg.Text)
	assert.False(t, msg.Timestamp.IsZero())

	history, err := svc.History(ctx, "sports", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), history[0].ID)
}

func TestChatService_Send_ValidationError(t *testing.T) {
	tests := []struct {
		name     string
		username string
		text     string
		field    string
	}{
		{"empty_username", "", "hi", "username"},
		{"empty_text", "alice", "", "text"},
		{"oversized_text", "alice", string(make([]rune, 11)), "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t, WithMaxMessageLength(10))

			_, err := svc.Send(context.Background(), "sports", tt.username, tt.text)
			require.Error(t, err)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 0, store.Appends(), "store must not be called")

			history, err := svc.History(context.Background(), "sports", 0)
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestChatService_Send_StorageErrorDoesNotPublish(t *testing.T) {
	svc, store, _ := newTestService(t)
	events := testutil.NewMockEventPublisher()
	svc.events = events

	feed, err := svc.Subscribe(context.Background(), "sports")
	require.NoError(t, err)
	defer feed.Close()

	store.AppendFunc = testutil.FailingAppend(testutil.ErrMockStorage)

	_, err = svc.Send(context.Background(), "sports", "alice", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, testutil.ErrMockStorage)

	assert.Equal(t, 0, feed.Live.Pending())
	assert.Empty(t, events.Published())
}

func TestChatService_Send_PublishesToSubscribers(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Subscribe(ctx, "sports")
	require.NoError(t, err)
	defer first.Close()
	second, err := svc.Subscribe(ctx, "sports")
	require.NoError(t, err)
	defer second.Close()

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.Send(ctx, "sports", "alice", text)
		require.NoError(t, err)
	}

	for _, feed := range []*Feed{first, second} {
		for id := int64(1); id <= 3; id++ {
			assert.Equal(t, id, nextLive(t, feed).ID)
		}
	}
}

func TestChatService_Send_ForwardsEvents(t *testing.T) {
	events := testutil.NewMockEventPublisher()
	svc, _, _ := newTestService(t, WithEventPublisher(events))

	msg, err := svc.Send(context.Background(), "sports", "alice", "hi")
	require.NoError(t, err)

	published := events.Published()
	require.Len(t, published, 1)
	assert.Equal(t, msg.ID, published[0].ID)
}

func TestChatService_Send_EventFailureStillSucceeds(t *testing.T) {
	events := testutil.NewMockEventPublisher()
	events.Err = errors.New("broker down")
	svc, _, _ := newTestService(t, WithEventPublisher(events))

	msg, err := svc.Send(context.Background(), "sports", "alice", "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)
}

func TestChatService_UnknownRoom(t *testing.T) {
	rooms := testutil.NewMockRoomRepository(testutil.NewTestRoom(testutil.WithRoomID("sports")))
	svc, store, _ := newTestService(t, WithRoomRepository(rooms))
	ctx := context.Background()

	_, err := svc.Send(ctx, "ghost", "alice", "hi")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.Equal(t, 0, store.Appends())

	_, err = svc.Subscribe(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrSubscription)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = svc.Send(ctx, "sports", "alice", "hi")
	assert.NoError(t, err)
}

func TestChatService_EmptyRoomID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Send(context.Background(), "", "alice", "hi")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestChatService_Subscribe_HistoryThenLive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, text := range []string{"a", "b"} {
		_, err := svc.Send(ctx, "sports", "alice", text)
		require.NoError(t, err)
	}

	feed, err := svc.Subscribe(ctx, "sports")
	require.NoError(t, err)
	defer feed.Close()

	require.Len(t, feed.History, 2)
	assert.Equal(t, int64(2), feed.LastID())

	_, err = svc.Send(ctx, "sports", "bob", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(3), nextLive(t, feed).ID)
}

func TestChatService_Subscribe_ReadFailureLeavesNoSubscription(t *testing.T) {
	svc, store, hub := newTestService(t)
	store.ReadAllFunc = func(ctx context.Context, roomID string) ([]*domain.Message, error) {
		return nil, &domain.StorageError{Op: "read", Err: testutil.ErrMockStorage}
	}

	_, err := svc.Subscribe(context.Background(), "sports")
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Empty(t, hub.Stats())
}

func TestChatService_Subscribe_ClosedHub(t *testing.T) {
	svc, _, hub := newTestService(t)
	hub.Close()

	_, err := svc.Subscribe(context.Background(), "sports")
	assert.ErrorIs(t, err, domain.ErrSubscription)
}

func TestChatService_ConcurrentSendsGetConsecutiveIDs(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	const senders = 40

	var wg sync.WaitGroup
	ids := make(chan int64, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := "alice"
			if i%2 == 1 {
				user = "bob"
			}
			msg, err := svc.Send(ctx, "sports", user, "hello")
			if assert.NoError(t, err) {
				ids <- msg.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	got := make([]int, 0, senders)
	for id := range ids {
		got = append(got, int(id))
	}
	sort.Ints(got)
	for i, id := range got {
		assert.Equal(t, i+1, id)
	}

	history, err := svc.History(ctx, "sports", 0)
	require.NoError(t, err)
	require.Len(t, history, senders)
	for i, m := range history {
		assert.Equal(t, int64(i+1), m.ID)
	}
}

// Every message must land in exactly one of history or live, whatever the interleaving.
func TestChatService_SubscribeRacingSendHasNoGapOrDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	const sends = 200

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < sends; i++ {
			_, err := svc.Send(ctx, "race", "alice", "tick")
			assert.NoError(t, err)
		}
	}()

	feeds := make([]*Feed, 0, 10)
	close(start)
	for i := 0; i < 10; i++ {
		feed, err := svc.Subscribe(ctx, "race")
		require.NoError(t, err)
		feeds = append(feeds, feed)
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	for _, feed := range feeds {
		seen := make(map[int64]bool, sends)
		for _, m := range feed.History {
			seen[m.ID] = true
		}
		expected := feed.LastID() + 1
		for feed.Live.Pending() > 0 {
			msg := nextLive(t, feed)
			require.Equal(t, expected, msg.ID, "live must continue history without gap")
			require.False(t, seen[msg.ID], "message %d in both history and live", msg.ID)
			seen[msg.ID] = true
			expected++
		}
		assert.Len(t, seen, sends)
		feed.Close()
	}
}

func TestChatService_RoomsDoNotBlockEachOther(t *testing.T) {
	svc, store, _ := newTestService(t)
	block := make(chan struct{})
	store.AppendFunc = func(ctx context.Context, roomID, username, text string) (*domain.Message, error) {
		if roomID == "slow" {
			<-block
		}
		return store.Backing.Append(ctx, roomID, username, text)
	}

	go func() {
		_, _ = svc.Send(context.Background(), "slow", "alice", "stuck")
	}()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_, err := svc.Send(context.Background(), "fast", "bob", "through")
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send on an unrelated room was blocked")
	}
	close(block)
}

func TestChatService_UnsubscribeMidStream(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	leaving, err := svc.Subscribe(ctx, "sports")
	require.NoError(t, err)
	staying, err := svc.Subscribe(ctx, "sports")
	require.NoError(t, err)
	defer staying.Close()

	_, err = svc.Send(ctx, "sports", "alice", "one")
	require.NoError(t, err)
	assert.Equal(t, int64(1), nextLive(t, leaving).ID)

	leaving.Close()

	_, err = svc.Send(ctx, "sports", "alice", "two")
	require.NoError(t, err)
	assert.Equal(t, 0, leaving.Live.Pending())
	assert.Equal(t, int64(1), nextLive(t, staying).ID)
	assert.Equal(t, int64(2), nextLive(t, staying).ID)
}

func TestChatService_ListRooms(t *testing.T) {
	t.Run("without_repository", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		rooms, err := svc.ListRooms(context.Background())
		require.NoError(t, err)
		assert.Empty(t, rooms)

		_, err = svc.GetRoom(context.Background(), "sports")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("with_repository", func(t *testing.T) {
		repo := testutil.NewMockRoomRepository(testutil.NewTestRoom(testutil.WithRoomID("sports")))
		svc, _, _ := newTestService(t, WithRoomRepository(repo))

		rooms, err := svc.ListRooms(context.Background())
		require.NoError(t, err)
		assert.Len(t, rooms, 1)

		room, err := svc.GetRoom(context.Background(), "sports")
		require.NoError(t, err)
		assert.Equal(t, "sports", room.ID)
	})
}
