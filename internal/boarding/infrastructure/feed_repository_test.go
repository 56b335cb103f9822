package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
	channelsAdapter "github.com/mateusmacedo/go-boarding/pkg/infrastructure/channels/adapter"
)

func nextEvent(t *testing.T, messages <-chan *message.Message) (domain.ChangeEvent, message.Metadata) {
	t.Helper()
	select {
	case msg := <-messages:
		msg.Ack()
		var event domain.ChangeEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		return event, msg.Metadata
	case <-time.After(2 * time.Second):
		t.Fatal("no change event published")
		return domain.ChangeEvent{}, nil
	}
}

func TestPublishingRepository_AnnouncesCommittedWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	defer ps.Close()
	messages, err := ps.Subscribe(ctx, domain.FeedTopic("bus-1"))
	require.NoError(t, err)

	repo := NewPublishingRepository(NewInMemoryPassengerRepository(pkgApp.NopLogger{}), ps, pkgApp.NopLogger{})
	defer repo.Close()

	_, err = repo.Insert(ctx, row("a", "bus-1", 0))
	require.NoError(t, err)
	event, meta := nextEvent(t, messages)
	assert.Equal(t, domain.ChangeInsert, event.Kind)
	assert.Equal(t, "a", event.Passenger.ID)
	assert.Equal(t, "insert", meta.Get("kind"))
	assert.Equal(t, "bus-1", meta.Get("vehicle_id"))

	status := domain.StatusCancelled
	_, err = repo.Update(ctx, "a", domain.PassengerUpdate{Status: &status})
	require.NoError(t, err)
	event, _ = nextEvent(t, messages)
	assert.Equal(t, domain.ChangeUpdate, event.Kind)
	assert.Equal(t, domain.StatusCancelled, event.Passenger.Status)

	require.NoError(t, repo.Delete(ctx, "bus-1", "a"))
	event, _ = nextEvent(t, messages)
	assert.Equal(t, domain.ChangeDelete, event.Kind)
	assert.Equal(t, "a", event.Passenger.ID)

	fetched, err := repo.FetchAll(ctx, "bus-1")
	require.NoError(t, err)
	assert.Empty(t, fetched)
}

func TestPublishingRepository_FailedWriteIsNotAnnounced(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	defer ps.Close()
	messages, err := ps.Subscribe(ctx, domain.FeedTopic("bus-1"))
	require.NoError(t, err)

	repo := NewPublishingRepository(NewInMemoryPassengerRepository(pkgApp.NopLogger{}), ps, pkgApp.NopLogger{})
	defer repo.Close()
	status := domain.StatusBoarding
	_, err = repo.Update(ctx, "ghost", domain.PassengerUpdate{Status: &status})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	select {
	case <-messages:
		t.Fatal("failed write was announced")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishingRepository_AnnouncesInOrderOutsideCallerLock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ps := channelsAdapter.NewPubSub(1, watermill.NopLogger{})
	defer ps.Close()
	messages, err := ps.Subscribe(ctx, domain.FeedTopic("bus-1"))
	require.NoError(t, err)

	repo := NewPublishingRepository(NewInMemoryPassengerRepository(pkgApp.NopLogger{}), ps, pkgApp.NopLogger{})
	defer repo.Close()

	// The consumer takes the same lock the writer holds, the way a feed
	// handler waits for the scheduler.
	var mu sync.Mutex
	const total = 100
	received := make(chan string, total)
	go func() {
		for msg := range messages {
			mu.Lock()
			var event domain.ChangeEvent
			if json.Unmarshal(msg.Payload, &event) == nil {
				received <- event.Passenger.ID
			}
			mu.Unlock()
			msg.Ack()
		}
	}()

	written := make(chan error, 1)
	go func() {
		mu.Lock()
		defer mu.Unlock()
		for i := 0; i < total; i++ {
			if _, err := repo.Insert(ctx, row(fmt.Sprintf("p%03d", i), "bus-1", 0)); err != nil {
				written <- err
				return
			}
		}
		written <- nil
	}()

	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("writes blocked on announcement")
	}

	for i := 0; i < total; i++ {
		select {
		case id := <-received:
			assert.Equal(t, fmt.Sprintf("p%03d", i), id)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d events", i, total)
		}
	}
}

func TestPublishingRepository_CloseFlushesPending(t *testing.T) {
	ctx := context.Background()
	ps := channelsAdapter.NewPubSub(1, watermill.NopLogger{})
	defer ps.Close()
	messages, err := ps.Subscribe(ctx, domain.FeedTopic("bus-1"))
	require.NoError(t, err)
	received := make(chan string, 8)
	go func() {
		for msg := range messages {
			var event domain.ChangeEvent
			if json.Unmarshal(msg.Payload, &event) == nil {
				received <- event.Passenger.ID
			}
			msg.Ack()
		}
	}()

	store := NewInMemoryPassengerRepository(pkgApp.NopLogger{})
	repo := NewPublishingRepository(store, ps, pkgApp.NopLogger{})
	for _, id := range []string{"a", "b", "c"} {
		_, err := repo.Insert(ctx, row(id, "bus-1", 0))
		require.NoError(t, err)
	}
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())

	// Close returns once every queued event was acked.
	require.Len(t, received, 3)
	assert.Equal(t, "a", <-received)
	assert.Equal(t, "b", <-received)
	assert.Equal(t, "c", <-received)

	_, err = repo.Insert(ctx, row("d", "bus-1", 0))
	require.NoError(t, err)
	fetched, err := store.FetchAll(ctx, "bus-1")
	require.NoError(t, err)
	assert.Len(t, fetched, 4)
	select {
	case <-received:
		t.Fatal("write after close was announced")
	case <-time.After(50 * time.Millisecond):
	}
}

type noPurgeRepo struct {
	domain.PassengerRepository
}

func TestPublishingRepository_DeleteUnsupported(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer ps.Close()

	repo := NewPublishingRepository(noPurgeRepo{}, ps, pkgApp.NopLogger{})
	defer repo.Close()
	assert.ErrorIs(t, repo.Delete(context.Background(), "bus-1", "a"), ErrPurgeUnsupported)
}
