package reconcile_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/internal/boarding/reconcile"
)

func publish(t *testing.T, pub message.Publisher, payload []byte) {
	t.Helper()
	require.NoError(t, pub.Publish(domain.FeedTopic("bus-1"), message.NewMessage(watermill.NewUUID(), payload)))
}

func publishEvent(t *testing.T, pub message.Publisher, event domain.ChangeEvent) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	publish(t, pub, payload)
}

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

func TestFeed_AppliesEventsInOrder(t *testing.T) {
	s, _ := newScheduler(t)
	ps := newPubSub(t)
	feed := reconcile.NewFeed(ps, s)
	assert.Equal(t, "passenger_changes.bus-1", feed.Topic())

	stop, err := feed.Start(context.Background())
	require.NoError(t, err)
	defer stop()

	a := remote("A", domain.TypeRegular, 0)
	publishEvent(t, ps, domain.ChangeEvent{Kind: domain.ChangeInsert, Passenger: a})
	publish(t, ps, []byte("{not json"))
	publishEvent(t, ps, domain.ChangeEvent{Kind: "bogus", Passenger: a})
	a.Type = domain.TypeVIP
	publishEvent(t, ps, domain.ChangeEvent{Kind: domain.ChangeUpdate, Passenger: a})
	publishEvent(t, ps, domain.ChangeEvent{Kind: domain.ChangeInsert, Passenger: remote("B", domain.TypeElderly, 1)})

	assert.Eventually(t, func() bool {
		ids := waitingIDs(s)
		return len(ids) == 2 && ids[0] == "A" && ids[1] == "B"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeed_StopEndsConsumption(t *testing.T) {
	s, _ := newScheduler(t)
	ps := newPubSub(t)

	stop, err := reconcile.NewFeed(ps, s).Start(context.Background())
	require.NoError(t, err)
	stop()

	publishEvent(t, ps, domain.ChangeEvent{Kind: domain.ChangeInsert, Passenger: remote("A", domain.TypeVIP, 0)})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, s.Size())
}

type flakySubscriber struct {
	message.Subscriber
	mu    sync.Mutex
	calls int
	first chan *message.Message
}

func (f *flakySubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	switch n {
	case 1:
		return f.first, nil
	case 2:
		return nil, errors.New("broker unavailable")
	default:
		return f.Subscriber.Subscribe(ctx, topic)
	}
}

func (f *flakySubscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestFeed_ReconnectResyncsMissedChanges(t *testing.T) {
	s, repo := newScheduler(t)
	ps := newPubSub(t)
	sub := &flakySubscriber{Subscriber: ps, first: make(chan *message.Message)}

	stop, err := reconcile.NewFeed(sub, s, reconcile.WithBackoff(5*time.Millisecond, 20*time.Millisecond)).Start(context.Background())
	require.NoError(t, err)
	defer stop()

	// Written while the feed is down: no event will ever arrive for it.
	_, err = repo.Insert(context.Background(), remote("missed", domain.TypeVIP, 0))
	require.NoError(t, err)
	close(sub.first)

	assert.Eventually(t, func() bool {
		ids := waitingIDs(s)
		return len(ids) == 1 && ids[0] == "missed"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return sub.Calls() >= 3 }, time.Second, 5*time.Millisecond)

	publishEvent(t, ps, domain.ChangeEvent{Kind: domain.ChangeInsert, Passenger: remote("after", domain.TypeRegular, 1)})
	assert.Eventually(t, func() bool { return s.Size() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeed_SubscribeFailure(t *testing.T) {
	s, _ := newScheduler(t)
	ps := newPubSub(t)
	require.NoError(t, ps.Close())

	_, err := reconcile.NewFeed(ps, s).Start(context.Background())
	assert.Error(t, err)
}
