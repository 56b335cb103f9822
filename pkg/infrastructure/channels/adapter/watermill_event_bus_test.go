package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateusmacedo/go-boarding/pkg/application"
)

type tick struct {
	Seq int `json:"seq"`
}

type tickEvent struct{ data tick }

func (e tickEvent) EventName() string { return "Ticked" }
func (e tickEvent) Payload() tick     { return e.data }

type tickHandler func(ctx context.Context, e tickEvent) error

func (f tickHandler) Handle(ctx context.Context, e tickEvent) error { return f(ctx, e) }

func TestWatermillEventBus_PublishesAndRunsHandlers(t *testing.T) {
	ps := NewPubSub(8, watermill.NopLogger{})
	defer ps.Close()

	messages, err := ps.Subscribe(context.Background(), "Ticked")
	require.NoError(t, err)
	received := make(chan *message.Message, 1)
	go func() {
		for msg := range messages {
			msg.Ack()
			received <- msg
		}
	}()

	bus := NewWatermillEventBus[tickEvent, tick](ps, application.NopLogger{})
	var handled []int
	bus.RegisterHandler("Ticked", tickHandler(func(_ context.Context, e tickEvent) error {
		handled = append(handled, e.Payload().Seq)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), tickEvent{data: tick{Seq: 7}}))
	assert.Equal(t, []int{7}, handled)

	select {
	case msg := <-received:
		assert.Equal(t, "Ticked", msg.Metadata.Get("event_name"))
		var got tick
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, 7, got.Seq)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_HandlerError(t *testing.T) {
	ps := NewPubSub(8, watermill.NopLogger{})
	defer ps.Close()

	bus := NewWatermillEventBus[tickEvent, tick](ps, application.NopLogger{})
	boom := errors.New("boom")
	bus.RegisterHandler("Ticked", tickHandler(func(context.Context, tickEvent) error { return boom }))

	assert.ErrorIs(t, bus.Publish(context.Background(), tickEvent{}), boom)
}

func TestWatermillEventBus_ClosedPublisher(t *testing.T) {
	ps := NewPubSub(8, watermill.NopLogger{})
	require.NoError(t, ps.Close())

	bus := NewWatermillEventBus[tickEvent, tick](ps, application.NopLogger{})
	assert.Error(t, bus.Publish(context.Background(), tickEvent{}))
}
