package adapter

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPubSub_DeliversInPublishOrder(t *testing.T) {
	ps := NewPubSub(8, watermill.NopLogger{})
	defer ps.Close()

	messages, err := ps.Subscribe(context.Background(), "ordered")
	require.NoError(t, err)

	const total = 200
	published := make(chan error, 1)
	go func() {
		for i := 0; i < total; i++ {
			if err := ps.Publish("ordered", message.NewMessage(watermill.NewUUID(), []byte(strconv.Itoa(i)))); err != nil {
				published <- err
				return
			}
		}
		published <- nil
	}()

	got := make([]int, 0, total)
	for len(got) < total {
		select {
		case msg := <-messages:
			n, err := strconv.Atoi(string(msg.Payload))
			require.NoError(t, err)
			got = append(got, n)
			msg.Ack()
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d messages", len(got), total)
		}
	}
	require.NoError(t, <-published)

	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestNewPubSub_PublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	ps := NewPubSub(8, watermill.NopLogger{})
	defer ps.Close()

	done := make(chan error, 1)
	go func() { done <- ps.Publish("nobody", message.NewMessage(watermill.NewUUID(), nil)) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}
