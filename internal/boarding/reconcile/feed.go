package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/pkg/application"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// FeedTarget is a reconciliation target that can re-read the store after a
// disconnect.
type FeedTarget interface {
	Target
	Resync(ctx context.Context) error
}

type FeedOption func(*Feed)

func WithBackoff(initial, limit time.Duration) FeedOption {
	return func(f *Feed) {
		if initial > 0 {
			f.minBackoff = initial
		}
		if limit >= f.minBackoff {
			f.maxBackoff = limit
		}
	}
}

func WithFeedLogger(logger application.AppLogger) FeedOption {
	return func(f *Feed) { f.logger = logger }
}

// Feed consumes one vehicle's change topic. Messages are applied one at a
// time in delivery order and always acked: the feed cannot redeliver, so a
// message that fails to apply is logged and dropped. Events missed while
// disconnected are recovered by a resync after resubscribing.
type Feed struct {
	subscriber message.Subscriber
	target     FeedTarget
	reconciler *Reconciler
	topic      string
	logger     application.AppLogger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewFeed(subscriber message.Subscriber, target FeedTarget, opts ...FeedOption) *Feed {
	f := &Feed{
		subscriber: subscriber,
		target:     target,
		topic:      domain.FeedTopic(target.VehicleID()),
		logger:     application.NopLogger{},
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.reconciler = NewReconciler(target, f.logger)
	return f
}

func (f *Feed) Topic() string {
	return f.topic
}

// Start subscribes and consumes in the background until ctx is done or the
// returned stop function is called. stop waits for the consumer to exit.
func (f *Feed) Start(ctx context.Context) (stop func(), err error) {
	runCtx, cancel := context.WithCancel(ctx)
	messages, err := f.subscriber.Subscribe(runCtx, f.topic)
	if err != nil {
		cancel()
		application.LogError(ctx, f.logger, "change feed subscribe failed", err, map[string]interface{}{
			"topic": f.topic,
		})
		return nil, fmt.Errorf("subscribe %s: %w", f.topic, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.run(runCtx, messages)
	}()

	application.LogInfo(ctx, f.logger, "change feed started", map[string]interface{}{"topic": f.topic})
	return func() {
		cancel()
		wg.Wait()
	}, nil
}

func (f *Feed) run(ctx context.Context, messages <-chan *message.Message) {
	for {
		f.consume(ctx, messages)
		if ctx.Err() != nil {
			return
		}

		application.LogInfo(ctx, f.logger, "change feed closed, reconnecting", map[string]interface{}{"topic": f.topic})
		messages = f.resubscribe(ctx)
		if messages == nil {
			return
		}
		if err := f.target.Resync(ctx); err != nil {
			application.LogError(ctx, f.logger, "resync after reconnect failed", err, map[string]interface{}{
				"topic": f.topic,
			})
		}
	}
}

func (f *Feed) consume(ctx context.Context, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			f.handle(ctx, msg)
			msg.Ack()
		}
	}
}

func (f *Feed) handle(ctx context.Context, msg *message.Message) {
	var event domain.ChangeEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		application.LogError(ctx, f.logger, "discarding undecodable change message", err, map[string]interface{}{
			"topic":      f.topic,
			"message_id": msg.UUID,
		})
		return
	}
	// Errors are already logged by the reconciler.
	_, _ = f.reconciler.Apply(ctx, event)
}

// resubscribe retries with exponential backoff. It returns nil once ctx is
// done.
func (f *Feed) resubscribe(ctx context.Context) <-chan *message.Message {
	backoff := f.minBackoff
	for {
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		messages, err := f.subscriber.Subscribe(ctx, f.topic)
		if err == nil {
			application.LogInfo(ctx, f.logger, "change feed resubscribed", map[string]interface{}{"topic": f.topic})
			return messages
		}
		application.LogError(ctx, f.logger, "change feed resubscribe failed", err, map[string]interface{}{
			"topic":   f.topic,
			"backoff": backoff.String(),
		})
		if backoff < f.maxBackoff {
			backoff *= 2
			if backoff > f.maxBackoff {
				backoff = f.maxBackoff
			}
		}
	}
}
