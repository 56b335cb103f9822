package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/pkg/application"
)

// ErrPurgeUnsupported is returned by Delete when the wrapped store cannot
// drop rows.
var ErrPurgeUnsupported = errors.New("store does not support delete")

// PublishingRepository writes through to a store and then announces every
// committed row on the vehicle's change topic. Announcements go through an
// outbox drained by a single goroutine, so they are published in commit
// order and never while the caller holds its own locks. A failed
// announcement is logged only: the row is already durable and a later
// resync picks it up.
type PublishingRepository struct {
	inner     domain.PassengerRepository
	publisher message.Publisher
	logger    application.AppLogger

	mu      sync.Mutex
	wake    *sync.Cond
	pending []outboxEntry
	closed  bool
	done    chan struct{}
	once    sync.Once
}

type outboxEntry struct {
	ctx   context.Context
	event domain.ChangeEvent
}

func NewPublishingRepository(inner domain.PassengerRepository, publisher message.Publisher, logger application.AppLogger) *PublishingRepository {
	r := &PublishingRepository{
		inner:     inner,
		publisher: publisher,
		logger:    logger,
		done:      make(chan struct{}),
	}
	r.wake = sync.NewCond(&r.mu)
	go r.drain()
	return r
}

// Close publishes what is still queued and stops the outbox. Writes after
// Close are stored but not announced.
func (r *PublishingRepository) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.wake.Broadcast()
		r.mu.Unlock()
	})
	<-r.done
	return nil
}

func (r *PublishingRepository) FetchAll(ctx context.Context, vehicleID string) ([]domain.Passenger, error) {
	return r.inner.FetchAll(ctx, vehicleID)
}

func (r *PublishingRepository) Insert(ctx context.Context, p domain.Passenger) (domain.Passenger, error) {
	stored, err := r.inner.Insert(ctx, p)
	if err != nil {
		return domain.Passenger{}, err
	}
	r.announce(ctx, domain.ChangeEvent{Kind: domain.ChangeInsert, Passenger: stored})
	return stored, nil
}

func (r *PublishingRepository) Update(ctx context.Context, id string, fields domain.PassengerUpdate) (domain.Passenger, error) {
	stored, err := r.inner.Update(ctx, id, fields)
	if err != nil {
		return domain.Passenger{}, err
	}
	r.announce(ctx, domain.ChangeEvent{Kind: domain.ChangeUpdate, Passenger: stored})
	return stored, nil
}

// Delete drops the row and announces a delete for vehicleID.
func (r *PublishingRepository) Delete(ctx context.Context, vehicleID, id string) error {
	purger, ok := r.inner.(domain.PassengerPurger)
	if !ok {
		return ErrPurgeUnsupported
	}
	if err := purger.Delete(ctx, id); err != nil {
		return err
	}
	r.announce(ctx, domain.ChangeEvent{
		Kind:      domain.ChangeDelete,
		Passenger: domain.Passenger{ID: id, VehicleID: vehicleID},
	})
	return nil
}

func (r *PublishingRepository) announce(ctx context.Context, event domain.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		application.LogError(ctx, r.logger, "change event dropped after close", errors.New("outbox closed"), map[string]interface{}{
			"kind":         event.Kind,
			"passenger_id": event.Passenger.ID,
		})
		return
	}
	r.pending = append(r.pending, outboxEntry{ctx: context.WithoutCancel(ctx), event: event})
	r.wake.Signal()
}

func (r *PublishingRepository) drain() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.pending) == 0 && !r.closed {
			r.wake.Wait()
		}
		batch := r.pending
		r.pending = nil
		closed := r.closed
		r.mu.Unlock()

		for _, entry := range batch {
			r.publish(entry.ctx, entry.event)
		}
		if closed && len(batch) == 0 {
			return
		}
	}
}

func (r *PublishingRepository) publish(ctx context.Context, event domain.ChangeEvent) {
	topic := domain.FeedTopic(event.Passenger.VehicleID)
	fields := map[string]interface{}{
		"topic":        topic,
		"kind":         event.Kind,
		"passenger_id": event.Passenger.ID,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		application.LogError(ctx, r.logger, "error marshalling change event", err, fields)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", string(event.Kind))
	msg.Metadata.Set("vehicle_id", event.Passenger.VehicleID)
	if err := r.publisher.Publish(topic, msg); err != nil {
		application.LogError(ctx, r.logger, "error publishing change event", err, fields)
		return
	}

	fields["message_id"] = msg.UUID
	application.LogTrace(ctx, r.logger, "change event published", fields)
}
