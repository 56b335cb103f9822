package infrastructure

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
	pkgDomain "github.com/mateusmacedo/go-boarding/pkg/domain"
)

// AMQPChannel is the subset of *amqp.Channel the notifier uses.
type AMQPChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPDialer opens a channel and returns the connection that owns it.
type AMQPDialer func(url string) (AMQPChannel, io.Closer, error)

func DialAMQP(url string) (AMQPChannel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn, nil
}

// AMQPNotifier publishes BoardingStateChanged events as persistent JSON
// messages to a durable queue on the default exchange. A failed publish
// drops the connection; the next event dials again.
type AMQPNotifier struct {
	url    string
	queue  string
	dial   AMQPDialer
	logger pkgApp.AppLogger

	mu   sync.Mutex
	ch   AMQPChannel
	conn io.Closer
}

func NewAMQPNotifier(url, queue string, dial AMQPDialer, logger pkgApp.AppLogger) (*AMQPNotifier, error) {
	if dial == nil {
		dial = DialAMQP
	}
	n := &AMQPNotifier{url: url, queue: queue, dial: dial, logger: logger}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.connect(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *AMQPNotifier) Handle(ctx context.Context, event pkgDomain.Event[domain.StateChange]) error {
	if ctx.Err() != nil {
		pkgApp.LogError(ctx, n.logger, "context cancelled", ctx.Err(), nil)
		return ctx.Err()
	}

	change := event.Payload()
	body, err := json.Marshal(change)
	if err != nil {
		pkgApp.LogError(ctx, n.logger, "rabbitmq: marshal event failed", err, nil)
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch == nil {
		if err := n.connect(); err != nil {
			pkgApp.LogError(ctx, n.logger, "rabbitmq: reconnect failed", err, map[string]interface{}{"queue": n.queue})
			return err
		}
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event.EventName(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := n.ch.PublishWithContext(ctx, "", n.queue, false, false, pub); err != nil {
		pkgApp.LogError(ctx, n.logger, "rabbitmq: publish failed", err, map[string]interface{}{
			"queue":      n.queue,
			"vehicle_id": change.VehicleID,
			"version":    change.Version,
		})
		n.disconnect()
		return err
	}

	pkgApp.LogDebug(ctx, n.logger, "rabbitmq: state change published", map[string]interface{}{
		"queue":      n.queue,
		"vehicle_id": change.VehicleID,
		"version":    change.Version,
	})
	return nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnect()
	return nil
}

// connect dials and declares the queue. The caller holds n.mu.
func (n *AMQPNotifier) connect() error {
	ch, conn, err := n.dial(n.url)
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
		return err
	}
	n.ch, n.conn = ch, conn
	return nil
}

func (n *AMQPNotifier) disconnect() {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
	n.ch, n.conn = nil, nil
}
