package boarding

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"

	"github.com/mateusmacedo/go-boarding/internal/boarding/application"
	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/internal/boarding/infrastructure"
	"github.com/mateusmacedo/go-boarding/internal/boarding/reconcile"
	"github.com/mateusmacedo/go-boarding/internal/boarding/scheduler"
	"github.com/mateusmacedo/go-boarding/internal/boarding/seating"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
)

type SliceConfig struct {
	Capacity         int
	RequireSeat      bool
	Layout           *seating.Layout
	FeedReconnectMax time.Duration
	RequestTimeout   time.Duration
}

type BoardingSlice struct {
	registry    *scheduler.Registry
	httpHandler *infrastructure.BoardingHTTPHandler
}

// NewBoardingSlice registers the boarding handlers on the buses and builds
// the vehicle registry. A nil subscriber leaves vehicles without a change
// feed; notifiers receive every BoardingStateChanged event after the log
// handler.
func NewBoardingSlice(
	cfg SliceConfig,
	commandBus application.ChangeCommandBus,
	queryBus application.QueueQueryBus,
	eventBus application.StateEventBus,
	repository domain.PassengerRepository,
	subscriber message.Subscriber,
	logger pkgApp.AppLogger,
	notifiers ...application.StateEventHandler,
) *BoardingSlice {
	if cfg.Layout == nil {
		cfg.Layout = seating.DefaultLayout()
	}
	if cfg.FeedReconnectMax <= 0 {
		cfg.FeedReconnectMax = 30 * time.Second
	}

	publisher := application.NewStateChangePublisher(eventBus, logger)
	factory := func(vehicleID string) *scheduler.Scheduler {
		s := scheduler.New(scheduler.Config{
			VehicleID:   vehicleID,
			Capacity:    cfg.Capacity,
			RequireSeat: cfg.RequireSeat,
			Layout:      cfg.Layout,
		}, repository, scheduler.WithLogger(logger))
		s.Subscribe(publisher)
		return s
	}

	opts := []scheduler.RegistryOption{scheduler.WithRegistryLogger(logger)}
	if subscriber != nil {
		opts = append(opts, scheduler.WithStarter(func(ctx context.Context, s *scheduler.Scheduler) (func(), error) {
			return reconcile.NewFeed(subscriber, s,
				reconcile.WithBackoff(time.Second, cfg.FeedReconnectMax),
				reconcile.WithFeedLogger(logger),
			).Start(ctx)
		}))
	}
	registry := scheduler.NewRegistry(factory, opts...)

	commandBus.RegisterHandler(application.ApplyPassengerChangeCommand, application.NewApplyPassengerChangeHandler(registry, logger))
	queryBus.RegisterHandler(application.FindBoardingQueueQuery, application.NewFindBoardingQueueHandler(registry, logger))
	eventBus.RegisterHandler(application.BoardingStateChangedEvent, application.NewBoardingStateChangedLogHandler(logger))
	for _, notifier := range notifiers {
		eventBus.RegisterHandler(application.BoardingStateChangedEvent, notifier)
	}

	var purger infrastructure.Purger
	if p, ok := repository.(infrastructure.Purger); ok {
		purger = p
	}
	httpHandler := infrastructure.NewBoardingHTTPHandler(registry, commandBus, queryBus, purger, logger, cfg.RequestTimeout)

	return &BoardingSlice{
		registry:    registry,
		httpHandler: httpHandler,
	}
}

func (s *BoardingSlice) Registry() *scheduler.Registry {
	return s.registry
}

func (s *BoardingSlice) RegisterRoutes(router chi.Router) {
	s.httpHandler.RegisterRoutes(router)
}

// Close stops every change feed and drops all attached vehicles.
func (s *BoardingSlice) Close() {
	s.registry.Close()
}
