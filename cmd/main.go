package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"

	"github.com/mateusmacedo/go-boarding/internal/boarding"
	"github.com/mateusmacedo/go-boarding/internal/boarding/application"
	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/internal/boarding/infrastructure"
	"github.com/mateusmacedo/go-boarding/internal/boarding/seating"
	"github.com/mateusmacedo/go-boarding/internal/config"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
	pkgDomain "github.com/mateusmacedo/go-boarding/pkg/domain"
	pkgInfra "github.com/mateusmacedo/go-boarding/pkg/infrastructure"
	channelsAdapter "github.com/mateusmacedo/go-boarding/pkg/infrastructure/channels/adapter"
	kafkaAdapter "github.com/mateusmacedo/go-boarding/pkg/infrastructure/kafka/adapter"
	redisAdapter "github.com/mateusmacedo/go-boarding/pkg/infrastructure/redis/adapter"
	watermillLogAdapter "github.com/mateusmacedo/go-boarding/pkg/infrastructure/watermill/adapter"
	zapAdapter "github.com/mateusmacedo/go-boarding/pkg/infrastructure/zaplogger/adapter"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	appLogger, err := zapAdapter.NewZapAppLogger("go-boarding", cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	wmLogger := watermillLogAdapter.NewWatermillLoggerAdapter(appLogger)

	publisher, subscriber, eventPublisher, closeFeed, err := newFeedTransport(cfg, wmLogger)
	if err != nil {
		pkgApp.LogError(ctx, appLogger, "Erro ao inicializar o transporte do feed", err, map[string]interface{}{
			"driver": cfg.FeedDriver,
		})
		panic(err)
	}
	defer closeFeed()

	store, err := newPassengerStore(cfg, appLogger)
	if err != nil {
		pkgApp.LogError(ctx, appLogger, "Erro ao inicializar o repositório", err, nil)
		panic(err)
	}
	repository := infrastructure.NewPublishingRepository(store, publisher, appLogger)
	defer repository.Close()

	layout := seating.DefaultLayout()
	if cfg.SeatLayoutFile != "" {
		if layout, err = seating.LoadLayout(cfg.SeatLayoutFile); err != nil {
			pkgApp.LogError(ctx, appLogger, "Erro ao carregar o mapa de assentos", err, map[string]interface{}{
				"file": cfg.SeatLayoutFile,
			})
			panic(err)
		}
	}

	commandBus := pkgInfra.NewSimpleCommandBus[pkgDomain.Command[application.ApplyPassengerChangeData], application.ApplyPassengerChangeData](appLogger)
	queryBus := pkgInfra.NewSimpleQueryBus[pkgDomain.Query[application.FindBoardingQueueData], application.FindBoardingQueueData, domain.QueueSnapshot](appLogger)
	eventBus := channelsAdapter.NewWatermillEventBus[pkgDomain.Event[domain.StateChange], domain.StateChange](eventPublisher, appLogger)

	var notifiers []application.StateEventHandler
	if cfg.AMQPURL != "" {
		notifier, err := infrastructure.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPQueue, nil, appLogger)
		if err != nil {
			pkgApp.LogError(ctx, appLogger, "Erro ao conectar no RabbitMQ", err, map[string]interface{}{
				"queue": cfg.AMQPQueue,
			})
			panic(err)
		}
		defer notifier.Close()
		notifiers = append(notifiers, notifier)
	}

	boardingSlice := boarding.NewBoardingSlice(
		boarding.SliceConfig{
			Capacity:         cfg.VehicleCapacity,
			RequireSeat:      cfg.RequireSeatToBoard,
			Layout:           layout,
			FeedReconnectMax: cfg.FeedReconnectMax,
			RequestTimeout:   cfg.RequestTimeout,
		},
		commandBus,
		queryBus,
		eventBus,
		repository,
		subscriber,
		appLogger,
		notifiers...,
	)
	defer boardingSlice.Close()

	router := chi.NewRouter()
	boardingSlice.RegisterRoutes(router)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		appLogger.Info(ctx, "Sinal capturado", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		appLogger.Info(ctx, "Server starting on:"+cfg.Addr(), map[string]interface{}{
			"env":         cfg.Env,
			"feed_driver": cfg.FeedDriver,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pkgApp.LogError(ctx, appLogger, "Erro ao iniciar o servidor", err, nil)
			cancel()
		}
	}()

	<-ctx.Done()
	appLogger.Info(context.Background(), "Encerrando servidor...", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		pkgApp.LogError(context.Background(), appLogger, "Erro ao encerrar servidor", err, nil)
	}

	appLogger.Info(context.Background(), "Servidor encerrado", nil)
}

// newFeedTransport returns the change feed publisher and subscriber, the
// publisher for state events, and a function closing all of them.
func newFeedTransport(cfg config.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, message.Publisher, func(), error) {
	switch cfg.FeedDriver {
	case config.FeedDriverRedis:
		client, err := redisAdapter.NewRedisClient(redisAdapter.ClientConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, nil, err
		}
		consumer, _ := os.Hostname()
		if consumer == "" {
			consumer = watermill.NewShortUUID()
		}
		pub, sub, err := redisAdapter.NewStreamPubSub(client, cfg.FeedConsumerGroup, consumer, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, nil, err
		}
		return pub, sub, pub, closeAll(sub, pub, client), nil
	case config.FeedDriverKafka:
		pub, sub, err := kafkaAdapter.NewKafkaPubSub(cfg.KafkaBrokers, cfg.FeedConsumerGroup, logger)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return pub, sub, pub, closeAll(sub, pub), nil
	default:
		// State events are emitted from inside feed handlers, and feed
		// publishes wait for those handlers to ack. They must not share
		// one in-memory pub/sub.
		feed := channelsAdapter.NewPubSub(256, logger)
		events := channelsAdapter.NewPubSub(256, logger)
		return feed, feed, events, closeAll(feed, events), nil
	}
}

func newPassengerStore(cfg config.Config, logger pkgApp.AppLogger) (domain.PassengerRepository, error) {
	if cfg.DatabaseDSN == "" {
		return infrastructure.NewInMemoryPassengerRepository(logger), nil
	}
	return infrastructure.NewGormPassengerRepository(cfg.DatabaseDSN, logger)
}

func closeAll(closers ...io.Closer) func() {
	return func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
}
