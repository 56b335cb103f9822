package application

import (
	"context"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/internal/boarding/reconcile"
	"github.com/mateusmacedo/go-boarding/internal/boarding/scheduler"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
	pkgDomain "github.com/mateusmacedo/go-boarding/pkg/domain"
)

type (
	ChangeCommandHandler = pkgApp.CommandHandler[pkgDomain.Command[ApplyPassengerChangeData], ApplyPassengerChangeData]
	ChangeCommandBus     = pkgApp.CommandBus[pkgDomain.Command[ApplyPassengerChangeData], ApplyPassengerChangeData]
	QueueQueryHandler    = pkgApp.QueryHandler[pkgDomain.Query[FindBoardingQueueData], FindBoardingQueueData, domain.QueueSnapshot]
	QueueQueryBus        = pkgApp.QueryBus[pkgDomain.Query[FindBoardingQueueData], FindBoardingQueueData, domain.QueueSnapshot]
	StateEventHandler    = pkgApp.EventHandler[pkgDomain.Event[domain.StateChange], domain.StateChange]
	StateEventBus        = pkgApp.EventBus[pkgDomain.Event[domain.StateChange], domain.StateChange]
)

// SchedulerLookup resolves an attached vehicle.
type SchedulerLookup interface {
	Get(vehicleID string) (*scheduler.Scheduler, error)
}

type applyPassengerChangeHandler struct {
	schedulers SchedulerLookup
	logger     pkgApp.AppLogger
}

func (h *applyPassengerChangeHandler) Handle(ctx context.Context, command pkgDomain.Command[ApplyPassengerChangeData]) error {
	if ctx.Err() != nil {
		pkgApp.LogError(ctx, h.logger, "context cancelled", ctx.Err(), nil)
		return ctx.Err()
	}

	data := command.Payload()
	s, err := h.schedulers.Get(data.VehicleID)
	if err != nil {
		pkgApp.LogError(ctx, h.logger, "change for unknown vehicle", err, map[string]interface{}{
			"vehicle_id": data.VehicleID,
		})
		return err
	}

	changed, err := reconcile.NewReconciler(s, h.logger).Apply(ctx, data.Event)
	if err != nil {
		return err
	}

	pkgApp.LogInfo(ctx, h.logger, "pushed change applied", map[string]interface{}{
		"vehicle_id":   data.VehicleID,
		"kind":         data.Event.Kind,
		"passenger_id": data.Event.Passenger.ID,
		"changed":      changed,
	})
	return nil
}

func NewApplyPassengerChangeHandler(schedulers SchedulerLookup, logger pkgApp.AppLogger) ChangeCommandHandler {
	return &applyPassengerChangeHandler{
		schedulers: schedulers,
		logger:     logger,
	}
}

type findBoardingQueueHandler struct {
	schedulers SchedulerLookup
	logger     pkgApp.AppLogger
}

func (h *findBoardingQueueHandler) Handle(ctx context.Context, query pkgDomain.Query[FindBoardingQueueData]) (domain.QueueSnapshot, error) {
	if ctx.Err() != nil {
		pkgApp.LogError(ctx, h.logger, "context cancelled", ctx.Err(), nil)
		return domain.QueueSnapshot{}, ctx.Err()
	}

	data := query.Payload()
	s, err := h.schedulers.Get(data.VehicleID)
	if err != nil {
		pkgApp.LogError(ctx, h.logger, "queue requested for unknown vehicle", err, map[string]interface{}{
			"vehicle_id": data.VehicleID,
		})
		return domain.QueueSnapshot{}, err
	}

	snapshot := s.Snapshot()
	pkgApp.LogDebug(ctx, h.logger, "boarding queue read", map[string]interface{}{
		"vehicle_id": data.VehicleID,
		"version":    snapshot.Version,
		"waiting":    len(snapshot.Waiting),
	})
	return snapshot, nil
}

func NewFindBoardingQueueHandler(schedulers SchedulerLookup, logger pkgApp.AppLogger) QueueQueryHandler {
	return &findBoardingQueueHandler{
		schedulers: schedulers,
		logger:     logger,
	}
}

type boardingStateChangedLogHandler struct {
	logger pkgApp.AppLogger
}

func (h *boardingStateChangedLogHandler) Handle(ctx context.Context, event pkgDomain.Event[domain.StateChange]) error {
	if ctx.Err() != nil {
		pkgApp.LogError(ctx, h.logger, "context cancelled", ctx.Err(), nil)
		return ctx.Err()
	}

	change := event.Payload()
	pkgApp.LogInfo(ctx, h.logger, "boarding state changed", map[string]interface{}{
		"vehicle_id":   change.VehicleID,
		"version":      change.Version,
		"reason":       change.Reason,
		"passenger_id": change.PassengerID,
		"queue_size":   change.QueueSize,
	})
	return nil
}

func NewBoardingStateChangedLogHandler(logger pkgApp.AppLogger) StateEventHandler {
	return &boardingStateChangedLogHandler{
		logger: logger,
	}
}
