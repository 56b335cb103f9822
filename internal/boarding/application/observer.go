package application

import (
	"context"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/internal/boarding/scheduler"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
)

// NewStateChangePublisher turns scheduler notifications into
// BoardingStateChanged events. Publish failures are logged; the mutation
// they describe is already committed.
func NewStateChangePublisher(eventBus StateEventBus, logger pkgApp.AppLogger) scheduler.Observer {
	return scheduler.ObserverFunc(func(ctx context.Context, change domain.StateChange) {
		ctx = context.WithoutCancel(ctx)
		if err := eventBus.Publish(ctx, NewBoardingStateChangedEvent(change)); err != nil {
			pkgApp.LogError(ctx, logger, "state change not published", err, map[string]interface{}{
				"vehicle_id": change.VehicleID,
				"version":    change.Version,
			})
		}
	})
}
