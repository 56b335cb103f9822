// Package reconcile applies the store's change feed to a vehicle scheduler.
package reconcile

import (
	"context"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/pkg/application"
)

// Target is the part of a scheduler a reconciler drives.
type Target interface {
	VehicleID() string
	ApplyRemote(ctx context.Context, remote domain.Passenger) (bool, error)
	Forget(ctx context.Context, id string) bool
}

type Reconciler struct {
	target Target
	logger application.AppLogger
}

func NewReconciler(target Target, logger application.AppLogger) *Reconciler {
	if logger == nil {
		logger = application.NopLogger{}
	}
	return &Reconciler{target: target, logger: logger}
}

// Apply converges the target to one change event. Insert and update are
// the same operation: a duplicate insert updates, an update for an unknown
// record inserts. Deleting an unknown record is not an error. changed
// reports whether local state moved.
func (r *Reconciler) Apply(ctx context.Context, event domain.ChangeEvent) (changed bool, err error) {
	if event.Passenger.VehicleID == "" {
		event.Passenger.VehicleID = r.target.VehicleID()
	}
	fields := map[string]interface{}{
		"vehicle_id":   r.target.VehicleID(),
		"kind":         event.Kind,
		"passenger_id": event.Passenger.ID,
	}

	if err := event.Validate(); err != nil {
		application.LogError(ctx, r.logger, "discarding invalid change event", err, fields)
		return false, err
	}

	switch event.Kind {
	case domain.ChangeDelete:
		changed = r.target.Forget(ctx, event.Passenger.ID)
	default:
		changed, err = r.target.ApplyRemote(ctx, event.Passenger)
		if err != nil {
			application.LogError(ctx, r.logger, "change event not applied", err, fields)
			return false, err
		}
	}

	fields["changed"] = changed
	application.LogDebug(ctx, r.logger, "change event applied", fields)
	return changed, nil
}
