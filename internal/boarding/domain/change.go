package domain

import (
	"fmt"
	"time"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is one entry of the store's change feed. Delete events only
// need Passenger.ID.
type ChangeEvent struct {
	Kind      ChangeKind `json:"kind"`
	Passenger Passenger  `json:"passenger"`
}

// Validate rejects events the reconciler cannot interpret.
func (e ChangeEvent) Validate() error {
	switch e.Kind {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChangeKind, e.Kind)
	}
	if e.Passenger.ID == "" {
		return &ValidationError{Field: "passenger.id", Message: "change event without identifier"}
	}
	if e.Kind == ChangeDelete {
		return nil
	}
	if !e.Passenger.Type.Valid() {
		return &ValidationError{Field: "passenger.type", Message: "unknown passenger type " + string(e.Passenger.Type)}
	}
	if e.Passenger.Status != "" && !e.Passenger.Status.Valid() {
		return &ValidationError{Field: "passenger.status", Message: "unknown status " + string(e.Passenger.Status)}
	}
	return nil
}

// FeedTopic is the change-feed topic for one vehicle.
func FeedTopic(vehicleID string) string {
	return "passenger_changes." + vehicleID
}

type ChangeReason string

const (
	ReasonEnqueued   ChangeReason = "enqueued"
	ReasonBoarding   ChangeReason = "boarding"
	ReasonBoarded    ChangeReason = "boarded"
	ReasonCancelled  ChangeReason = "cancelled"
	ReasonReconciled ChangeReason = "reconciled"
	ReasonDeleted    ChangeReason = "deleted"
	ReasonResynced   ChangeReason = "resynced"
	ReasonSeeded     ChangeReason = "seeded"
)

// StateChange is raised once per committed scheduler mutation. Version grows
// by one per mutation of the same vehicle.
type StateChange struct {
	VehicleID   string       `json:"vehicleId"`
	Version     uint64       `json:"version"`
	Reason      ChangeReason `json:"reason"`
	PassengerID string       `json:"passengerId,omitempty"`
	QueueSize   int          `json:"queueSize"`
	At          time.Time    `json:"at"`
}
