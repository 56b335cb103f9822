package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. The structured types below match them.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("passenger not found")
	ErrCapacity          = errors.New("vehicle at capacity")
	ErrEmptyQueue        = errors.New("boarding queue is empty")
	ErrPersistence       = errors.New("persistence failed")
	ErrNoSeatAvailable   = errors.New("no seat available")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownChangeKind = errors.New("unknown change kind")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("passenger %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type CapacityError struct {
	VehicleID string
	Limit     int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("vehicle %s at capacity (%d passengers)", e.VehicleID, e.Limit)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacity }

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("passenger %s: cannot go from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// PersistenceError wraps a store failure whose local mutation was rolled back.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("persist %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

type NoSeatError struct {
	VehicleID string
}

func (e *NoSeatError) Error() string {
	return fmt.Sprintf("vehicle %s has no seat left", e.VehicleID)
}

func (e *NoSeatError) Is(target error) bool { return target == ErrNoSeatAvailable }
