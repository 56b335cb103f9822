package domain

import "context"

// PassengerRepository is the external store as seen by the scheduler.
type PassengerRepository interface {
	// FetchAll returns every record of the vehicle ordered by arrival time.
	FetchAll(ctx context.Context, vehicleID string) ([]Passenger, error)
	// Insert stores p and returns the stored record with its final identifier.
	Insert(ctx context.Context, p Passenger) (Passenger, error)
	// Update writes the non-nil fields and returns the stored record.
	Update(ctx context.Context, id string, fields PassengerUpdate) (Passenger, error)
}

// PassengerPurger is implemented by stores that can drop rows entirely.
type PassengerPurger interface {
	Delete(ctx context.Context, id string) error
}
