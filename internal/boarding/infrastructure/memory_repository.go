package infrastructure

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
)

// InMemoryPassengerRepository keeps passenger_queue rows in a map. It is
// the store used when no database is configured.
type InMemoryPassengerRepository struct {
	mu     sync.RWMutex
	data   map[string]domain.Passenger
	logger pkgApp.AppLogger
}

func NewInMemoryPassengerRepository(logger pkgApp.AppLogger) *InMemoryPassengerRepository {
	return &InMemoryPassengerRepository{
		data:   make(map[string]domain.Passenger),
		logger: logger,
	}
}

func (r *InMemoryPassengerRepository) FetchAll(ctx context.Context, vehicleID string) ([]domain.Passenger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	passengers := make([]domain.Passenger, 0)
	for _, p := range r.data {
		if p.VehicleID == vehicleID {
			passengers = append(passengers, p)
		}
	}
	sort.Slice(passengers, func(i, j int) bool {
		if !passengers[i].ArrivalTime.Equal(passengers[j].ArrivalTime) {
			return passengers[i].ArrivalTime.Before(passengers[j].ArrivalTime)
		}
		return passengers[i].ID < passengers[j].ID
	})

	pkgApp.LogDebug(ctx, r.logger, "passengers fetched", map[string]interface{}{
		"vehicle_id": vehicleID,
		"count":      len(passengers),
	})
	return passengers, nil
}

func (r *InMemoryPassengerRepository) Insert(ctx context.Context, p domain.Passenger) (domain.Passenger, error) {
	if err := ctx.Err(); err != nil {
		return domain.Passenger{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[p.ID]; exists {
		err := fmt.Errorf("passenger %s already exists", p.ID)
		pkgApp.LogError(ctx, r.logger, "passenger insert failed", err, map[string]interface{}{
			"passenger_id": p.ID,
		})
		return domain.Passenger{}, err
	}
	r.data[p.ID] = p

	pkgApp.LogDebug(ctx, r.logger, "passenger inserted", map[string]interface{}{
		"passenger_id": p.ID,
		"vehicle_id":   p.VehicleID,
	})
	return p, nil
}

func (r *InMemoryPassengerRepository) Update(ctx context.Context, id string, fields domain.PassengerUpdate) (domain.Passenger, error) {
	if err := ctx.Err(); err != nil {
		return domain.Passenger{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.data[id]
	if !exists {
		return domain.Passenger{}, &domain.NotFoundError{ID: id}
	}
	p = fields.Apply(p)
	r.data[id] = p

	pkgApp.LogDebug(ctx, r.logger, "passenger updated", map[string]interface{}{
		"passenger_id": id,
		"columns":      len(fields.Columns()),
	})
	return p, nil
}

// Delete removes the row. Deleting a missing row is not an error.
func (r *InMemoryPassengerRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
	return nil
}

// GetData returns a copy of every stored row.
func (r *InMemoryPassengerRepository) GetData() map[string]domain.Passenger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.Passenger, len(r.data))
	for id, p := range r.data {
		out[id] = p
	}
	return out
}
