package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func row(id, vehicle string, sec int) domain.Passenger {
	return domain.Passenger{
		ID:          id,
		VehicleID:   vehicle,
		Name:        "P " + id,
		Type:        domain.TypeRegular,
		Status:      domain.StatusWaiting,
		ArrivalTime: t0.Add(time.Duration(sec) * time.Second),
	}
}

func TestInMemoryPassengerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryPassengerRepository(pkgApp.NopLogger{})

	for _, p := range []domain.Passenger{row("b", "bus-1", 5), row("a", "bus-1", 1), row("x", "bus-2", 0)} {
		_, err := repo.Insert(ctx, p)
		require.NoError(t, err)
	}
	_, err := repo.Insert(ctx, row("a", "bus-1", 1))
	assert.Error(t, err)

	got, err := repo.FetchAll(ctx, "bus-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	status, seat, pos := domain.StatusBoarding, "1A", 0
	updated, err := repo.Update(ctx, "a", domain.PassengerUpdate{Status: &status, AssignedSeat: &seat, QueuePosition: &pos})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBoarding, updated.Status)
	assert.Equal(t, "1A", updated.AssignedSeat)
	assert.Equal(t, "P a", updated.Name)

	_, err = repo.Update(ctx, "missing", domain.PassengerUpdate{Status: &status})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "a"))
	require.NoError(t, repo.Delete(ctx, "a"))
	assert.Len(t, repo.GetData(), 2)

	empty, err := repo.FetchAll(ctx, "bus-9")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
