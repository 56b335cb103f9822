package infrastructure

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
	pkgInfra "github.com/mateusmacedo/go-boarding/pkg/infrastructure"
)

// Runs against a real postgres when TEST_DATABASE_DSN is set.
func TestGormPassengerRepository(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	ctx := context.Background()
	repo, err := NewGormPassengerRepository(dsn, pkgApp.NopLogger{})
	require.NoError(t, err)

	vehicle := "gorm-" + pkgInfra.GenerateUUID()
	a, b := row(vehicle+"-a", vehicle, 2), row(vehicle+"-b", vehicle, 1)
	for _, p := range []domain.Passenger{a, b} {
		_, err := repo.Insert(ctx, p)
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		_ = repo.Delete(ctx, a.ID)
		_ = repo.Delete(ctx, b.ID)
	})

	got, err := repo.FetchAll(ctx, vehicle)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)

	seat, status := "1A", domain.StatusBoarding
	updated, err := repo.Update(ctx, a.ID, domain.PassengerUpdate{AssignedSeat: &seat, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "1A", updated.AssignedSeat)
	assert.Equal(t, domain.StatusBoarding, updated.Status)

	_, err = repo.Update(ctx, "missing-"+vehicle, domain.PassengerUpdate{AssignedSeat: &seat})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, a.ID))
	got, err = repo.FetchAll(ctx, vehicle)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
