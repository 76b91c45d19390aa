package airquality_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityaqi/cityaqi/internal/airquality"
)

func TestInMemoryRepository_Snapshots(t *testing.T) {
	repo := airquality.NewInMemoryRepository()
	ctx := context.Background()
	loc := airquality.CityLocation("bhopal")

	_, err := repo.LatestSnapshot(ctx, loc)
	assert.ErrorIs(t, err, airquality.ErrSnapshotNotFound)

	snap := airquality.NewSnapshot(loc, bhopalReading(), "test")
	snap.Stale = true
	require.NoError(t, repo.SaveSnapshot(ctx, snap))

	got, err := repo.LatestSnapshot(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, snap.Result.AQI, got.Result.AQI)
	assert.False(t, got.Stale, "stored snapshots are never stale")

	got.Provider = "changed"
	again, err := repo.LatestSnapshot(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, "test", again.Provider)
}

func TestInMemoryRepository_TrackedCities(t *testing.T) {
	repo := airquality.NewInMemoryRepository()
	ctx := context.Background()

	cities, err := repo.ListTrackedCities(ctx)
	require.NoError(t, err)
	assert.Empty(t, cities)

	for _, c := range []string{"pune", "delhi", "pune"} {
		require.NoError(t, repo.AddTrackedCity(ctx, airquality.CityLocation(c)))
	}

	cities, err = repo.ListTrackedCities(ctx)
	require.NoError(t, err)
	require.Len(t, cities, 2)
	assert.Equal(t, "delhi", cities[0].Location.City)
	assert.Equal(t, "pune", cities[1].Location.City)

	require.NoError(t, repo.RemoveTrackedCity(ctx, airquality.CityLocation("delhi")))
	require.NoError(t, repo.RemoveTrackedCity(ctx, airquality.CityLocation("missing")))

	cities, err = repo.ListTrackedCities(ctx)
	require.NoError(t, err)
	assert.Len(t, cities, 1)
}
