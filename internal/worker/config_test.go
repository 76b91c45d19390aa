package worker_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityaqi/cityaqi/internal/airquality"
	"github.com/cityaqi/cityaqi/internal/worker"
)

const citiesTOML = `
[[city]]
country = "India"
state = "Madhya Pradesh"
city = "Bhopal"

[[city]]
city = "delhi"
`

func TestLoadCities(t *testing.T) {
	locs, err := worker.LoadCities(strings.NewReader(citiesTOML))
	require.NoError(t, err)

	assert.Equal(t, []airquality.Location{
		{Country: "india", State: "madhya pradesh", City: "bhopal"},
		{Country: "-", State: "-", City: "delhi"},
	}, locs)
}

func TestLoadCities_Errors(t *testing.T) {
	t.Run("missing city", func(t *testing.T) {
		_, err := worker.LoadCities(strings.NewReader("[[city]]\ncountry = \"india\"\n"))
		require.Error(t, err)
		assert.ErrorIs(t, err, airquality.ErrInvalidLocation)
		assert.Contains(t, err.Error(), "city entry 1")
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := worker.LoadCities(strings.NewReader("[[city]\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode cities file")
	})
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("WORKER_INTERVAL", "")
		t.Setenv("WORKER_CONCURRENCY", "")
		t.Setenv("WORKER_CITIES_FILE", "")

		cfg, err := worker.ConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, worker.DefaultRefreshConfig(), cfg)
	})

	t.Run("overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cities.toml")
		require.NoError(t, os.WriteFile(path, []byte(citiesTOML), 0o600))

		t.Setenv("WORKER_INTERVAL", "1m")
		t.Setenv("WORKER_CONCURRENCY", "5")
		t.Setenv("WORKER_CITIES_FILE", path)

		cfg, err := worker.ConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, time.Minute, cfg.Interval)
		assert.Equal(t, 5, cfg.Concurrency)
		assert.Len(t, cfg.Cities, 2)
	})

	t.Run("non-positive concurrency falls back", func(t *testing.T) {
		t.Setenv("WORKER_INTERVAL", "")
		t.Setenv("WORKER_CONCURRENCY", "0")
		t.Setenv("WORKER_CITIES_FILE", "")

		cfg, err := worker.ConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Concurrency)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Setenv("WORKER_INTERVAL", "soon")
		_, err := worker.ConfigFromEnv()
		assert.ErrorContains(t, err, "WORKER_INTERVAL")

		t.Setenv("WORKER_INTERVAL", "")
		t.Setenv("WORKER_CONCURRENCY", "many")
		_, err = worker.ConfigFromEnv()
		assert.ErrorContains(t, err, "WORKER_CONCURRENCY")

		t.Setenv("WORKER_CONCURRENCY", "")
		t.Setenv("WORKER_CITIES_FILE", filepath.Join(t.TempDir(), "missing.toml"))
		_, err = worker.ConfigFromEnv()
		assert.ErrorContains(t, err, "open cities file")
	})
}
