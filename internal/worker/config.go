// Package worker refreshes the air quality of tracked cities in the
// background and publishes the fresh snapshots.
package worker

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/naoina/toml"

	"github.com/cityaqi/cityaqi/internal/airquality"
)

// RefreshConfig holds configuration for the city refresh job.
type RefreshConfig struct {
	// Cities are refreshed on every run in addition to the tracked cities
	// stored by the service.
	Cities []airquality.Location

	// Concurrency is the number of concurrent refresh operations.
	// Default: 3
	Concurrency int

	// Timeout bounds each city refresh.
	// Default: 30 seconds
	Timeout time.Duration

	// Interval is the ticker period used when no Pub/Sub subscription
	// drives the worker.
	// Default: 15 minutes
	Interval time.Duration
}

// DefaultRefreshConfig returns the default configuration, refreshing only
// the dashboard's default city.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Cities:      []airquality.Location{airquality.CityLocation(airquality.DefaultCity)},
		Concurrency: 3,
		Timeout:     30 * time.Second,
		Interval:    15 * time.Minute,
	}
}

// withDefaults fills unset fields from DefaultRefreshConfig. Cities are
// left as given.
func (c RefreshConfig) withDefaults() RefreshConfig {
	def := DefaultRefreshConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	return c
}

// ConfigFromEnv reads WORKER_INTERVAL, WORKER_CONCURRENCY and
// WORKER_CITIES_FILE. The cities file replaces the default city list.
func ConfigFromEnv() (RefreshConfig, error) {
	cfg := DefaultRefreshConfig()

	if v := os.Getenv("WORKER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return RefreshConfig{}, fmt.Errorf("parse WORKER_INTERVAL: %w", err)
		}
		cfg.Interval = d
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return RefreshConfig{}, fmt.Errorf("parse WORKER_CONCURRENCY: %w", err)
		}
		cfg.Concurrency = n
	}
	if path := os.Getenv("WORKER_CITIES_FILE"); path != "" {
		f, err := os.Open(path) //nolint:gosec // operator supplied path
		if err != nil {
			return RefreshConfig{}, fmt.Errorf("open cities file: %w", err)
		}
		defer f.Close()

		cities, err := LoadCities(f)
		if err != nil {
			return RefreshConfig{}, err
		}
		cfg.Cities = cities
	}

	return cfg.withDefaults(), nil
}

type citiesFile struct {
	City []struct {
		Country string `toml:"country"`
		State   string `toml:"state"`
		City    string `toml:"city"`
	} `toml:"city"`
}

// LoadCities decodes a TOML city list:
//
//	[[city]]
//	country = "india"
//	state = "madhya pradesh"
//	city = "bhopal"
//
// Country and state are optional.
func LoadCities(r io.Reader) ([]airquality.Location, error) {
	var file citiesFile
	if err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode cities file: %w", err)
	}

	cities := make([]airquality.Location, 0, len(file.City))
	for i, c := range file.City {
		loc, err := airquality.ParseLocation(c.Country, c.State, c.City)
		if err != nil {
			return nil, fmt.Errorf("city entry %d: %w", i+1, err)
		}
		cities = append(cities, loc)
	}
	return cities, nil
}
