package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cityaqi/cityaqi/internal/airquality"
)

// CityService is the part of the air quality service the worker drives.
type CityService interface {
	Refresh(ctx context.Context, loc airquality.Location) (*airquality.Snapshot, error)
	TrackedCities(ctx context.Context) ([]airquality.TrackedCity, error)
}

// Publisher forwards a freshly computed snapshot to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, snapshot *airquality.Snapshot) error
}

// RefreshJob refreshes tracked cities and publishes their snapshots.
type RefreshJob struct {
	config     RefreshConfig
	service    CityService
	publishers []Publisher
	logger     zerolog.Logger

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns         int64
	SuccessfulRefresh int64
	FailedRefreshes   int64
	PublishFailures   int64

	// Timings
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config     RefreshConfig
	Service    CityService
	Publishers []Publisher
	Logger     zerolog.Logger
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:     cfg.Config.withDefaults(),
		service:    cfg.Service,
		publishers: cfg.Publishers,
		logger:     cfg.Logger,
		metrics:    &RefreshMetrics{},
	}
}

// Interval is the configured ticker period.
func (j *RefreshJob) Interval() time.Duration {
	return j.config.Interval
}

// RefreshResult contains the result of a refresh operation.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Published  int
	Errors     []RefreshError
}

// RefreshError records a failed step for one city.
type RefreshError struct {
	Location airquality.Location
	// Stage is "refresh" or "publish".
	Stage string
	Error string
}

// Run refreshes every configured and tracked city once.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	return j.RunCities(ctx, j.targets(ctx))
}

// RunCities refreshes the given cities with the configured concurrency.
func (j *RefreshJob) RunCities(ctx context.Context, cities []airquality.Location) *RefreshResult {
	startTime := time.Now()
	result := &RefreshResult{
		StartTime: startTime,
		Total:     len(cities),
	}

	j.logger.Info().
		Int("total_cities", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting city refresh job")

	citiesChan := make(chan airquality.Location, len(cities))
	resultsChan := make(chan cityResult, len(cities))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, citiesChan, resultsChan)
		}()
	}

	for _, c := range cities {
		citiesChan <- c
	}
	close(citiesChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for cr := range resultsChan {
		if cr.success {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Published += cr.published
		result.Errors = append(result.Errors, cr.errors...)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("published", result.Published).
		Msg("city refresh job completed")

	return result
}

// targets merges the configured cities with the tracked ones, keeping the
// first occurrence of each location.
func (j *RefreshJob) targets(ctx context.Context) []airquality.Location {
	seen := make(map[string]bool)
	var out []airquality.Location
	add := func(loc airquality.Location) {
		if seen[loc.Key()] {
			return
		}
		seen[loc.Key()] = true
		out = append(out, loc)
	}

	for _, loc := range j.config.Cities {
		add(loc)
	}

	if j.service != nil {
		tracked, err := j.service.TrackedCities(ctx)
		if err != nil {
			j.logger.Warn().Err(err).Msg("failed to list tracked cities, refreshing configured cities only")
		}
		for _, tc := range tracked {
			add(tc.Location)
		}
	}
	return out
}

type cityResult struct {
	success   bool
	published int
	errors    []RefreshError
}

func (j *RefreshJob) refreshWorker(ctx context.Context, cities <-chan airquality.Location, results chan<- cityResult) {
	for loc := range cities {
		select {
		case <-ctx.Done():
			results <- cityResult{errors: []RefreshError{{Location: loc, Stage: "refresh", Error: ctx.Err().Error()}}}
		default:
			results <- j.refreshCity(ctx, loc)
		}
	}
}

func (j *RefreshJob) refreshCity(ctx context.Context, loc airquality.Location) cityResult {
	if j.service == nil {
		return cityResult{errors: []RefreshError{{Location: loc, Stage: "refresh", Error: errNoService.Error()}}}
	}

	cityCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	snapshot, err := j.service.Refresh(cityCtx, loc)
	if err != nil {
		j.logger.Warn().Err(err).Str("location", loc.Key()).Msg("city refresh failed")
		return cityResult{errors: []RefreshError{{Location: loc, Stage: "refresh", Error: err.Error()}}}
	}

	result := cityResult{success: true}
	for _, p := range j.publishers {
		if err := p.Publish(cityCtx, snapshot); err != nil {
			j.logger.Warn().Err(err).Str("location", loc.Key()).Msg("snapshot publish failed")
			result.errors = append(result.errors, RefreshError{Location: loc, Stage: "publish", Error: err.Error()})
			continue
		}
		result.published++
	}
	return result
}

var errNoService = errors.New("no air quality service configured")

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulRefresh += int64(result.Successful)
	j.metrics.FailedRefreshes += int64(result.Failed)
	for _, e := range result.Errors {
		if e.Stage == "publish" {
			j.metrics.PublishFailures++
		}
	}
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:           j.metrics.TotalRuns,
		SuccessfulRefresh:   j.metrics.SuccessfulRefresh,
		FailedRefreshes:     j.metrics.FailedRefreshes,
		PublishFailures:     j.metrics.PublishFailures,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		TotalDuration:       j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map for the health
// endpoint.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":            m.TotalRuns,
		"successful_refreshes":  m.SuccessfulRefresh,
		"failed_refreshes":      m.FailedRefreshes,
		"publish_failures":      m.PublishFailures,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
	}
}
