package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityaqi/cityaqi/internal/airquality"
	"github.com/cityaqi/cityaqi/internal/aqi"
	"github.com/cityaqi/cityaqi/internal/worker"
)

type fakeService struct {
	mu         sync.Mutex
	failing    map[string]bool
	tracked    []airquality.TrackedCity
	trackedErr error
	refreshed  []string
}

func (s *fakeService) Refresh(_ context.Context, loc airquality.Location) (*airquality.Snapshot, error) {
	s.mu.Lock()
	s.refreshed = append(s.refreshed, loc.City)
	s.mu.Unlock()

	if s.failing[loc.City] {
		return nil, airquality.ErrProviderUnavailable
	}
	return airquality.NewSnapshot(loc, aqi.NewReading(map[aqi.Pollutant]float64{aqi.PM10: 100}), "test"), nil
}

func (s *fakeService) TrackedCities(_ context.Context) ([]airquality.TrackedCity, error) {
	return s.tracked, s.trackedErr
}

func (s *fakeService) refreshedCities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.refreshed...)
}

type recordingPublisher struct {
	mu        sync.Mutex
	err       error
	snapshots []*airquality.Snapshot
}

func (p *recordingPublisher) Publish(_ context.Context, snapshot *airquality.Snapshot) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snapshot)
	return nil
}

func cities(names ...string) []airquality.Location {
	out := make([]airquality.Location, len(names))
	for i, n := range names {
		out[i] = airquality.CityLocation(n)
	}
	return out
}

func TestDefaultRefreshConfig(t *testing.T) {
	cfg := worker.DefaultRefreshConfig()

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Interval)
	assert.Equal(t, cities("bhopal"), cfg.Cities)
}

func TestRefreshJob_Run_MergesConfiguredAndTrackedCities(t *testing.T) {
	svc := &fakeService{
		tracked: []airquality.TrackedCity{
			{Location: airquality.CityLocation("bhopal")},
			{Location: airquality.CityLocation("indore")},
		},
	}
	pub := &recordingPublisher{}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:     worker.RefreshConfig{Cities: cities("bhopal", "delhi"), Concurrency: 2},
		Service:    svc,
		Publishers: []worker.Publisher{pub},
		Logger:     zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, result.Published)
	assert.Empty(t, result.Errors)
	assert.ElementsMatch(t, []string{"bhopal", "delhi", "indore"}, svc.refreshedCities())
	assert.Len(t, pub.snapshots, 3)
}

func TestRefreshJob_Run_TrackedCitiesErrorKeepsConfiguredCities(t *testing.T) {
	svc := &fakeService{trackedErr: errors.New("db down")}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:  worker.RefreshConfig{Cities: cities("delhi")},
		Service: svc,
		Logger:  zerolog.Nop(),
	})

	result := job.Run(context.Background())
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Successful)
}

func TestRefreshJob_RunCities_CollectsFailures(t *testing.T) {
	svc := &fakeService{failing: map[string]bool{"atlantis": true}}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Service: svc,
		Logger:  zerolog.Nop(),
	})

	result := job.RunCities(context.Background(), cities("bhopal", "atlantis"))

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "atlantis", result.Errors[0].Location.City)
	assert.Equal(t, "refresh", result.Errors[0].Stage)
}

func TestRefreshJob_RunCities_PublishFailureDoesNotFailCity(t *testing.T) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Service:    &fakeService{},
		Publishers: []worker.Publisher{&recordingPublisher{err: errors.New("broker gone")}},
		Logger:     zerolog.Nop(),
	})

	result := job.RunCities(context.Background(), cities("bhopal"))

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 0, result.Published)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "publish", result.Errors[0].Stage)
	assert.Equal(t, int64(1), job.GetMetrics().PublishFailures)
}

func TestRefreshJob_Run_NoService(t *testing.T) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{Cities: cities("bhopal")},
		Logger: zerolog.Nop(),
	})

	result := job.Run(context.Background())
	assert.Equal(t, 1, result.Failed)
}

func TestRefreshJob_Run_ContextCancellation(t *testing.T) {
	names := make([]string, 50)
	for i := range names {
		names[i] = "city" + string(rune('a'+i%26)) + string(rune('a'+i/26))
	}
	svc := &fakeService{}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:  worker.RefreshConfig{Concurrency: 1},
		Service: svc,
		Logger:  zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.RunCities(ctx, cities(names...))

	assert.Equal(t, 50, result.Total)
	assert.Equal(t, 50, result.Failed)
	assert.Empty(t, svc.refreshedCities())
}

func TestRefreshJob_WithAirQualityService(t *testing.T) {
	svc := airquality.NewService(airquality.ServiceConfig{
		Provider: providerFunc(func(_ context.Context, loc airquality.Location) (aqi.Reading, error) {
			return aqi.NewReading(map[aqi.Pollutant]float64{aqi.PM10: 100}), nil
		}),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, svc.TrackCity(context.Background(), airquality.CityLocation("indore")))
	pub := &recordingPublisher{}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:     worker.RefreshConfig{Cities: cities("bhopal")},
		Service:    svc,
		Publishers: []worker.Publisher{pub},
		Logger:     zerolog.Nop(),
	})

	result := job.Run(context.Background())
	assert.Equal(t, 2, result.Successful)
	require.Len(t, pub.snapshots, 2)
	for _, snap := range pub.snapshots {
		assert.InDelta(t, 100.0, snap.Result.AQI, 0.001)
	}
	assert.Equal(t, 2, svc.CacheStatus().Entries)
}

func TestRefreshJob_GetMetrics(t *testing.T) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Service: &fakeService{failing: map[string]bool{"atlantis": true}},
		Logger:  zerolog.Nop(),
	})

	assert.Equal(t, int64(0), job.GetMetrics().TotalRuns)

	_ = job.RunCities(context.Background(), cities("bhopal", "atlantis"))
	_ = job.RunCities(context.Background(), cities("bhopal"))

	metrics := job.GetMetrics()
	assert.Equal(t, int64(2), metrics.TotalRuns)
	assert.Equal(t, int64(2), metrics.SuccessfulRefresh)
	assert.Equal(t, int64(1), metrics.FailedRefreshes)
	assert.NotZero(t, metrics.LastRefreshAt)
	assert.GreaterOrEqual(t, metrics.TotalDuration, metrics.LastRefreshDuration)

	snapshot := job.MetricsSnapshot()
	assert.Equal(t, int64(2), snapshot["total_runs"])
	assert.Contains(t, snapshot, "last_refresh_duration")
	assert.Contains(t, snapshot, "publish_failures")
}

type providerFunc func(ctx context.Context, loc airquality.Location) (aqi.Reading, error)

func (f providerFunc) FetchReading(ctx context.Context, loc airquality.Location) (aqi.Reading, error) {
	return f(ctx, loc)
}

func BenchmarkRefreshJob_Run(b *testing.B) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:  worker.RefreshConfig{Cities: cities("bhopal", "delhi", "indore"), Concurrency: 3},
		Service: &fakeService{},
		Logger:  zerolog.Nop(),
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = job.Run(context.Background())
	}
}
