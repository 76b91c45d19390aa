package airquality

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/cityaqi/cityaqi/internal/aqi"
)

// Provider fetches the current pollutant concentrations of a location.
type Provider interface {
	// FetchReading returns ErrCityNotFound for unknown cities and
	// ErrInvalidReading when the upstream answered without usable data.
	FetchReading(ctx context.Context, loc Location) (aqi.Reading, error)
}

// Metrics receives cache and index observations. It is optional.
type Metrics interface {
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
	RecordAQI(provider, category string, value float64)
}

type noopMetrics struct{}

func (noopMetrics) RecordCacheHit(string, string)     {}
func (noopMetrics) RecordCacheMiss(string, string)    {}
func (noopMetrics) RecordAQI(string, string, float64) {}

// ServiceConfig holds configuration for the air quality service.
type ServiceConfig struct {
	Provider Provider

	// ProviderName is stamped on snapshots (default: "aqi-backend").
	ProviderName string

	// Repository keeps the last good snapshots and tracked cities
	// (default: in-memory).
	Repository Repository

	Logger zerolog.Logger

	// CacheTTL is how long a fetched snapshot is served without refetching
	// (default: 5 minutes).
	CacheTTL time.Duration

	Metrics Metrics

	// FetchTimeout bounds one shared provider call (default: 30 seconds).
	FetchTimeout time.Duration

	// DefaultCity is shown by Dashboard when no city was requested
	// (default: DefaultCity).
	DefaultCity string
}

type cacheEntry struct {
	snapshot *Snapshot
	expiry   time.Time
}

// Service serves AQI snapshots per location with caching and falls back to
// the last good snapshot when the provider fails.
type Service struct {
	provider     Provider
	providerName string
	repo         Repository
	logger       zerolog.Logger
	metrics      Metrics
	cacheTTL     time.Duration
	fetchTimeout time.Duration
	defaultCity  string

	mu    sync.RWMutex
	cache map[string]*cacheEntry

	group singleflight.Group
}

// NewService creates a new air quality service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}
	name := cfg.ProviderName
	if name == "" {
		name = "aqi-backend"
	}
	repo := cfg.Repository
	if repo == nil {
		repo = NewInMemoryRepository()
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	defaultCity := cfg.DefaultCity
	if defaultCity == "" {
		defaultCity = DefaultCity
	}
	var metrics Metrics = noopMetrics{}
	if cfg.Metrics != nil {
		metrics = cfg.Metrics
	}

	return &Service{
		provider:     cfg.Provider,
		providerName: name,
		repo:         repo,
		logger:       cfg.Logger,
		metrics:      metrics,
		cacheTTL:     cacheTTL,
		fetchTimeout: fetchTimeout,
		defaultCity:  defaultCity,
		cache:        make(map[string]*cacheEntry),
	}
}

// GetSnapshot returns the air quality of loc. A fresh cached snapshot is
// served as is; otherwise the provider is called once. When that call fails
// the last good snapshot (cache, then repository) is returned marked stale.
func (s *Service) GetSnapshot(ctx context.Context, loc Location) (*Snapshot, error) {
	if snap := s.cached(loc, true); snap != nil {
		s.metrics.RecordCacheHit(s.providerName, "snapshot")
		return snap, nil
	}
	s.metrics.RecordCacheMiss(s.providerName, "snapshot")

	snap, err := s.fetch(ctx, loc)
	if err == nil {
		return snap, nil
	}

	if last := s.lastGood(ctx, loc); last != nil {
		s.logger.Warn().
			Err(err).
			Str("location", loc.Key()).
			Time("fetched_at", last.FetchedAt).
			Msg("serving stale air quality snapshot due to provider error")
		return last.asStale(), nil
	}
	return nil, err
}

// Refresh fetches loc from the provider regardless of the cache. It does not
// fall back to stale data.
func (s *Service) Refresh(ctx context.Context, loc Location) (*Snapshot, error) {
	return s.fetch(ctx, loc)
}

// Dashboard resolves what the dashboard shows after a search for city. When
// city cannot be fetched the previously shown city last is used instead and
// an error notice is attached.
func (s *Service) Dashboard(ctx context.Context, city, last string) (*DashboardView, error) {
	if city == "" {
		city = s.defaultCity
	}

	view := &DashboardView{Requested: CityLocation(city)}

	loc, err := ParseLocation("", "", city)
	var snap *Snapshot
	if err == nil {
		view.Requested = loc
		snap, err = s.GetSnapshot(ctx, loc)
	}

	if err == nil && !snap.Stale {
		view.Snapshot = snap
		view.Notice = Notice{Level: NoticeSuccess, Message: MessageFetched}
		return view, nil
	}

	view.Notice = Notice{Level: NoticeError, Message: MessageFallback}

	if lastLoc, perr := ParseLocation("", "", last); perr == nil && lastLoc != view.Requested {
		if prev, lerr := s.GetSnapshot(ctx, lastLoc); lerr == nil {
			s.logger.Info().
				Str("requested", view.Requested.Key()).
				Str("shown", lastLoc.Key()).
				Msg("dashboard fell back to last searched city")
			view.Snapshot = prev
			view.FellBack = true
			return view, nil
		}
	}

	if snap != nil {
		view.Snapshot = snap
		return view, nil
	}
	return nil, err
}

// Invalidate drops the cached snapshot of loc and reports whether there was
// one.
func (s *Service) Invalidate(loc Location) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cache[loc.Key()]
	delete(s.cache, loc.Key())
	return ok
}

// InvalidateAll drops every cached snapshot and returns how many there were.
func (s *Service) InvalidateAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.cache)
	s.cache = make(map[string]*cacheEntry)
	return n
}

// CacheStatus represents the current state of the cache.
type CacheStatus struct {
	Entries  int
	Fresh    int
	Oldest   time.Time
	Newest   time.Time
	TTL      time.Duration
	Provider string
}

// HasData reports whether anything is cached.
func (c CacheStatus) HasData() bool { return c.Entries > 0 }

// CacheStatus returns information about the current cache state.
func (s *Service) CacheStatus() CacheStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := CacheStatus{TTL: s.cacheTTL, Provider: s.providerName, Entries: len(s.cache)}
	now := time.Now()
	for _, e := range s.cache {
		if now.Before(e.expiry) {
			status.Fresh++
		}
		at := e.snapshot.FetchedAt
		if status.Oldest.IsZero() || at.Before(status.Oldest) {
			status.Oldest = at
		}
		if at.After(status.Newest) {
			status.Newest = at
		}
	}
	return status
}

// TrackCity adds loc to the cities refreshed by the worker.
func (s *Service) TrackCity(ctx context.Context, loc Location) error {
	return s.repo.AddTrackedCity(ctx, loc)
}

// UntrackCity removes loc from the tracked cities.
func (s *Service) UntrackCity(ctx context.Context, loc Location) error {
	return s.repo.RemoveTrackedCity(ctx, loc)
}

// TrackedCities lists the tracked cities.
func (s *Service) TrackedCities(ctx context.Context) ([]TrackedCity, error) {
	return s.repo.ListTrackedCities(ctx)
}

func (s *Service) cached(loc Location, freshOnly bool) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.cache[loc.Key()]
	if !ok || (freshOnly && !time.Now().Before(e.expiry)) {
		return nil
	}
	return e.snapshot
}

func (s *Service) lastGood(ctx context.Context, loc Location) *Snapshot {
	if snap := s.cached(loc, false); snap != nil {
		return snap
	}
	snap, err := s.repo.LatestSnapshot(ctx, loc)
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			s.logger.Error().Err(err).Str("location", loc.Key()).Msg("failed to load stored snapshot")
		}
		return nil
	}
	return snap
}

// fetch calls the provider once per location at a time; concurrent callers
// for the same location share the result. The shared call is detached from
// any single caller's cancellation and bounded by the fetch timeout; each
// caller stops waiting when its own ctx is done.
func (s *Service) fetch(ctx context.Context, loc Location) (*Snapshot, error) {
	ch := s.group.DoChan(loc.Key(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetchOnce(fetchCtx, loc)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (s *Service) fetchOnce(ctx context.Context, loc Location) (*Snapshot, error) {
	s.logger.Debug().Str("location", loc.Key()).Msg("fetching air quality reading")

	reading, err := s.provider.FetchReading(ctx, loc)
	if err != nil {
		if errors.Is(err, ErrCityNotFound) || errors.Is(err, ErrInvalidReading) {
			s.logger.Warn().Err(err).Str("location", loc.Key()).Msg("no air quality data for location")
			return nil, ErrCityNotFound
		}
		s.logger.Error().Err(err).Str("location", loc.Key()).Msg("failed to fetch air quality reading")
		return nil, ErrProviderUnavailable
	}

	snap := NewSnapshot(loc, reading, s.providerName)

	s.mu.Lock()
	s.cache[loc.Key()] = &cacheEntry{snapshot: snap, expiry: time.Now().Add(s.cacheTTL)}
	s.mu.Unlock()

	if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
		s.logger.Error().Err(err).Str("location", loc.Key()).Msg("failed to persist snapshot")
	}

	s.metrics.RecordAQI(s.providerName, string(snap.Result.Category), snap.Result.AQI)
	s.logger.Info().
		Str("location", loc.Key()).
		Float64("aqi", snap.Result.AQI).
		Str("category", string(snap.Result.Category)).
		Msg("air quality snapshot refreshed")
	return snap, nil
}
