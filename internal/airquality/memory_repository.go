package airquality

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository keeps snapshots and tracked cities in process memory.
type InMemoryRepository struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	tracked   map[string]TrackedCity
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		snapshots: make(map[string]*Snapshot),
		tracked:   make(map[string]TrackedCity),
	}
}

// SaveSnapshot stores a copy of s.
func (r *InMemoryRepository) SaveSnapshot(_ context.Context, s *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *s
	cp.Stale = false
	r.snapshots[s.Location.Key()] = &cp
	return nil
}

// LatestSnapshot returns a copy of the stored snapshot.
func (r *InMemoryRepository) LatestSnapshot(_ context.Context, loc Location) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.snapshots[loc.Key()]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	cp := *s
	return &cp, nil
}

// AddTrackedCity adds loc unless it is already tracked.
func (r *InMemoryRepository) AddTrackedCity(_ context.Context, loc Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tracked[loc.Key()]; ok {
		return nil
	}
	r.tracked[loc.Key()] = TrackedCity{Location: loc, AddedAt: time.Now().UTC()}
	return nil
}

// RemoveTrackedCity removes loc.
func (r *InMemoryRepository) RemoveTrackedCity(_ context.Context, loc Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tracked, loc.Key())
	return nil
}

// ListTrackedCities returns the tracked cities ordered by key.
func (r *InMemoryRepository) ListTrackedCities(_ context.Context) ([]TrackedCity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TrackedCity, 0, len(r.tracked))
	for _, c := range r.tracked {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Location.Key() < out[j].Location.Key()
	})
	return out, nil
}

var _ Repository = (*InMemoryRepository)(nil)
