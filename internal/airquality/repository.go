package airquality

import (
	"context"
	"errors"
)

// ErrSnapshotNotFound is returned when no snapshot was stored for a location.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Repository persists the last good snapshot per location and the list of
// tracked cities.
type Repository interface {
	// SaveSnapshot stores s as the latest snapshot for its location.
	SaveSnapshot(ctx context.Context, s *Snapshot) error

	// LatestSnapshot returns the last stored snapshot or ErrSnapshotNotFound.
	LatestSnapshot(ctx context.Context, loc Location) (*Snapshot, error)

	// AddTrackedCity adds loc to the tracked set. Adding twice is a no-op.
	AddTrackedCity(ctx context.Context, loc Location) error

	// RemoveTrackedCity removes loc from the tracked set.
	RemoveTrackedCity(ctx context.Context, loc Location) error

	// ListTrackedCities returns the tracked set ordered by key.
	ListTrackedCities(ctx context.Context) ([]TrackedCity, error)
}
