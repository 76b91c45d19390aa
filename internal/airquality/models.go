// Package airquality fetches city pollutant readings, computes their AQI and
// caches the resulting snapshots.
package airquality

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cityaqi/cityaqi/internal/aqi"
)

// Provider and lookup errors.
var (
	ErrCityNotFound        = errors.New("city not found")
	ErrInvalidReading      = errors.New("provider returned no pollutant data")
	ErrProviderUnavailable = errors.New("air quality provider unavailable")
	ErrInvalidLocation     = errors.New("invalid location")
)

const (
	// Placeholder is used for an unknown country or state in upstream paths.
	Placeholder = "-"

	// DefaultCity is shown when no city was requested.
	DefaultCity = "bhopal"
)

// Location identifies a city. Country and State may be Placeholder.
type Location struct {
	Country string `json:"country"`
	State   string `json:"state"`
	City    string `json:"city"`
}

// CityLocation returns the location of city with unknown country and state.
func CityLocation(city string) Location {
	return Location{Country: Placeholder, State: Placeholder, City: city}
}

// ParseLocation normalises the parts and validates the city. Empty country or
// state become Placeholder.
func ParseLocation(country, state, city string) (Location, error) {
	loc := Location{
		Country: normalizePart(country),
		State:   normalizePart(state),
		City:    strings.ToLower(strings.TrimSpace(city)),
	}
	if loc.City == "" || loc.City == Placeholder {
		return Location{}, fmt.Errorf("%w: city is required", ErrInvalidLocation)
	}
	for _, part := range []string{loc.Country, loc.State, loc.City} {
		if strings.Contains(part, "/") {
			return Location{}, fmt.Errorf("%w: %q contains '/'", ErrInvalidLocation, part)
		}
	}
	return loc, nil
}

func normalizePart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Placeholder
	}
	return s
}

// Key is the cache and storage key of the location.
func (l Location) Key() string {
	return l.Country + "/" + l.State + "/" + l.City
}

func (l Location) String() string {
	return l.Key()
}

// Snapshot is the computed air quality of one location at a point in time.
type Snapshot struct {
	Location  Location    `json:"location"`
	Reading   aqi.Reading `json:"reading"`
	Result    aqi.Result  `json:"result"`
	Provider  string      `json:"provider"`
	FetchedAt time.Time   `json:"fetchedAt"`

	// Stale is set when the snapshot is served because a fresh fetch failed.
	Stale bool `json:"stale"`
}

// NewSnapshot computes the AQI of reading and stamps it with the current time.
func NewSnapshot(loc Location, reading aqi.Reading, provider string) *Snapshot {
	return &Snapshot{
		Location:  loc,
		Reading:   reading,
		Result:    aqi.Calculate(reading),
		Provider:  provider,
		FetchedAt: time.Now().UTC(),
	}
}

// asStale returns a copy flagged as stale.
func (s *Snapshot) asStale() *Snapshot {
	cp := *s
	cp.Stale = true
	return &cp
}

// NoticeLevel mirrors the toast severities of the dashboard.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice messages shown with a dashboard view.
const (
	MessageFetched  = "City Fetched Successfully"
	MessageFallback = "City Not Found. Showing last searched city data."
)

// Notice is a user-facing message attached to a dashboard view.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// DashboardView is what the dashboard renders for one search.
type DashboardView struct {
	Requested Location  `json:"requested"`
	Snapshot  *Snapshot `json:"snapshot"`
	Notice    Notice    `json:"notice"`

	// FellBack is true when Snapshot belongs to the previously shown city.
	FellBack bool `json:"fellBack"`
}

// TrackedCity is a location the worker refreshes periodically.
type TrackedCity struct {
	Location Location  `json:"location"`
	AddedAt  time.Time `json:"addedAt"`
}
