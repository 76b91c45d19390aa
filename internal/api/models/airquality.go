package models

import (
	"github.com/cityaqi/cityaqi/internal/airquality"
	"github.com/cityaqi/cityaqi/internal/aqi"
)

// Location identifies a city; country and state are "-" when unknown.
type Location struct {
	Country string `json:"country"`
	State   string `json:"state"`
	City    string `json:"city"`
}

// CategorySummary is the category of an index with its display attributes.
type CategorySummary struct {
	Name         aqi.Category `json:"name"`
	Color        string       `json:"color"`
	HealthImpact string       `json:"healthImpact"`
	Alert        bool         `json:"alert"`
	Marker       string       `json:"marker"`
}

// PollutantValue is one pollutant of a reading as shown on a widget.
type PollutantValue struct {
	Pollutant     aqi.Pollutant `json:"pollutant"`
	Label         string        `json:"label"`
	Unit          string        `json:"unit"`
	Color         string        `json:"color"`
	Concentration float64       `json:"concentration"`

	// SubIndex is absent when the concentration falls outside the table.
	SubIndex *float64 `json:"subIndex,omitempty"`
}

// AirQuality is the AQI of a city.
type AirQuality struct {
	Location   Location         `json:"location"`
	AQI        float64          `json:"aqi"`
	Display    string           `json:"display"`
	Category   CategorySummary  `json:"category"`
	Dominant   aqi.Pollutant    `json:"dominant,omitempty"`
	Pollutants []PollutantValue `json:"pollutants"`
	Provider   string           `json:"provider"`
	FetchedAt  Timestamp        `json:"fetchedAt"`
	Stale      bool             `json:"stale"`
}

// Notice is the toast shown with a dashboard view.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Dashboard is the body of GET /v1/dashboard.
type Dashboard struct {
	Requested  Location   `json:"requested"`
	FellBack   bool       `json:"fellBack"`
	Notice     Notice     `json:"notice"`
	AirQuality AirQuality `json:"airQuality"`
}

// CalculateRequest is a reading posted to POST /v1/aqi:calculate. Keys are
// pollutant names ("pm25", "pm2.5", "PM10", ...); null means absent.
type CalculateRequest map[string]*float64

// SubIndex is the contribution of one pollutant to a calculation.
type SubIndex struct {
	Pollutant     aqi.Pollutant  `json:"pollutant"`
	Concentration float64        `json:"concentration"`
	Value         float64        `json:"value"`
	Breakpoint    aqi.Breakpoint `json:"breakpoint"`
}

// CalculateResponse is the result of POST /v1/aqi:calculate.
type CalculateResponse struct {
	AQI        float64         `json:"aqi"`
	Display    string          `json:"display"`
	Category   CategorySummary `json:"category"`
	Dominant   aqi.Pollutant   `json:"dominant,omitempty"`
	SubIndices []SubIndex      `json:"subIndices"`
}

// PollutantMetadata describes a pollutant and its breakpoint rows.
type PollutantMetadata struct {
	Pollutant   aqi.Pollutant    `json:"pollutant"`
	Label       string           `json:"label"`
	Unit        string           `json:"unit"`
	Color       string           `json:"color"`
	Breakpoints []aqi.Breakpoint `json:"breakpoints"`
}

// CategoryMetadata describes a category band.
type CategoryMetadata struct {
	CategorySummary
	Low           float64 `json:"low"`
	High          float64 `json:"high"`
	HighInclusive bool    `json:"highInclusive"`
}

// TrackCityRequest is the body of POST and DELETE /v1/admin/cities.
type TrackCityRequest struct {
	Country string `json:"country"`
	State   string `json:"state"`
	City    string `json:"city"`
}

// TrackedCity is a city refreshed by the worker.
type TrackedCity struct {
	Location Location  `json:"location"`
	AddedAt  Timestamp `json:"addedAt"`
}

// TrackedCities lists tracked cities.
type TrackedCities struct {
	Items []TrackedCity `json:"items"`
}

// InvalidateCacheRequest selects one city to drop; an empty body drops all.
type InvalidateCacheRequest struct {
	Country string `json:"country,omitempty"`
	State   string `json:"state,omitempty"`
	City    string `json:"city,omitempty"`
}

// InvalidateCacheResponse reports how many cached snapshots were dropped.
type InvalidateCacheResponse struct {
	Invalidated int `json:"invalidated"`
}

// NewLocation converts a domain location.
func NewLocation(l airquality.Location) Location {
	return Location{Country: l.Country, State: l.State, City: l.City}
}

// NewCategorySummary converts a category.
func NewCategorySummary(c aqi.Category) CategorySummary {
	info := c.Info()
	return CategorySummary{
		Name:         info.Category,
		Color:        info.Color,
		HealthImpact: info.HealthImpact,
		Alert:        info.Alert,
		Marker:       info.Marker,
	}
}

// NewAirQuality converts a snapshot. Pollutants are listed in canonical
// order and include those without a matching breakpoint row.
func NewAirQuality(s *airquality.Snapshot) AirQuality {
	subIndex := make(map[aqi.Pollutant]float64, len(s.Result.SubIndices))
	for _, c := range s.Result.SubIndices {
		subIndex[c.Pollutant] = c.Value
	}

	pollutants := make([]PollutantValue, 0, s.Reading.Len())
	for _, p := range aqi.Pollutants() {
		c, ok := s.Reading.Get(p)
		if !ok {
			continue
		}
		info := p.Info()
		pv := PollutantValue{
			Pollutant:     p,
			Label:         info.Label,
			Unit:          info.Unit,
			Color:         info.Color,
			Concentration: c,
		}
		if v, ok := subIndex[p]; ok {
			pv.SubIndex = &v
		}
		pollutants = append(pollutants, pv)
	}

	return AirQuality{
		Location:   NewLocation(s.Location),
		AQI:        s.Result.AQI,
		Display:    s.Result.Display(),
		Category:   NewCategorySummary(s.Result.Category),
		Dominant:   s.Result.Dominant,
		Pollutants: pollutants,
		Provider:   s.Provider,
		FetchedAt:  Timestamp(s.FetchedAt),
		Stale:      s.Stale,
	}
}

// NewCalculateResponse converts a calculation result.
func NewCalculateResponse(res aqi.Result) CalculateResponse {
	out := CalculateResponse{
		AQI:        res.AQI,
		Display:    res.Display(),
		Category:   NewCategorySummary(res.Category),
		Dominant:   res.Dominant,
		SubIndices: make([]SubIndex, 0, len(res.SubIndices)),
	}
	for _, c := range res.SubIndices {
		out.SubIndices = append(out.SubIndices, SubIndex{
			Pollutant:     c.Pollutant,
			Concentration: c.Concentration,
			Value:         c.Value,
			Breakpoint:    c.Breakpoint,
		})
	}
	return out
}

// NewDashboard converts a dashboard view.
func NewDashboard(v *airquality.DashboardView) Dashboard {
	return Dashboard{
		Requested:  NewLocation(v.Requested),
		FellBack:   v.FellBack,
		Notice:     Notice{Level: string(v.Notice.Level), Message: v.Notice.Message},
		AirQuality: NewAirQuality(v.Snapshot),
	}
}
