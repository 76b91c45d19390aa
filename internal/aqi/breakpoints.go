// Package aqi derives an Air Quality Index from pollutant concentrations.
//
// A pollutant's concentration is mapped onto the index scale by linear
// interpolation inside the matching breakpoint row. The overall index of a
// reading is the highest sub-index among its pollutants. Everything in this
// package is pure and safe for concurrent use.
package aqi

import (
	"math"
	"strings"
)

// Pollutant identifies one of the tracked substances.
type Pollutant string

const (
	PM25 Pollutant = "pm25"
	PM10 Pollutant = "pm10"
	SO2  Pollutant = "so2"
	CO   Pollutant = "co"
	O3   Pollutant = "o3"
	NO2  Pollutant = "no2"
)

// pollutants is the canonical iteration order.
var pollutants = [...]Pollutant{PM25, PM10, SO2, CO, O3, NO2}

// Pollutants returns every recognised pollutant in canonical order.
func Pollutants() []Pollutant {
	out := make([]Pollutant, len(pollutants))
	copy(out, pollutants[:])
	return out
}

// ParsePollutant resolves an identifier such as "PM2.5", "pm25" or "NO2".
func ParsePollutant(s string) (Pollutant, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(".", "", "_", "", " ", "").Replace(key)
	p := Pollutant(key)
	return p, p.Valid()
}

// Valid reports whether p is one of the recognised pollutants.
func (p Pollutant) Valid() bool {
	_, ok := breakpointTable[p]
	return ok
}

// Breakpoint maps a concentration range onto an index range.
type Breakpoint struct {
	ConcLow   float64 `json:"concLow"`
	ConcHigh  float64 `json:"concHigh"`
	IndexLow  float64 `json:"indexLow"`
	IndexHigh float64 `json:"indexHigh"`
}

// Contains reports whether c lies inside the row, bounds included.
func (b Breakpoint) Contains(c float64) bool {
	return c >= b.ConcLow && c <= b.ConcHigh
}

// breakpointTable only covers the index range 0-150; anything above the third
// row is unmatched and left out of the aggregate.
var breakpointTable = map[Pollutant][]Breakpoint{
	PM25: {
		{ConcLow: 0, ConcHigh: 12, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 12.1, ConcHigh: 35.4, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 35.5, ConcHigh: 55.4, IndexLow: 101, IndexHigh: 150},
	},
	PM10: {
		{ConcLow: 0, ConcHigh: 54, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 55, ConcHigh: 154, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 155, ConcHigh: 254, IndexLow: 101, IndexHigh: 150},
	},
	NO2: {
		{ConcLow: 0, ConcHigh: 53, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 54, ConcHigh: 100, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 101, ConcHigh: 360, IndexLow: 101, IndexHigh: 150},
	},
	SO2: {
		{ConcLow: 0, ConcHigh: 35, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 36, ConcHigh: 75, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 76, ConcHigh: 185, IndexLow: 101, IndexHigh: 150},
	},
	CO: {
		{ConcLow: 0, ConcHigh: 4.4, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 4.5, ConcHigh: 9.4, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 9.5, ConcHigh: 12.4, IndexLow: 101, IndexHigh: 150},
	},
	O3: {
		{ConcLow: 0, ConcHigh: 54, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 55, ConcHigh: 70, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 71, ConcHigh: 85, IndexLow: 101, IndexHigh: 150},
	},
}

// Breakpoints returns a copy of the rows defined for p, or nil when p is not
// recognised.
func Breakpoints(p Pollutant) []Breakpoint {
	rows, ok := breakpointTable[p]
	if !ok {
		return nil
	}
	out := make([]Breakpoint, len(rows))
	copy(out, rows)
	return out
}

// Lookup returns the first row of p's table containing concentration c.
// The second return value is false when p is unknown, when c is negative or
// not finite, or when c falls outside (or between) every defined row.
func Lookup(p Pollutant, c float64) (Breakpoint, bool) {
	if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
		return Breakpoint{}, false
	}
	for _, bp := range breakpointTable[p] {
		if bp.Contains(c) {
			return bp, true
		}
	}
	return Breakpoint{}, false
}
