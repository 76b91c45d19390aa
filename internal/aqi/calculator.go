package aqi

import (
	"encoding/json"
	"strconv"
)

// Reading is a set of optional pollutant concentrations. A nil field means
// the value is unknown and the pollutant does not take part in the
// aggregate.
type Reading struct {
	PM25 *float64 `json:"pm25,omitempty"`
	PM10 *float64 `json:"pm10,omitempty"`
	SO2  *float64 `json:"so2,omitempty"`
	CO   *float64 `json:"co,omitempty"`
	O3   *float64 `json:"o3,omitempty"`
	NO2  *float64 `json:"no2,omitempty"`
}

func (r *Reading) field(p Pollutant) **float64 {
	switch p {
	case PM25:
		return &r.PM25
	case PM10:
		return &r.PM10
	case SO2:
		return &r.SO2
	case CO:
		return &r.CO
	case O3:
		return &r.O3
	case NO2:
		return &r.NO2
	default:
		return nil
	}
}

// Get returns the concentration for p and whether it is present.
func (r Reading) Get(p Pollutant) (float64, bool) {
	f := r.field(p)
	if f == nil || *f == nil {
		return 0, false
	}
	return **f, true
}

// Has reports whether a concentration is present for p.
func (r Reading) Has(p Pollutant) bool {
	_, ok := r.Get(p)
	return ok
}

// Set stores a concentration for p. Unknown pollutants are ignored.
func (r *Reading) Set(p Pollutant, c float64) {
	if f := r.field(p); f != nil {
		v := c
		*f = &v
	}
}

// Clear marks p as unknown.
func (r *Reading) Clear(p Pollutant) {
	if f := r.field(p); f != nil {
		*f = nil
	}
}

// Len returns the number of pollutants with a value.
func (r Reading) Len() int {
	n := 0
	for _, p := range pollutants {
		if r.Has(p) {
			n++
		}
	}
	return n
}

// Values returns the present concentrations keyed by pollutant.
func (r Reading) Values() map[Pollutant]float64 {
	out := make(map[Pollutant]float64, len(pollutants))
	for _, p := range pollutants {
		if c, ok := r.Get(p); ok {
			out[p] = c
		}
	}
	return out
}

// NewReading builds a reading from a map; unknown keys are dropped.
func NewReading(values map[Pollutant]float64) Reading {
	var r Reading
	for p, c := range values {
		r.Set(p, c)
	}
	return r
}

// SubIndex linearly interpolates c inside bp. The caller guarantees that bp
// contains c. The upper edge is pinned so rounding never yields a value
// different from IndexHigh at ConcHigh.
func SubIndex(c float64, bp Breakpoint) float64 {
	if c == bp.ConcHigh {
		return bp.IndexHigh
	}
	return (bp.IndexHigh-bp.IndexLow)/(bp.ConcHigh-bp.ConcLow)*(c-bp.ConcLow) + bp.IndexLow
}

// PollutantIndex computes the sub-index for a single concentration. ok is
// false when no breakpoint row matches.
func PollutantIndex(p Pollutant, c float64) (value float64, ok bool) {
	bp, ok := Lookup(p, c)
	if !ok {
		return 0, false
	}
	return SubIndex(c, bp), true
}

// Contribution is the sub-index one pollutant contributed to a result.
type Contribution struct {
	Pollutant     Pollutant  `json:"pollutant"`
	Concentration float64    `json:"concentration"`
	Breakpoint    Breakpoint `json:"breakpoint"`
	Value         float64    `json:"value"`
}

// SubIndices returns the contribution of every pollutant in r that has a
// value and a matching breakpoint, in canonical order.
func SubIndices(r Reading) []Contribution {
	var out []Contribution
	for _, p := range pollutants {
		c, ok := r.Get(p)
		if !ok {
			continue
		}
		bp, ok := Lookup(p, c)
		if !ok {
			continue
		}
		out = append(out, Contribution{
			Pollutant:     p,
			Concentration: c,
			Breakpoint:    bp,
			Value:         SubIndex(c, bp),
		})
	}
	return out
}

// Overall returns the highest sub-index in r, or 0 when nothing matched.
func Overall(r Reading) float64 {
	return Calculate(r).AQI
}

// Result is the outcome of a calculation.
type Result struct {
	AQI        float64        `json:"aqi"`
	Category   Category       `json:"category"`
	Dominant   Pollutant      `json:"dominant,omitempty"`
	SubIndices []Contribution `json:"subIndices"`
}

// Calculate computes the overall AQI of r together with its category, the
// dominant pollutant and each contributing sub-index.
func Calculate(r Reading) Result {
	res := Result{SubIndices: SubIndices(r)}
	if res.SubIndices == nil {
		res.SubIndices = []Contribution{}
	}

	highest := 0.0
	for _, c := range res.SubIndices {
		if res.Dominant == "" || c.Value > highest {
			highest = c.Value
			res.Dominant = c.Pollutant
		}
	}
	res.AQI = highest
	res.Category = Classify(highest)
	return res
}

// Display formats the index with two decimals, the precision shown on the
// dashboard widgets.
func (r Result) Display() string {
	return strconv.FormatFloat(r.AQI, 'f', 2, 64)
}

// MarshalJSON adds the formatted value next to the raw index.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		Display string `json:"display"`
	}{plain: plain(r), Display: r.Display()})
}
