package aqi_test

import (
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityaqi/cityaqi/internal/aqi"
)

func ptr(v float64) *float64 { return &v }

func TestSubIndex_RowEdgesAreExact(t *testing.T) {
	for _, p := range aqi.Pollutants() {
		rows := aqi.Breakpoints(p)
		require.Len(t, rows, 3, "pollutant %s", p)

		for i, bp := range rows {
			assert.Equal(t, bp.IndexLow, aqi.SubIndex(bp.ConcLow, bp), "%s row %d low", p, i)
			assert.Equal(t, bp.IndexHigh, aqi.SubIndex(bp.ConcHigh, bp), "%s row %d high", p, i)
		}
	}
}

func TestSubIndex_MonotonicWithinRow(t *testing.T) {
	const steps = 100

	for _, p := range aqi.Pollutants() {
		for i, bp := range aqi.Breakpoints(p) {
			step := (bp.ConcHigh - bp.ConcLow) / steps
			prev := math.Inf(-1)
			for s := 0; s < steps; s++ {
				v := aqi.SubIndex(bp.ConcLow+float64(s)*step, bp)
				assert.GreaterOrEqual(t, v, prev, "%s row %d step %d", p, i, s)
				prev = v
			}
			assert.GreaterOrEqual(t, aqi.SubIndex(bp.ConcHigh, bp), prev, "%s row %d high", p, i)
		}
	}
}

func TestSubIndex_Examples(t *testing.T) {
	bp, ok := aqi.Lookup(aqi.PM25, 6.0)
	require.True(t, ok)
	assert.Equal(t, aqi.Breakpoint{ConcLow: 0, ConcHigh: 12, IndexLow: 0, IndexHigh: 50}, bp)
	assert.InDelta(t, 25.0, aqi.SubIndex(6.0, bp), 1e-9)

	bp, ok = aqi.Lookup(aqi.PM10, 100)
	require.True(t, ok)
	assert.Equal(t, aqi.Breakpoint{ConcLow: 55, ConcHigh: 154, IndexLow: 51, IndexHigh: 100}, bp)
	assert.InDelta(t, 73.2727, aqi.SubIndex(100, bp), 1e-4)
}

func TestPollutantIndex(t *testing.T) {
	v, ok := aqi.PollutantIndex(aqi.CO, 9.5)
	require.True(t, ok)
	assert.Equal(t, 101.0, v)

	_, ok = aqi.PollutantIndex(aqi.CO, 12.5)
	assert.False(t, ok)
}

func TestOverall_EmptyReading(t *testing.T) {
	res := aqi.Calculate(aqi.Reading{})

	assert.Equal(t, 0.0, res.AQI)
	assert.Equal(t, aqi.CategoryGood, res.Category)
	assert.Empty(t, res.Dominant)
	assert.Empty(t, res.SubIndices)
	assert.Equal(t, 0.0, aqi.Overall(aqi.Reading{}))
}

func TestOverall_SinglePollutant(t *testing.T) {
	r := aqi.Reading{PM10: ptr(100)}

	res := aqi.Calculate(r)
	expected, ok := aqi.PollutantIndex(aqi.PM10, 100)
	require.True(t, ok)

	assert.Equal(t, expected, res.AQI)
	assert.InDelta(t, 73.27, res.AQI, 0.01)
	assert.Equal(t, aqi.CategoryModerate, res.Category)
	assert.Equal(t, aqi.PM10, res.Dominant)
	require.Len(t, res.SubIndices, 1)
	assert.Equal(t, aqi.PM10, res.SubIndices[0].Pollutant)
}

func TestOverall_TakesMaximum(t *testing.T) {
	r := aqi.Reading{
		PM25: ptr(6),   // 25
		NO2:  ptr(200), // row 3
		CO:   ptr(1),
		O3:   ptr(60),
	}

	no2, ok := aqi.PollutantIndex(aqi.NO2, 200)
	require.True(t, ok)

	res := aqi.Calculate(r)
	assert.Equal(t, no2, res.AQI)
	assert.Equal(t, aqi.NO2, res.Dominant)
	assert.Equal(t, aqi.CategoryPoor, res.Category)
	assert.Len(t, res.SubIndices, 4)
}

func TestOverall_SkipsUnmatched(t *testing.T) {
	tests := []struct {
		name    string
		reading aqi.Reading
		want    float64
	}{
		{"above table", aqi.Reading{PM25: ptr(300)}, 0},
		{"gap between rows", aqi.Reading{PM25: ptr(12.05)}, 0},
		{"negative", aqi.Reading{SO2: ptr(-4)}, 0},
		{"nan", aqi.Reading{O3: ptr(math.NaN())}, 0},
		{"infinite", aqi.Reading{CO: ptr(math.Inf(1))}, 0},
		{"unmatched next to matched", aqi.Reading{PM25: ptr(300), SO2: ptr(35)}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, aqi.Overall(tt.reading))
		})
	}
}

func TestOverall_ZeroConcentrationStillNamesDominant(t *testing.T) {
	res := aqi.Calculate(aqi.Reading{PM25: ptr(0), PM10: ptr(0)})

	assert.Equal(t, 0.0, res.AQI)
	assert.Equal(t, aqi.PM25, res.Dominant)
	assert.Len(t, res.SubIndices, 2)
}

func TestOverall_ConcurrentCallers(t *testing.T) {
	r := aqi.Reading{PM25: ptr(20), PM10: ptr(100), NO2: ptr(40)}
	want := aqi.Overall(r)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, aqi.Overall(r))
		}()
	}
	wg.Wait()
}

func TestReading_Accessors(t *testing.T) {
	var r aqi.Reading
	assert.Equal(t, 0, r.Len())

	r.Set(aqi.PM25, 10)
	r.Set(aqi.NO2, 20)
	r.Set(aqi.Pollutant("xyz"), 1)

	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Has(aqi.PM25))
	assert.False(t, r.Has(aqi.CO))

	v, ok := r.Get(aqi.NO2)
	require.True(t, ok)
	assert.Equal(t, 20.0, v)

	r.Clear(aqi.NO2)
	assert.False(t, r.Has(aqi.NO2))
	assert.Equal(t, map[aqi.Pollutant]float64{aqi.PM25: 10}, r.Values())
}

func TestNewReading(t *testing.T) {
	r := aqi.NewReading(map[aqi.Pollutant]float64{
		aqi.O3:  40,
		aqi.CO:  2,
		"bogus": 5,
	})

	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Has(aqi.O3))
	assert.True(t, r.Has(aqi.CO))
}

func TestReading_JSON(t *testing.T) {
	var r aqi.Reading
	require.NoError(t, json.Unmarshal([]byte(`{"pm25": 6, "co": null, "o3": 40}`), &r))

	assert.True(t, r.Has(aqi.PM25))
	assert.False(t, r.Has(aqi.CO))
	assert.True(t, r.Has(aqi.O3))
	assert.Equal(t, 2, r.Len())
}

func TestResult_Display(t *testing.T) {
	res := aqi.Calculate(aqi.Reading{PM10: ptr(100)})
	assert.Equal(t, "73.27", res.Display())

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "73.27", decoded["display"])
	assert.Equal(t, "Moderate", decoded["category"])
	assert.Equal(t, "pm10", decoded["dominant"])
}
