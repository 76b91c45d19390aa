package aqi

import "math"

// Category is the severity label derived from an overall AQI value.
type Category string

const (
	CategoryGood      Category = "Good"
	CategoryModerate  Category = "Moderate"
	CategoryPoor      Category = "Poor"
	CategoryUnhealthy Category = "Unhealthy"
	CategorySevere    Category = "Severe"
	CategoryHazardous Category = "Hazardous"
)

// Markers shown next to the index on the dashboard widget.
const (
	MarkerAlert = "❗️"
	MarkerCalm  = "😊"
)

// Band is the AQI interval of a category. Low is inclusive; High is
// inclusive only when HighInclusive is set.
type Band struct {
	Low           float64 `json:"low"`
	High          float64 `json:"high"`
	HighInclusive bool    `json:"highInclusive"`
}

// Contains reports whether v falls inside the band.
func (b Band) Contains(v float64) bool {
	if v < b.Low {
		return false
	}
	if b.HighInclusive {
		return v <= b.High
	}
	return v < b.High
}

type categoryDef struct {
	category Category
	band     Band
	color    string
	impact   string
}

// categoryDefs is ordered from most to least severe; Classify takes the first
// band containing the value and falls back to Good.
var categoryDefs = []categoryDef{
	{
		category: CategoryHazardous,
		band:     Band{Low: 401, High: 500, HighInclusive: true},
		color:    "#da0e26",
		impact:   "Avoid outdoor activities and stay indoors.",
	},
	{
		category: CategorySevere,
		band:     Band{Low: 301, High: 401},
		color:    "#de4df3",
		impact:   "Limit outdoor activities, especially if you have respiratory issues.",
	},
	{
		category: CategoryUnhealthy,
		band:     Band{Low: 201, High: 301},
		color:    "#FFC0CB",
		impact:   "Sensitive individuals may experience health effects; everyone should limit prolonged outdoor exertion.",
	},
	{
		category: CategoryPoor,
		band:     Band{Low: 101, High: 201},
		color:    "#fe714d",
		impact:   "Some individuals may experience health effects; sensitive groups may experience more serious effects.",
	},
	{
		category: CategoryModerate,
		band:     Band{Low: 51, High: 101},
		color:    "#f2f11f",
		impact:   "Air quality is acceptable; however, there may be some health concern for a small number of people who are unusually sensitive to air pollution.",
	},
	{
		category: CategoryGood,
		band:     Band{Low: 0, High: 51},
		color:    "#21ed15",
		impact:   "Air quality is satisfactory, and air pollution poses little or no risk.",
	},
}

// Classify maps an overall AQI value to its category. Values outside every
// band (negative, above 500, NaN) are Good.
func Classify(v float64) Category {
	if math.IsNaN(v) {
		return CategoryGood
	}
	for _, def := range categoryDefs {
		if def.band.Contains(v) {
			return def.category
		}
	}
	return CategoryGood
}

// Categories returns every category from least to most severe.
func Categories() []Category {
	out := make([]Category, 0, len(categoryDefs))
	for i := len(categoryDefs) - 1; i >= 0; i-- {
		out = append(out, categoryDefs[i].category)
	}
	return out
}

func (c Category) def() categoryDef {
	for _, def := range categoryDefs {
		if def.category == c {
			return def
		}
	}
	return categoryDefs[len(categoryDefs)-1]
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, def := range categoryDefs {
		if def.category == c {
			return true
		}
	}
	return false
}

// Band returns the AQI interval of c.
func (c Category) Band() Band { return c.def().band }

// Color returns the display color of c.
func (c Category) Color() string { return c.def().color }

// HealthImpact returns the health message for c.
func (c Category) HealthImpact() string { return c.def().impact }

// IsAlert is true for the categories rendered with the alert marker.
func (c Category) IsAlert() bool {
	return c == CategoryHazardous || c == CategorySevere
}

// Marker returns the widget marker for c.
func (c Category) Marker() string {
	if c.IsAlert() {
		return MarkerAlert
	}
	return MarkerCalm
}

// CategoryInfo bundles every display attribute of a category.
type CategoryInfo struct {
	Category     Category `json:"category"`
	Band         Band     `json:"band"`
	Color        string   `json:"color"`
	HealthImpact string   `json:"healthImpact"`
	Alert        bool     `json:"alert"`
	Marker       string   `json:"marker"`
}

// Info returns the display attributes of c.
func (c Category) Info() CategoryInfo {
	def := c.def()
	return CategoryInfo{
		Category:     def.category,
		Band:         def.band,
		Color:        def.color,
		HealthImpact: def.impact,
		Alert:        def.category.IsAlert(),
		Marker:       def.category.Marker(),
	}
}
