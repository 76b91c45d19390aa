package aqi

// PollutantInfo holds display metadata for a pollutant widget.
type PollutantInfo struct {
	Pollutant Pollutant `json:"pollutant"`
	Label     string    `json:"label"`
	Unit      string    `json:"unit"`
	Color     string    `json:"color"`
}

var pollutantInfo = map[Pollutant]PollutantInfo{
	PM25: {Pollutant: PM25, Label: "PM 2.5", Unit: "µg/m³", Color: "#21ed15"},
	PM10: {Pollutant: PM10, Label: "PM10", Unit: "µg/m³", Color: "#FFC0CB"},
	SO2:  {Pollutant: SO2, Label: "SO2", Unit: "µg/m³", Color: "#de4df3"},
	CO:   {Pollutant: CO, Label: "CO", Unit: "µg/m³", Color: "#f2f11f"},
	O3:   {Pollutant: O3, Label: "O3", Unit: "µg/m³", Color: "#da0e26"},
	NO2:  {Pollutant: NO2, Label: "NO2", Unit: "µg/m³", Color: "#fe714d"},
}

// Info returns the display metadata for p.
func (p Pollutant) Info() PollutantInfo {
	if info, ok := pollutantInfo[p]; ok {
		return info
	}
	return PollutantInfo{Pollutant: p, Label: string(p)}
}

// Label returns the human readable name, e.g. "PM 2.5".
func (p Pollutant) Label() string {
	return p.Info().Label
}
