package domain

import "time"

// Pollutant identifies one of the six tracked pollutants.
type Pollutant string

const (
	PM25 Pollutant = "pm25"
	PM10 Pollutant = "pm10"
	O3   Pollutant = "o3"
	NO2  Pollutant = "no2"
	SO2  Pollutant = "so2"
	CO   Pollutant = "co"
)

// Pollutants lists every tracked pollutant in stable order.
var Pollutants = []Pollutant{PM25, PM10, O3, NO2, SO2, CO}

// IndexPollutants are the pollutants that feed the health index.
var IndexPollutants = []Pollutant{PM25, PM10, O3, NO2}

// Known reports whether code names a tracked pollutant.
func Known(code Pollutant) bool {
	switch code {
	case PM25, PM10, O3, NO2, SO2, CO:
		return true
	}
	return false
}

// PollutantMap holds canonical-unit concentrations keyed by pollutant.
// A missing key means the value is unavailable; a stored zero is a real
// measured concentration. The two must never be conflated.
type PollutantMap map[Pollutant]float64

// Get returns the value for p and whether it is available.
func (m PollutantMap) Get(p Pollutant) (float64, bool) {
	v, ok := m[p]
	return v, ok
}

// Merge returns a copy of m with every pollutant absent from m filled from
// supplement. Values already present in m always win.
func (m PollutantMap) Merge(supplement PollutantMap) PollutantMap {
	out := make(PollutantMap, len(m)+len(supplement))
	for p, v := range supplement {
		out[p] = v
	}
	for p, v := range m {
		out[p] = v
	}
	return out
}

// Missing returns the tracked pollutants with no value in m, in stable order.
func (m PollutantMap) Missing(tracked []Pollutant) []Pollutant {
	var gaps []Pollutant
	for _, p := range tracked {
		if _, ok := m[p]; !ok {
			gaps = append(gaps, p)
		}
	}
	return gaps
}

// RawReading is one normalized observation for one location at one instant
// from one provider. Immutable once persisted; newer rows supersede it.
type RawReading struct {
	LocationID string       `json:"location_id"`
	Provider   string       `json:"provider"`
	ObservedAt time.Time    `json:"observed_at"`
	Values     PollutantMap `json:"values"`
}
