package domain

import (
	"math"
	"time"
)

// RiskCategory is the user-facing classification of a health index value.
type RiskCategory string

const (
	RiskLow      RiskCategory = "LOW"
	RiskModerate RiskCategory = "MODERATE"
	RiskHigh     RiskCategory = "HIGH"
	RiskVeryHigh RiskCategory = "VERY_HIGH"
)

// indexFloor is the minimum display value; anything below it is clamped.
const indexFloor = 1.0

// IndexPolicy names one coefficient/threshold table of the excess-risk
// model. The published revisions of the model disagree on both, so the
// choice is explicit configuration carried on every record.
type IndexPolicy struct {
	Name string

	// Beta holds the per-pollutant excess-risk coefficients, in canonical
	// units. Pollutants absent from the map contribute no risk.
	Beta map[Pollutant]float64

	// Normalizer is the empirically derived maximum excess-risk sum the
	// 1–10+ display range is scaled against.
	Normalizer float64

	// Category upper bounds. With InclusiveBounds a value equal to the
	// bound stays in the lower category.
	LowMax, ModerateMax, HighMax float64
	InclusiveBounds              bool
}

// ReferencePolicy is the default coefficient/threshold table.
func ReferencePolicy() IndexPolicy {
	return IndexPolicy{
		Name: "reference",
		Beta: map[Pollutant]float64{
			PM25: 0.0022,
			PM10: 0.0012,
			NO2:  0.0052,
			O3:   0.0010,
		},
		Normalizer:  105.19,
		LowMax:      4,
		ModerateMax: 7,
		HighMax:     10,
	}
}

// StrictPolicy is the alternate table with lower particulate coefficients
// and inclusive category bounds.
func StrictPolicy() IndexPolicy {
	return IndexPolicy{
		Name: "strict",
		Beta: map[Pollutant]float64{
			PM25: 0.0012,
			PM10: 0.0009,
			NO2:  0.0052,
			O3:   0.0010,
		},
		Normalizer:      105.19,
		LowMax:          3,
		ModerateMax:     6,
		HighMax:         10,
		InclusiveBounds: true,
	}
}

// PolicyByName resolves a configured policy name. Returns false for
// unknown names.
func PolicyByName(name string) (IndexPolicy, bool) {
	switch name {
	case "reference", "":
		return ReferencePolicy(), true
	case "strict":
		return StrictPolicy(), true
	}
	return IndexPolicy{}, false
}

// Categorize maps an index value onto the policy's risk bands.
func (p IndexPolicy) Categorize(value float64) RiskCategory {
	below := func(v, bound float64) bool {
		if p.InclusiveBounds {
			return v <= bound
		}
		return v < bound
	}
	switch {
	case below(value, p.LowMax):
		return RiskLow
	case below(value, p.ModerateMax):
		return RiskModerate
	case below(value, p.HighMax):
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// IndexInputs records the exact rolling averages the index was computed
// from, for auditability. Nil means the pollutant was unavailable and
// contributed zero risk.
type IndexInputs struct {
	PM25 *float64 `json:"pm25,omitempty"`
	PM10 *float64 `json:"pm10,omitempty"`
	O3   *float64 `json:"o3,omitempty"`
	NO2  *float64 `json:"no2,omitempty"`
}

// HealthIndexRecord is one computed index for one location and one hourly
// cycle. The (LocationID, Hour) pair is unique; recomputation upserts.
type HealthIndexRecord struct {
	LocationID string       `json:"location_id"`
	Hour       time.Time    `json:"hour"`
	Value      float64      `json:"value"`
	Category   RiskCategory `json:"category"`
	Quality    Quality      `json:"quality"`
	Policy     string       `json:"policy"`
	Inputs     IndexInputs  `json:"inputs"`
	ComputedAt time.Time    `json:"computed_at"`
}

// PctExcessRisk is the per-pollutant contribution of the additive model:
// 100 × (e^(β·v) − 1). An unavailable value contributes zero.
func PctExcessRisk(beta, value float64) float64 {
	return 100 * (math.Exp(beta*value) - 1)
}

// ComputeHealthIndex turns a location's rolling averages into an index
// record under the given policy. Unavailable pollutants are treated as zero
// concentration, so partial data degrades the index instead of aborting it.
// The result is rounded to one decimal and floored at 1.0.
func ComputeHealthIndex(policy IndexPolicy, avgs RollingAverages, hour time.Time) HealthIndexRecord {
	var sum float64
	for p, beta := range policy.Beta {
		if v, ok := avgs.Values.Get(p); ok {
			sum += PctExcessRisk(beta, v)
		}
	}

	value := (10.0 / policy.Normalizer) * sum
	value = math.Round(value*10) / 10
	if value < indexFloor {
		value = indexFloor
	}

	return HealthIndexRecord{
		LocationID: avgs.LocationID,
		Hour:       hour,
		Value:      value,
		Category:   policy.Categorize(value),
		Quality:    avgs.Quality,
		Policy:     policy.Name,
		Inputs: IndexInputs{
			PM25: avgs.Values.ptr(PM25),
			PM10: avgs.Values.ptr(PM10),
			O3:   avgs.Values.ptr(O3),
			NO2:  avgs.Values.ptr(NO2),
		},
		ComputedAt: clock.Now().UTC(),
	}
}

// ptr returns a pointer to the stored value, or nil when unavailable.
func (m PollutantMap) ptr(p Pollutant) *float64 {
	if v, ok := m[p]; ok {
		return &v
	}
	return nil
}
