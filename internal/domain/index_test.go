package domain

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyByName(t *testing.T) {
	p, ok := PolicyByName("reference")
	require.True(t, ok)
	assert.Equal(t, "reference", p.Name)
	assert.Equal(t, 0.0022, p.Beta[PM25])

	p, ok = PolicyByName("strict")
	require.True(t, ok)
	assert.Equal(t, "strict", p.Name)
	assert.Equal(t, 0.0012, p.Beta[PM25])
	assert.True(t, p.InclusiveBounds)

	p, ok = PolicyByName("")
	require.True(t, ok)
	assert.Equal(t, "reference", p.Name)

	_, ok = PolicyByName("lenient")
	assert.False(t, ok)
}

func TestCategorize(t *testing.T) {
	t.Run("reference bounds are exclusive", func(t *testing.T) {
		p := ReferencePolicy()
		assert.Equal(t, RiskLow, p.Categorize(1.0))
		assert.Equal(t, RiskLow, p.Categorize(3.9))
		assert.Equal(t, RiskModerate, p.Categorize(4.0))
		assert.Equal(t, RiskModerate, p.Categorize(6.9))
		assert.Equal(t, RiskHigh, p.Categorize(7.0))
		assert.Equal(t, RiskVeryHigh, p.Categorize(10.0))
	})

	t.Run("strict bounds are inclusive", func(t *testing.T) {
		p := StrictPolicy()
		assert.Equal(t, RiskLow, p.Categorize(3.0))
		assert.Equal(t, RiskModerate, p.Categorize(3.1))
		assert.Equal(t, RiskModerate, p.Categorize(6.0))
		assert.Equal(t, RiskHigh, p.Categorize(10.0))
		assert.Equal(t, RiskVeryHigh, p.Categorize(10.1))
	})
}

func TestPctExcessRisk(t *testing.T) {
	assert.Equal(t, 0.0, PctExcessRisk(0.0022, 0))
	assert.InDelta(t, 8.1231, PctExcessRisk(0.0022, 35.5), 1e-4)
	assert.InDelta(t, 9.4174, PctExcessRisk(0.0010, 90.0), 1e-4)
}

func TestComputeHealthIndex(t *testing.T) {
	hour := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)

	avgsFor := func(values PollutantMap, q Quality) RollingAverages {
		return RollingAverages{
			LocationID: "bkk-pathum-wan",
			Window:     3 * time.Hour,
			Values:     values,
			Quality:    q,
		}
	}

	t.Run("reference policy", func(t *testing.T) {
		avgs := avgsFor(PollutantMap{PM25: 35.5, O3: 90.0}, QualityExcellent)
		rec := ComputeHealthIndex(ReferencePolicy(), avgs, hour)

		assert.Equal(t, "bkk-pathum-wan", rec.LocationID)
		assert.Equal(t, hour, rec.Hour)
		assert.Equal(t, 1.7, rec.Value)
		assert.Equal(t, RiskLow, rec.Category)
		assert.Equal(t, QualityExcellent, rec.Quality)
		assert.Equal(t, "reference", rec.Policy)

		require.NotNil(t, rec.Inputs.PM25)
		assert.Equal(t, 35.5, *rec.Inputs.PM25)
		require.NotNil(t, rec.Inputs.O3)
		assert.Equal(t, 90.0, *rec.Inputs.O3)
		assert.Nil(t, rec.Inputs.PM10)
		assert.Nil(t, rec.Inputs.NO2)
	})

	t.Run("strict policy lowers the same inputs", func(t *testing.T) {
		avgs := avgsFor(PollutantMap{PM25: 35.5, O3: 90.0}, QualityExcellent)
		rec := ComputeHealthIndex(StrictPolicy(), avgs, hour)

		assert.Equal(t, 1.3, rec.Value)
		assert.Equal(t, RiskLow, rec.Category)
		assert.Equal(t, "strict", rec.Policy)
	})

	t.Run("moderate category", func(t *testing.T) {
		avgs := avgsFor(PollutantMap{NO2: 78}, QualityGood)
		rec := ComputeHealthIndex(ReferencePolicy(), avgs, hour)

		assert.Equal(t, 4.8, rec.Value)
		assert.Equal(t, RiskModerate, rec.Category)
	})

	t.Run("floor applies to clean air", func(t *testing.T) {
		avgs := avgsFor(PollutantMap{PM25: 1, O3: 2}, QualityExcellent)
		rec := ComputeHealthIndex(ReferencePolicy(), avgs, hour)
		assert.Equal(t, 1.0, rec.Value)
		assert.Equal(t, RiskLow, rec.Category)
	})

	t.Run("no data still yields a record", func(t *testing.T) {
		avgs := avgsFor(PollutantMap{}, QualityNoData)
		rec := ComputeHealthIndex(ReferencePolicy(), avgs, hour)

		assert.Equal(t, 1.0, rec.Value)
		assert.Equal(t, QualityNoData, rec.Quality)
		assert.Nil(t, rec.Inputs.PM25)
		assert.Nil(t, rec.Inputs.PM10)
		assert.Nil(t, rec.Inputs.O3)
		assert.Nil(t, rec.Inputs.NO2)
	})

	t.Run("rounds to one decimal", func(t *testing.T) {
		avgs := avgsFor(PollutantMap{PM25: 35.5, O3: 90.0}, QualityExcellent)
		rec := ComputeHealthIndex(ReferencePolicy(), avgs, hour)
		assert.Equal(t, rec.Value, math.Round(rec.Value*10)/10)
	})

	t.Run("computed_at uses the injected clock", func(t *testing.T) {
		frozen := time.Date(2026, 3, 14, 7, 5, 0, 0, time.UTC)
		SetClock(clockwork.NewFakeClockAt(frozen))
		defer SetClock(nil)

		rec := ComputeHealthIndex(ReferencePolicy(), avgsFor(PollutantMap{}, QualityNoData), hour)
		assert.Equal(t, frozen, rec.ComputedAt)
	})
}
