package pipeline

import (
	"sort"
	"time"

	"github.com/klongtoey/airhealth/internal/domain"
)

// supplementPlan maps the locations that need secondary-provider data onto
// distinct grid cells, so one point fetch serves every nearby location.
// The number of secondary calls in a cycle is bounded by the number of
// distinct cells, never by the number of needy locations.
type supplementPlan struct {
	grid    domain.Grid
	cells   []domain.GridCell             // distinct cells to fetch, ascending index
	byCell  map[int][]string              // cell index → location ids assigned to it
	gaps    map[string][]domain.Pollutant // location id → pollutants to fill
	centers map[int]domain.GridCell
}

// planSupplement detects per-location gaps and assigns each needy location
// to its nearest grid cell. A location needs supplementation for a
// pollutant when its primary reading this cycle is missing the pollutant,
// or when it has no primary reading within the aggregation window at all.
func planSupplement(locs []domain.Location, gridSize int, primary map[string]domain.RawReading, window time.Duration, now time.Time) supplementPlan {
	plan := supplementPlan{
		grid:    domain.NewGrid(gridSize, locs),
		byCell:  make(map[int][]string),
		gaps:    make(map[string][]domain.Pollutant),
		centers: make(map[int]domain.GridCell),
	}

	cutoff := now.Add(-window)
	for _, loc := range locs {
		var gaps []domain.Pollutant
		reading, ok := primary[loc.ID]
		switch {
		case !ok || reading.ObservedAt.Before(cutoff):
			// No usable primary reading: everything is a gap.
			gaps = append(gaps, domain.Pollutants...)
		default:
			gaps = reading.Values.Missing(domain.Pollutants)
		}
		if len(gaps) == 0 {
			continue
		}

		cell, ok := plan.grid.Assign(loc.Lat, loc.Lon)
		if !ok {
			continue
		}
		plan.gaps[loc.ID] = gaps
		plan.byCell[cell.Index] = append(plan.byCell[cell.Index], loc.ID)
		plan.centers[cell.Index] = cell
	}

	indices := make([]int, 0, len(plan.byCell))
	for idx := range plan.byCell {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		plan.cells = append(plan.cells, plan.centers[idx])
	}
	return plan
}

// broadcast builds the supplement readings for every location assigned to a
// fetched cell. Each location receives only the pollutants it was missing,
// so secondary data never competes with primary data in the rolling window.
func (p supplementPlan) broadcast(cell domain.GridCell, values domain.PollutantMap, provider string, observedAt time.Time) []domain.RawReading {
	var out []domain.RawReading
	for _, locID := range p.byCell[cell.Index] {
		filled := make(domain.PollutantMap)
		for _, gap := range p.gaps[locID] {
			if v, ok := values.Get(gap); ok {
				filled[gap] = v
			}
		}
		if len(filled) == 0 {
			continue
		}
		out = append(out, domain.RawReading{
			LocationID: locID,
			Provider:   provider,
			ObservedAt: observedAt,
			Values:     filled,
		})
	}
	return out
}
