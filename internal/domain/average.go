package domain

import "time"

// Quality labels how complete the sample set behind a rolling average is.
type Quality string

const (
	QualityExcellent Quality = "EXCELLENT" // ≥90% of expected samples
	QualityGood      Quality = "GOOD"      // ≥70%
	QualityFair      Quality = "FAIR"      // ≥50%
	QualityLimited   Quality = "LIMITED"   // below 50%, or span too short to represent the window
	QualityNoData    Quality = "NO_DATA"   // zero readings in the window
)

// RollingAverages holds the trailing-window means for one location.
// A pollutant absent from Values had no valid sample in the window; its
// average is unavailable, which is distinct from an average of zero.
type RollingAverages struct {
	LocationID string
	Window     time.Duration
	ComputedAt time.Time
	Values     PollutantMap
	Samples    map[Pollutant]int
	RowCount   int           // reading rows that fell inside the window
	Span       time.Duration // oldest to newest row actually covered
	Quality    Quality
}

// ComputeRollingAverages folds the readings with ObservedAt in
// [now−window, now] into per-pollutant arithmetic means. Each pollutant is
// averaged independently over only the rows that report it. The quality
// label uses interval as the expected reading cadence: window/interval rows
// are expected, and a covered span shorter than one interval is flagged
// LIMITED regardless of count, since a cluster of samples at one instant
// cannot represent a trend across the window.
func ComputeRollingAverages(locationID string, readings []RawReading, window, interval time.Duration, now time.Time) RollingAverages {
	out := RollingAverages{
		LocationID: locationID,
		Window:     window,
		ComputedAt: now,
		Values:     make(PollutantMap),
		Samples:    make(map[Pollutant]int),
	}

	cutoff := now.Add(-window)
	sums := make(map[Pollutant]float64)
	var oldest, newest time.Time
	for _, r := range readings {
		if r.ObservedAt.Before(cutoff) || r.ObservedAt.After(now) {
			continue
		}
		out.RowCount++
		if oldest.IsZero() || r.ObservedAt.Before(oldest) {
			oldest = r.ObservedAt
		}
		if r.ObservedAt.After(newest) {
			newest = r.ObservedAt
		}
		for p, v := range r.Values {
			sums[p] += v
			out.Samples[p]++
		}
	}

	for p, n := range out.Samples {
		out.Values[p] = sums[p] / float64(n)
	}
	if out.RowCount > 0 {
		out.Span = newest.Sub(oldest)
	}
	out.Quality = classifyQuality(out.RowCount, out.Span, window, interval)
	return out
}

func classifyQuality(rows int, span, window, interval time.Duration) Quality {
	if rows == 0 {
		return QualityNoData
	}
	if span < interval {
		return QualityLimited
	}
	expected := int(window / interval)
	if expected <= 0 {
		expected = 1
	}
	ratio := float64(rows) / float64(expected)
	switch {
	case ratio >= 0.9:
		return QualityExcellent
	case ratio >= 0.7:
		return QualityGood
	case ratio >= 0.5:
		return QualityFair
	default:
		return QualityLimited
	}
}
