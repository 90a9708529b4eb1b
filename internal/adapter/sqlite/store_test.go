package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klongtoey/airhealth/internal/domain"
)

const testLocation = "bkk-din-daeng"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func f(v float64) *float64 { return &v }

func TestReadings(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 5, 0, 0, 0, time.UTC)

	t.Run("upsert replaces the same instant", func(t *testing.T) {
		s := openTestStore(t)
		r := domain.RawReading{
			LocationID: testLocation,
			Provider:   "waqi",
			ObservedAt: base,
			Values:     domain.PollutantMap{domain.PM25: 30},
		}
		require.NoError(t, s.UpsertReading(ctx, r))

		r.Values = domain.PollutantMap{domain.PM25: 42, domain.O3: 90}
		require.NoError(t, s.UpsertReading(ctx, r))

		got, err := s.ReadingsSince(ctx, testLocation, base.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, domain.PollutantMap{domain.PM25: 42, domain.O3: 90}, got[0].Values)
	})

	t.Run("absent and zero values stay distinct", func(t *testing.T) {
		s := openTestStore(t)
		require.NoError(t, s.UpsertReading(ctx, domain.RawReading{
			LocationID: testLocation,
			Provider:   "waqi",
			ObservedAt: base,
			Values:     domain.PollutantMap{domain.PM25: 30, domain.SO2: 0},
		}))

		got, err := s.ReadingsSince(ctx, testLocation, base.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)

		so2, ok := got[0].Values.Get(domain.SO2)
		require.True(t, ok)
		assert.Equal(t, 0.0, so2)
		_, ok = got[0].Values.Get(domain.CO)
		assert.False(t, ok)
	})

	t.Run("window query is time-filtered and ascending", func(t *testing.T) {
		s := openTestStore(t)
		for _, h := range []int{-5, -2, -1, 0} {
			require.NoError(t, s.UpsertReading(ctx, domain.RawReading{
				LocationID: testLocation,
				Provider:   "waqi",
				ObservedAt: base.Add(time.Duration(h) * time.Hour),
				Values:     domain.PollutantMap{domain.PM25: float64(30 + h)},
			}))
		}

		got, err := s.ReadingsSince(ctx, testLocation, base.Add(-3*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.True(t, got[0].ObservedAt.Before(got[1].ObservedAt))
		assert.True(t, got[1].ObservedAt.Before(got[2].ObservedAt))
	})

	t.Run("providers do not collide", func(t *testing.T) {
		s := openTestStore(t)
		for _, provider := range []string{"waqi", "openweather"} {
			require.NoError(t, s.UpsertReading(ctx, domain.RawReading{
				LocationID: testLocation,
				Provider:   provider,
				ObservedAt: base,
				Values:     domain.PollutantMap{domain.PM25: 30},
			}))
		}
		got, err := s.ReadingsSince(ctx, testLocation, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("latest reading per provider", func(t *testing.T) {
		s := openTestStore(t)
		_, ok, err := s.LatestReading(ctx, testLocation, "waqi")
		require.NoError(t, err)
		assert.False(t, ok)

		for _, h := range []int{-2, 0, -1} {
			require.NoError(t, s.UpsertReading(ctx, domain.RawReading{
				LocationID: testLocation,
				Provider:   "waqi",
				ObservedAt: base.Add(time.Duration(h) * time.Hour),
				Values:     domain.PollutantMap{domain.PM25: float64(30 + h)},
			}))
		}
		r, ok, err := s.LatestReading(ctx, testLocation, "waqi")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, base, r.ObservedAt)
	})
}

func TestHealthIndex(t *testing.T) {
	ctx := context.Background()
	hour := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)

	record := func(h time.Time, value float64) domain.HealthIndexRecord {
		return domain.HealthIndexRecord{
			LocationID: testLocation,
			Hour:       h,
			Value:      value,
			Category:   domain.RiskLow,
			Quality:    domain.QualityExcellent,
			Policy:     "reference",
			Inputs:     domain.IndexInputs{PM25: f(35.5), O3: f(90.0)},
			ComputedAt: h.Add(5 * time.Minute),
		}
	}

	t.Run("round trip", func(t *testing.T) {
		s := openTestStore(t)
		_, ok, err := s.LatestIndex(ctx, testLocation)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.UpsertHealthIndex(ctx, record(hour, 1.7)))

		got, ok, err := s.LatestIndex(ctx, testLocation)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1.7, got.Value)
		assert.Equal(t, domain.RiskLow, got.Category)
		assert.Equal(t, domain.QualityExcellent, got.Quality)
		assert.Equal(t, "reference", got.Policy)
		assert.Equal(t, hour, got.Hour)
		require.NotNil(t, got.Inputs.PM25)
		assert.Equal(t, 35.5, *got.Inputs.PM25)
		assert.Nil(t, got.Inputs.PM10)
		assert.Nil(t, got.Inputs.NO2)
	})

	t.Run("rerunning an hour replaces the record", func(t *testing.T) {
		s := openTestStore(t)
		require.NoError(t, s.UpsertHealthIndex(ctx, record(hour, 1.7)))
		require.NoError(t, s.UpsertHealthIndex(ctx, record(hour, 2.1)))

		history, err := s.IndexHistory(ctx, testLocation, hour.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, 2.1, history[0].Value)
	})

	t.Run("history is since-filtered and ascending", func(t *testing.T) {
		s := openTestStore(t)
		for _, h := range []int{-30, -2, -1, 0} {
			require.NoError(t, s.UpsertHealthIndex(ctx, record(hour.Add(time.Duration(h)*time.Hour), 1.5)))
		}

		history, err := s.IndexHistory(ctx, testLocation, hour.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, hour.Add(-2*time.Hour), history[0].Hour)
		assert.Equal(t, hour, history[2].Hour)
	})
}

func TestIncrementIfUnder(t *testing.T) {
	ctx := context.Background()
	const day = "2026-03-14"

	t.Run("grants until the ceiling", func(t *testing.T) {
		s := openTestStore(t)
		for i := 0; i < 3; i++ {
			ok, err := s.IncrementIfUnder(ctx, "waqi", day, 3)
			require.NoError(t, err)
			assert.True(t, ok, "call %d should be within budget", i+1)
		}
		ok, err := s.IncrementIfUnder(ctx, "waqi", day, 3)
		require.NoError(t, err)
		assert.False(t, ok)

		used, _, err := s.Usage(ctx, "waqi", day)
		require.NoError(t, err)
		assert.Equal(t, 3, used)
	})

	t.Run("days are independent", func(t *testing.T) {
		s := openTestStore(t)
		ok, err := s.IncrementIfUnder(ctx, "waqi", day, 1)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.IncrementIfUnder(ctx, "waqi", day, 1)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = s.IncrementIfUnder(ctx, "waqi", "2026-03-15", 1)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("zero ceiling denies everything", func(t *testing.T) {
		s := openTestStore(t)
		ok, err := s.IncrementIfUnder(ctx, "waqi", day, 0)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing row reads as zero usage", func(t *testing.T) {
		s := openTestStore(t)
		used, ceiling, err := s.Usage(ctx, "nobody", day)
		require.NoError(t, err)
		assert.Zero(t, used)
		assert.Zero(t, ceiling)
	})
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 5, 0, 0, 0, time.UTC)
	s := openTestStore(t)

	for _, h := range []int{-100, -80, -1, 0} {
		require.NoError(t, s.UpsertReading(ctx, domain.RawReading{
			LocationID: testLocation,
			Provider:   "waqi",
			ObservedAt: base.Add(time.Duration(h) * time.Hour),
			Values:     domain.PollutantMap{domain.PM25: 30},
		}))
	}
	for _, day := range []string{"2026-01-01", "2026-03-14"} {
		_, err := s.IncrementIfUnder(ctx, "waqi", day, 10)
		require.NoError(t, err)
	}

	removed, err := s.Prune(ctx, base.Add(-72*time.Hour), "2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	kept, err := s.ReadingsSince(ctx, testLocation, base.Add(-200*time.Hour))
	require.NoError(t, err)
	assert.Len(t, kept, 2)

	used, _, err := s.Usage(ctx, "waqi", "2026-01-01")
	require.NoError(t, err)
	assert.Zero(t, used)
	used, _, err = s.Usage(ctx, "waqi", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}
