package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPPB(t *testing.T) {
	t.Run("ozone", func(t *testing.T) {
		v, ok := FromPPB(O3, 45)
		require.True(t, ok)
		assert.Equal(t, 90.0, v)
	})

	t.Run("nitrogen dioxide", func(t *testing.T) {
		v, ok := FromPPB(NO2, 50)
		require.True(t, ok)
		assert.InDelta(t, 94.0, v, 1e-9)
	})

	t.Run("sulfur dioxide", func(t *testing.T) {
		v, ok := FromPPB(SO2, 10)
		require.True(t, ok)
		assert.InDelta(t, 26.2, v, 1e-9)
	})

	t.Run("particulates have no ppb form", func(t *testing.T) {
		_, ok := FromPPB(PM25, 10)
		assert.False(t, ok)
		_, ok = FromPPB(PM10, 10)
		assert.False(t, ok)
	})

	t.Run("round trip", func(t *testing.T) {
		ug, ok := FromPPB(NO2, 37.5)
		require.True(t, ok)
		ppb, ok := ToPPB(NO2, ug)
		require.True(t, ok)
		assert.InDelta(t, 37.5, ppb, 1e-9)
	})
}

func TestFromMicrograms(t *testing.T) {
	t.Run("CO rescales to mg", func(t *testing.T) {
		v, ok := FromMicrograms(CO, 1145)
		require.True(t, ok)
		assert.InDelta(t, 1.145, v, 1e-9)
	})

	t.Run("particulates pass through", func(t *testing.T) {
		v, ok := FromMicrograms(PM25, 33.4)
		require.True(t, ok)
		assert.Equal(t, 33.4, v)
	})

	t.Run("measured zero is preserved", func(t *testing.T) {
		v, ok := FromMicrograms(SO2, 0)
		require.True(t, ok)
		assert.Equal(t, 0.0, v)
	})

	t.Run("unknown pollutant", func(t *testing.T) {
		_, ok := FromMicrograms(Pollutant("nh3"), 12)
		assert.False(t, ok)
	})
}

func TestFromIndex(t *testing.T) {
	t.Run("band lower edge", func(t *testing.T) {
		v, ok := FromIndex(PM25, 101)
		require.True(t, ok)
		assert.Equal(t, 35.5, v)
	})

	t.Run("band upper edge", func(t *testing.T) {
		v, ok := FromIndex(PM25, 50)
		require.True(t, ok)
		assert.Equal(t, 12.0, v)
	})

	t.Run("interpolates inside a band", func(t *testing.T) {
		// Midpoint of the 101-150 band: 35.5 + 0.5*(55.4-35.5).
		v, ok := FromIndex(PM25, 125.5)
		require.True(t, ok)
		assert.InDelta(t, 45.45, v, 1e-9)
	})

	t.Run("gases convert from ppb", func(t *testing.T) {
		v, ok := FromIndex(O3, 50)
		require.True(t, ok)
		assert.InDelta(t, 108.0, v, 1e-9) // 54 ppb × 2.0
	})

	t.Run("CO converts from ppm to mg", func(t *testing.T) {
		v, ok := FromIndex(CO, 50)
		require.True(t, ok)
		assert.InDelta(t, 5.038, v, 1e-9) // 4.4 ppm × 1.145
	})

	t.Run("fails closed above every band", func(t *testing.T) {
		_, ok := FromIndex(PM25, 501)
		assert.False(t, ok)
	})

	t.Run("fails closed on negative index", func(t *testing.T) {
		_, ok := FromIndex(PM25, -1)
		assert.False(t, ok)
	})

	t.Run("fails closed on unknown pollutant", func(t *testing.T) {
		_, ok := FromIndex(Pollutant("aqi"), 50)
		assert.False(t, ok)
	})
}
