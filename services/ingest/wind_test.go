// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// Tests for wind component conversions.

package ingest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindSpeedKmh(t *testing.T) {
	// 3-4-5 triangle: 5 m/s = 18 km/h.
	assert.Equal(t, 18.0, WindSpeedKmh(3, 4))
	assert.Equal(t, 0.0, WindSpeedKmh(0, 0))
	// Rounded to one decimal: 1 m/s = 3.6 km/h.
	assert.Equal(t, 3.6, WindSpeedKmh(1, 0))
}

func TestWindDirectionDeg_Cardinals(t *testing.T) {
	// Meteorological convention: the direction the wind blows FROM.
	cases := []struct {
		u, v float64
		want float64
	}{
		{0, -1, 0},   // northerly: blowing toward the south
		{-1, 0, 90},  // easterly
		{0, 1, 180},  // southerly
		{1, 0, 270},  // westerly
		{-1, -1, 45}, // north-easterly
		{1, 1, 225},  // south-westerly
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, WindDirectionDeg(tc.u, tc.v), "u=%v v=%v", tc.u, tc.v)
	}
}

func TestWindDirectionDeg_NormalizedRange(t *testing.T) {
	// An angle that rounds up to 360 must wrap back to 0.
	got := WindDirectionDeg(0.005, -1)
	assert.Equal(t, 0.0, got)

	assert.Equal(t, 0.0, WindDirectionDeg(0, 0), "calm wind reports 0")
}

// Speed and direction must carry the full information of the (u, v)
// pair: reconstructing the components from the unrounded conversions
// lands within 1e-3 m/s of the inputs.
func TestWindConversion_RoundTrip(t *testing.T) {
	components := []float64{-12.5, -3.2, -0.4, 0, 0.4, 3.2, 12.5}
	for _, u := range components {
		for _, v := range components {
			if u == 0 && v == 0 {
				continue // calm: direction is undefined
			}
			speed := windSpeedKmh(u, v) / 3.6
			rad := windDirectionDeg(u, v) * math.Pi / 180
			u2 := -speed * math.Sin(rad)
			v2 := -speed * math.Cos(rad)
			assert.InDelta(t, u, u2, 1e-3, "u for (%v, %v)", u, v)
			assert.InDelta(t, v, v2, 1e-3, "v for (%v, %v)", u, v)
		}
	}
}

func TestKelvinToCelsius(t *testing.T) {
	assert.Equal(t, 15.0, KelvinToCelsius(288.15))
	assert.Equal(t, -10.0, KelvinToCelsius(263.15))
	assert.Equal(t, 0.1, KelvinToCelsius(273.25))
}

func TestNormalizeDegrees(t *testing.T) {
	assert.Equal(t, 10.0, normalizeDegrees(370))
	assert.Equal(t, 350.0, normalizeDegrees(-10))
	assert.Equal(t, 0.0, normalizeDegrees(720))
}
