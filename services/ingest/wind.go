// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import "math"

// Wind component conventions: u is the eastward component, v the
// northward component, both in m/s. Direction is meteorological, the
// bearing the wind blows FROM, degrees clockwise from north.

// WindSpeedKmh converts (u, v) components to speed in km/h, rounded to
// one decimal.
func WindSpeedKmh(u, v float64) float64 {
	return round1(windSpeedKmh(u, v))
}

// WindDirectionDeg converts (u, v) components to meteorological
// direction in [0, 360), rounded to the nearest whole degree. A calm
// wind (u == v == 0) reports 0.
func WindDirectionDeg(u, v float64) float64 {
	deg := math.Round(windDirectionDeg(u, v))
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// windSpeedKmh is the unrounded conversion.
func windSpeedKmh(u, v float64) float64 {
	return math.Sqrt(u*u+v*v) * 3.6
}

// windDirectionDeg is the unrounded conversion, normalised to [0, 360).
func windDirectionDeg(u, v float64) float64 {
	return normalizeDegrees(math.Atan2(-u, -v) * 180 / math.Pi)
}

// KelvinToCelsius converts a temperature, rounded to one decimal.
func KelvinToCelsius(k float64) float64 {
	return round1(k - 273.15)
}

// normalizeDegrees maps an angle into [0, 360).
func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
