// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package accuracy

// tCritical975 holds two-sided 95% critical values of Student's t
// (t_{0.975, df}) for small samples; beyond the table the normal
// approximation is within 0.1%.
var tCritical975 = map[int]float64{
	1: 12.706, 2: 4.303, 3: 3.182, 4: 2.776, 5: 2.571,
	6: 2.447, 7: 2.365, 8: 2.306, 9: 2.262, 10: 2.228,
	11: 2.201, 12: 2.179, 13: 2.160, 14: 2.145, 15: 2.131,
	16: 2.120, 17: 2.110, 18: 2.101, 19: 2.093, 20: 2.086,
	21: 2.080, 22: 2.074, 23: 2.069, 24: 2.064, 25: 2.060,
	26: 2.056, 27: 2.052, 28: 2.048, 29: 2.045, 30: 2.042,
	40: 2.021, 60: 2.000, 120: 1.980,
}

// tValue returns t_{0.975, df}, falling back to the closest smaller
// tabulated df (conservative: the critical value shrinks as df grows)
// and to the normal limit 1.96 past the table.
func tValue(df int) float64 {
	if df < 1 {
		return 0
	}
	if v, ok := tCritical975[df]; ok {
		return v
	}
	switch {
	case df < 40:
		return tCritical975[30]
	case df < 60:
		return tCritical975[40]
	case df < 120:
		return tCritical975[60]
	case df < 1000:
		return tCritical975[120]
	default:
		return 1.96
	}
}
