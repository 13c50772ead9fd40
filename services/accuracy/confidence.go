// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package accuracy

import (
	"fmt"
	"math"

	"github.com/AleutianAI/windward/services/storage"
)

// Confidence classification thresholds in days of temporal coverage.
const (
	preliminaryDays = 30
	validatedDays   = 90
)

// Classify maps days of data to a confidence level. The level is
// monotone non-decreasing in coverage.
func Classify(days float64) storage.ConfidenceLevel {
	switch {
	case days >= validatedDays:
		return storage.ConfidenceValidated
	case days >= preliminaryDays:
		return storage.ConfidencePreliminary
	default:
		return storage.ConfidenceInsufficient
	}
}

// Message renders the UI hint for a confidence level, with the number
// of days remaining until the next level.
func Message(level storage.ConfidenceLevel, days float64) string {
	switch level {
	case storage.ConfidenceValidated:
		return fmt.Sprintf("validated: %.0f days of data", math.Floor(days))
	case storage.ConfidencePreliminary:
		remaining := math.Ceil(validatedDays - days)
		return fmt.Sprintf("preliminary: %.0f more days of data until validated", remaining)
	default:
		remaining := math.Ceil(preliminaryDays - days)
		return fmt.Sprintf("insufficient data: %.0f more days until preliminary", remaining)
	}
}
