// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for the pipeline
// engines.
//
// This package contains validators for arguments that reach database
// queries or Flux queries. Engine entry points call these before touching
// storage so that programmer errors surface immediately instead of as
// half-written batches.
package validation

import (
	"fmt"
	"regexp"
	"time"
)

// ErrValidation wraps all argument validation failures so callers can
// distinguish programmer errors from storage or transport errors.
type ErrValidation struct {
	Field  string
	Reason string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// identPattern matches identifiers that are safe to interpolate into
// Flux queries (measurement and tag values we generate ourselves).
var identPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]{1,64}$`)

// ID validates a surrogate id (site, model, parameter).
//
// IDs are positive integers. Zero and negative values indicate a caller
// bug, never missing data.
func ID(field string, id int64) error {
	if id <= 0 {
		return &ErrValidation{Field: field, Reason: fmt.Sprintf("must be positive, got %d", id)}
	}
	return nil
}

// Window validates a [start, end] time window.
//
// Both bounds must be set and start must be strictly before end.
func Window(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return &ErrValidation{Field: "window", Reason: "start and end must be set"}
	}
	if !start.Before(end) {
		return &ErrValidation{Field: "window", Reason: fmt.Sprintf("start %s is not before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))}
	}
	return nil
}

// Coordinates validates a (lat, lon) pair.
func Coordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return &ErrValidation{Field: "latitude", Reason: fmt.Sprintf("out of range: %v", lat)}
	}
	if lon < -180 || lon > 180 {
		return &ErrValidation{Field: "longitude", Reason: fmt.Sprintf("out of range: %v", lon)}
	}
	return nil
}

// Ident validates a name that will be interpolated into a Flux query
// (parameter names, model names). Prevents Flux injection the same way
// the data services sanitize tickers.
func Ident(field, value string) error {
	if value == "" {
		return &ErrValidation{Field: field, Reason: "cannot be empty"}
	}
	if !identPattern.MatchString(value) {
		return &ErrValidation{Field: field, Reason: fmt.Sprintf("contains unsafe characters: %q", value)}
	}
	return nil
}
