// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"context"
	"fmt"
	"time"
)

// rommaCardinals mixes French and international spellings; the network
// has used both over the years, and numeric bearings also appear (those
// are handled by the shared direction parser).
var rommaCardinals = map[string]float64{
	"N": 0, "NNE": 22.5, "NE": 45, "ENE": 67.5,
	"E": 90, "ESE": 112.5, "SE": 135, "SSE": 157.5,
	"S": 180, "SSO": 202.5, "SSW": 202.5, "SO": 225, "SW": 225,
	"OSO": 247.5, "WSW": 247.5, "O": 270, "W": 270,
	"ONO": 292.5, "WNW": 292.5, "NO": 315, "NW": 315,
	"NNO": 337.5, "NNW": 337.5,
}

// RommaConfig configures the Romma beacon-network collector.
type RommaConfig struct {
	// BaseURL is the station page endpoint; the station is selected by
	// the id query parameter.
	BaseURL string

	// Timeout bounds one page fetch. Default: 15s
	Timeout time.Duration

	// RateInterval is the minimum spacing between fetches. The pages
	// are scraped, so the default stays polite. Default: 2s
	RateInterval time.Duration
}

// NewRommaCollector builds the observation collector for the Romma
// station network. Observation-only. Page timestamps are French local
// time and are converted to UTC during parsing.
func NewRommaCollector(cfg RommaConfig, deps *Deps) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = 2 * time.Second
	}

	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		// tzdata missing from the host; UTC keeps collection running
		// with timestamps off by the French offset.
		deps.Logger.Error("failed to load Europe/Paris, falling back to UTC", "error", err)
		paris = time.UTC
	}

	c := &Collector{
		Name:         "romma",
		Source:       "romma",
		Timeout:      cfg.Timeout,
		RateInterval: cfg.RateInterval,
		ValidationRanges: map[string]Range{
			ParamWindSpeed:     {Min: 0, Max: 150},
			ParamWindDirection: {Min: 0, Max: 360},
			ParamTemperature:   {Min: -40, Max: 55},
		},
	}
	network := &beaconNetwork{
		buildURL: func(beaconID int) string {
			return fmt.Sprintf("%s?id=%d", cfg.BaseURL, beaconID)
		},
		cardinals: rommaCardinals,
		location:  paris,
	}
	c.CollectObservation = func(ctx context.Context, req ObservationRequest) []ObservationPoint {
		return collectBeacon(ctx, deps, c, network, req)
	}
	return c
}
