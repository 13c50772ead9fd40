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

// ffvlCardinals is the 16-point French compass rose. West is "O"
// (ouest), not "W".
var ffvlCardinals = map[string]float64{
	"N": 0, "NNE": 22.5, "NE": 45, "ENE": 67.5,
	"E": 90, "ESE": 112.5, "SE": 135, "SSE": 157.5,
	"S": 180, "SSO": 202.5, "SO": 225, "OSO": 247.5,
	"O": 270, "ONO": 292.5, "NO": 315, "NNO": 337.5,
}

// FFVLConfig configures the FFVL beacon-network collector.
type FFVLConfig struct {
	// BaseURL is the beacon page endpoint; the beacon is selected by
	// the idBalise query parameter.
	BaseURL string

	// Timeout bounds one page fetch. Default: 15s
	Timeout time.Duration

	// RateInterval is the minimum spacing between fetches. The pages
	// are scraped, so the default stays polite. Default: 2s
	RateInterval time.Duration
}

// NewFFVLCollector builds the observation collector for the FFVL
// beacon network. Observation-only; page timestamps are UTC.
func NewFFVLCollector(cfg FFVLConfig, deps *Deps) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = 2 * time.Second
	}

	c := &Collector{
		Name:         "ffvl",
		Source:       "ffvl",
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
			return fmt.Sprintf("%s?idBalise=%d", cfg.BaseURL, beaconID)
		},
		cardinals: ffvlCardinals,
		location:  time.UTC,
	}
	c.CollectObservation = func(ctx context.Context, req ObservationRequest) []ObservationPoint {
		return collectBeacon(ctx, deps, c, network, req)
	}
	return c
}
