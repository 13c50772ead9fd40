// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package deviation reduces matched pairs to signed errors in the
// time-series store.
//
// Reduction is at-most-once: a pair is stamped processed in the same
// flush that writes its deviation, and stamped pairs are never selected
// again. Running the engine twice over overlapping windows is safe.
package deviation

import (
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/windward/pkg/logging"
	"github.com/AleutianAI/windward/pkg/validation"
	"github.com/AleutianAI/windward/services/storage"
)

// Store is the relational slice of the contract the engine needs.
type Store interface {
	UnprocessedPairs(ctx context.Context, siteID int64, start, end time.Time) ([]storage.Pair, error)
	ParametersByID(ctx context.Context, ids []int64) (map[int64]storage.Parameter, error)
	MarkProcessed(ctx context.Context, pairIDs []int64, at time.Time) error
}

// TimeSeries is the write side of the deviation series.
type TimeSeries interface {
	WriteDeviations(ctx context.Context, points []storage.DeviationPoint) error
}

// outlierThresholds flags (never filters) suspicious deviations per
// parameter. Wind direction is absent: the domain is bounded, a large
// angular error is legitimate signal.
var outlierThresholds = map[string]float64{
	storage.ParamWindSpeed:   50, // km/h
	storage.ParamTemperature: 15, // °C
}

// Config tunes the engine.
type Config struct {
	// BatchSize is the flush threshold. Default: 1000
	BatchSize int

	// Now stamps processed_at; injectable for tests. Default: time.Now
	Now func() time.Time
}

// Result summarises one reduction run.
type Result struct {
	PairsProcessed    int `json:"pairs_processed"`
	DeviationsWritten int `json:"deviations_written"`
	OutliersFlagged   int `json:"outliers_flagged"`
}

// Engine reduces pairs to deviations.
type Engine struct {
	store  Store
	series TimeSeries
	logger *logging.Logger
	cfg    Config
}

// New creates an Engine. Zero-valued config fields take defaults.
func New(store Store, series TimeSeries, logger *logging.Logger, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{store: store, series: series, logger: logger, cfg: cfg}
}

// ReduceWindow reduces every unprocessed pair for the site with
// valid_time in [start, end], oldest first.
//
// d = observed − forecast, except wind_direction where d is normalised
// into (−180, 180] so a 350°→10° wrap reads as +20, not −340. Outliers
// are flagged in the log and counted, never dropped.
func (e *Engine) ReduceWindow(ctx context.Context, siteID int64, start, end time.Time) (Result, error) {
	var res Result
	if err := validation.ID("site_id", siteID); err != nil {
		return res, err
	}
	if err := validation.Window(start, end); err != nil {
		return res, err
	}

	pairs, err := e.store.UnprocessedPairs(ctx, siteID, start, end)
	if err != nil {
		return res, fmt.Errorf("load unprocessed pairs: %w", err)
	}
	if len(pairs) == 0 {
		return res, nil
	}

	params, err := e.store.ParametersByID(ctx, distinctParameterIDs(pairs))
	if err != nil {
		return res, fmt.Errorf("resolve parameters: %w", err)
	}

	var (
		points  []storage.DeviationPoint
		pairIDs []int64
	)
	flush := func() error {
		if len(points) == 0 {
			return nil
		}
		if err := e.series.WriteDeviations(ctx, points); err != nil {
			return fmt.Errorf("write deviations: %w", err)
		}
		if err := e.store.MarkProcessed(ctx, pairIDs, e.cfg.Now()); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		res.DeviationsWritten += len(points)
		res.PairsProcessed += len(pairIDs)
		points = points[:0]
		pairIDs = pairIDs[:0]
		return nil
	}

	for _, p := range pairs {
		param, known := params[p.ParameterID]
		if !known {
			e.logger.Debug("pair references unknown parameter, skipping",
				"pair_id", p.ID, "parameter_id", p.ParameterID)
			continue
		}

		d := p.ObservedValue - p.ForecastValue
		if param.Circular() {
			d = NormalizeCircular(d)
		}
		if threshold, bounded := outlierThresholds[param.Name]; bounded && abs(d) > threshold {
			res.OutliersFlagged++
			e.logger.Warn("outlier deviation",
				"pair_id", p.ID, "parameter", param.Name,
				"deviation", d, "threshold", threshold)
		}

		points = append(points, storage.DeviationPoint{
			Timestamp:     p.ValidTime,
			SiteID:        p.SiteID,
			ModelID:       p.ModelID,
			ParameterID:   p.ParameterID,
			HorizonHours:  p.HorizonHours,
			ForecastValue: p.ForecastValue,
			ObservedValue: p.ObservedValue,
			Deviation:     d,
		})
		pairIDs = append(pairIDs, p.ID)

		if len(points) >= e.cfg.BatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	e.logger.Info("deviation run complete",
		"site_id", siteID,
		"pairs", res.PairsProcessed,
		"deviations", res.DeviationsWritten,
		"outliers", res.OutliersFlagged)
	return res, nil
}

// NormalizeCircular maps an angular difference into (−180, 180].
// Invariant under full turns: NormalizeCircular(d + 360k) is the same
// for every integer k.
func NormalizeCircular(d float64) float64 {
	for d > 180 {
		d -= 360
	}
	for d <= -180 {
		d += 360
	}
	return d
}

func distinctParameterIDs(pairs []storage.Pair) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, p := range pairs {
		if _, ok := seen[p.ParameterID]; !ok {
			seen[p.ParameterID] = struct{}{}
			out = append(out, p.ParameterID)
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
