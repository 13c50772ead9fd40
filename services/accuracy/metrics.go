// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package accuracy reduces deviation series to per-cell accuracy
// metrics: MAE, bias, spread, a 95% confidence interval, and a
// coverage-based confidence level.
package accuracy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AleutianAI/windward/pkg/logging"
	"github.com/AleutianAI/windward/pkg/validation"
	"github.com/AleutianAI/windward/services/storage"
)

// Series is the read side of the deviation time series.
type Series interface {
	DeviationsForCell(ctx context.Context, cell storage.MetricCell) ([]storage.DeviationPoint, error)
}

// Store persists the computed metrics.
type Store interface {
	UpsertMetric(ctx context.Context, m *storage.AccuracyMetric) error
}

// Config tunes the engine.
type Config struct {
	// Now stamps calculated_at; injectable for tests. Default: time.Now
	Now func() time.Time
}

// Engine computes accuracy metrics from the deviation series.
type Engine struct {
	series Series
	store  Store
	logger *logging.Logger
	cfg    Config
}

// New creates an Engine.
func New(series Series, store Store, logger *logging.Logger, cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{series: series, store: store, logger: logger, cfg: cfg}
}

// ComputeCell aggregates the cell's deviations, upserts the resulting
// AccuracyMetric, and returns it.
//
// An empty cell returns storage.ErrNotFound rather than fabricating a
// zero row: a zero bias is a meaningful measurement, absence is not.
// Every numeric output is quantised to 4 fractional digits before
// persistence so values round-trip through storage without drift.
func (e *Engine) ComputeCell(ctx context.Context, cell storage.MetricCell) (*storage.AccuracyMetric, error) {
	if err := validation.ID("model_id", cell.ModelID); err != nil {
		return nil, err
	}
	if err := validation.ID("site_id", cell.SiteID); err != nil {
		return nil, err
	}
	if err := validation.ID("parameter_id", cell.ParameterID); err != nil {
		return nil, err
	}

	devs, err := e.series.DeviationsForCell(ctx, cell)
	if err != nil {
		return nil, fmt.Errorf("load deviations: %w", err)
	}
	n := len(devs)
	if n == 0 {
		return nil, fmt.Errorf("no deviations for cell %+v: %w", cell, storage.ErrNotFound)
	}

	var (
		sumAbs, sum float64
		minD, maxD  = devs[0].Deviation, devs[0].Deviation
		first, last = devs[0].Timestamp, devs[0].Timestamp
	)
	for _, d := range devs {
		sum += d.Deviation
		sumAbs += math.Abs(d.Deviation)
		minD = math.Min(minD, d.Deviation)
		maxD = math.Max(maxD, d.Deviation)
		if d.Timestamp.Before(first) {
			first = d.Timestamp
		}
		if d.Timestamp.After(last) {
			last = d.Timestamp
		}
	}
	bias := sum / float64(n)
	mae := sumAbs / float64(n)

	// Bessel's correction; degenerate samples collapse to zero spread.
	stdDev := 0.0
	if n > 1 {
		var ss float64
		for _, d := range devs {
			ss += (d.Deviation - bias) * (d.Deviation - bias)
		}
		if variance := ss / float64(n-1); variance > 0 {
			stdDev = math.Sqrt(variance)
		}
	}

	ciLower, ciUpper := bias, bias
	if n > 1 && stdDev > 0 {
		margin := tValue(n-1) * stdDev / math.Sqrt(float64(n))
		ciLower, ciUpper = bias-margin, bias+margin
	}

	days := last.Sub(first).Hours() / 24
	level := Classify(days)

	m := &storage.AccuracyMetric{
		ModelID:         cell.ModelID,
		SiteID:          cell.SiteID,
		ParameterID:     cell.ParameterID,
		HorizonHours:    cell.HorizonHours,
		MAE:             quantize(mae),
		Bias:            quantize(bias),
		StdDev:          quantize(stdDev),
		SampleSize:      n,
		ConfidenceLevel: level,
		CILower:         quantize(ciLower),
		CIUpper:         quantize(ciUpper),
		MinDeviation:    quantize(minD),
		MaxDeviation:    quantize(maxD),
		CalculatedAt:    e.cfg.Now().UTC(),
	}
	if err := e.store.UpsertMetric(ctx, m); err != nil {
		return nil, fmt.Errorf("upsert metric: %w", err)
	}

	e.logger.Info("accuracy cell computed",
		"model_id", cell.ModelID, "site_id", cell.SiteID,
		"parameter_id", cell.ParameterID, "horizon", cell.HorizonHours,
		"sample_size", n, "mae", m.MAE, "bias", m.Bias,
		"confidence", level, "note", Message(level, days))
	return m, nil
}

// quantize rounds to 4 fractional digits through fixed-point decimal
// so the stored value is exactly representable.
func quantize(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return f
}
