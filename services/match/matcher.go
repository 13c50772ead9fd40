// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package match pairs staged forecasts with staged observations.
//
// The matcher is strictly a producer: it reads staging, writes Pair
// rows, and never mutates or deletes what it read. Running it twice
// over the same window is a no-op for already-paired forecasts.
package match

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/windward/pkg/logging"
	"github.com/AleutianAI/windward/pkg/validation"
	"github.com/AleutianAI/windward/services/storage"
)

// Store is the slice of the storage contract the matcher needs.
type Store interface {
	ForecastsInWindow(ctx context.Context, siteID int64, start, end time.Time) ([]storage.Forecast, error)
	ObservationsInWindow(ctx context.Context, siteID int64, start, end time.Time) ([]storage.Observation, error)
	ExistingPairKeys(ctx context.Context, siteID int64) (map[storage.PairKey]struct{}, error)
	InsertPairs(ctx context.Context, batch []storage.Pair) (int, error)
}

// Config tunes the matcher.
type Config struct {
	// Tolerance is the maximum |observation_time − valid_time| for a
	// match. Default: 30 minutes
	Tolerance time.Duration

	// BatchSize is the pair flush threshold. Default: 1000
	BatchSize int
}

// Result summarises one matcher run.
type Result struct {
	ForecastsExamined int `json:"forecasts_examined"`
	Matched           int `json:"matched"`
	Unmatched         int `json:"unmatched"`
	AlreadyPaired     int `json:"already_paired"`
	PairsInserted     int `json:"pairs_inserted"`
}

// Matcher pairs forecasts with their closest observation in time.
type Matcher struct {
	store  Store
	logger *logging.Logger
	cfg    Config
}

// New creates a Matcher. Zero-valued config fields take defaults.
func New(store Store, logger *logging.Logger, cfg Config) *Matcher {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Matcher{store: store, logger: logger, cfg: cfg}
}

// MatchWindow matches every forecast for the site with valid_time in
// [start, end] against observations in [start−T, end+T].
//
// Candidate selection: the observation of the forecast's parameter with
// minimum |Δt| ≤ T, ties broken by earliest observation_time so runs
// are deterministic. Forecasts whose selected observation is already
// paired with them are skipped before insert; the staging unique
// constraint is only a safety net.
//
// Flushed batches survive a mid-run storage failure; the next run picks
// up where this one stopped.
func (m *Matcher) MatchWindow(ctx context.Context, siteID int64, start, end time.Time) (Result, error) {
	var res Result
	if err := validation.ID("site_id", siteID); err != nil {
		return res, err
	}
	if err := validation.Window(start, end); err != nil {
		return res, err
	}

	forecasts, err := m.store.ForecastsInWindow(ctx, siteID, start, end)
	if err != nil {
		return res, fmt.Errorf("load forecasts: %w", err)
	}
	observations, err := m.store.ObservationsInWindow(ctx, siteID,
		start.Add(-m.cfg.Tolerance), end.Add(m.cfg.Tolerance))
	if err != nil {
		return res, fmt.Errorf("load observations: %w", err)
	}
	existing, err := m.store.ExistingPairKeys(ctx, siteID)
	if err != nil {
		return res, fmt.Errorf("load pair keys: %w", err)
	}

	// Deterministic processing order regardless of store ordering.
	sort.Slice(forecasts, func(i, j int) bool {
		if !forecasts[i].ValidTime.Equal(forecasts[j].ValidTime) {
			return forecasts[i].ValidTime.Before(forecasts[j].ValidTime)
		}
		return forecasts[i].ID < forecasts[j].ID
	})

	buckets := make(map[int64][]storage.Observation)
	for _, o := range observations {
		buckets[o.ParameterID] = append(buckets[o.ParameterID], o)
	}

	var batch []storage.Pair
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := m.store.InsertPairs(ctx, batch)
		if err != nil {
			return fmt.Errorf("insert pairs: %w", err)
		}
		res.PairsInserted += n
		batch = batch[:0]
		return nil
	}

	res.ForecastsExamined = len(forecasts)
	for _, f := range forecasts {
		obs, ok := m.selectObservation(f, buckets[f.ParameterID])
		if !ok {
			res.Unmatched++
			continue
		}

		key := storage.PairKey{ForecastID: f.ID, ObservationID: obs.ID}
		if _, dup := existing[key]; dup {
			res.AlreadyPaired++
			continue
		}
		existing[key] = struct{}{}

		dt := absDuration(obs.ObservationTime.Sub(f.ValidTime))
		batch = append(batch, storage.Pair{
			ForecastID:      f.ID,
			ObservationID:   obs.ID,
			SiteID:          f.SiteID,
			ModelID:         f.ModelID,
			ParameterID:     f.ParameterID,
			ForecastRun:     f.ForecastRun,
			ValidTime:       f.ValidTime,
			HorizonHours:    storage.HorizonHours(f.ForecastRun, f.ValidTime),
			ForecastValue:   f.Value,
			ObservedValue:   obs.Value,
			TimeDiffMinutes: int(dt / time.Minute),
		})
		res.Matched++

		if len(batch) >= m.cfg.BatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	m.logger.Info("matcher run complete",
		"site_id", siteID,
		"forecasts", res.ForecastsExamined,
		"matched", res.Matched,
		"unmatched", res.Unmatched,
		"already_paired", res.AlreadyPaired,
		"inserted", res.PairsInserted)
	return res, nil
}

// selectObservation picks the candidate with minimum |Δt| within the
// tolerance; ties go to the earliest observation_time.
func (m *Matcher) selectObservation(f storage.Forecast, candidates []storage.Observation) (storage.Observation, bool) {
	var (
		best    storage.Observation
		bestDt  time.Duration
		haveOne bool
	)
	for _, o := range candidates {
		dt := absDuration(o.ObservationTime.Sub(f.ValidTime))
		if dt > m.cfg.Tolerance {
			continue
		}
		if !haveOne || dt < bestDt ||
			(dt == bestDt && o.ObservationTime.Before(best.ObservationTime)) {
			best, bestDt, haveOne = o, dt, true
		}
	}
	return best, haveOne
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
