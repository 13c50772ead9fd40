// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
// The metrics engine relies on it to distinguish "no data" from a zero
// bias.
var ErrNotFound = errors.New("not found")

// UpsertResult reports a staging batch upsert. Inserted < Attempted
// means duplicates were silently skipped by the unique constraint.
type UpsertResult struct {
	Attempted int `json:"attempted"`
	Inserted  int `json:"inserted"`
}

// ReferenceStore serves sites, models, and parameters. Reference data
// is created by the bootstrap and mutated only by admin action, so
// reads dominate and no caching is attempted here.
type ReferenceStore interface {
	Sites(ctx context.Context) ([]Site, error)
	Site(ctx context.Context, id int64) (*Site, error)
	Models(ctx context.Context) ([]Model, error)
	ModelByName(ctx context.Context, name string) (*Model, error)
	Parameters(ctx context.Context) ([]Parameter, error)
	ParametersByID(ctx context.Context, ids []int64) (map[int64]Parameter, error)
}

// StagingStore persists raw collector output with batch
// upsert-or-ignore semantics: on conflict with the staging unique key,
// do nothing, so retried collections are idempotent.
type StagingStore interface {
	// UpsertForecasts inserts a batch; rows conflicting on
	// (site, model, parameter, forecast_run, valid_time) are skipped.
	UpsertForecasts(ctx context.Context, batch []Forecast) (UpsertResult, error)

	// UpsertObservations inserts a batch; rows conflicting on
	// (site, parameter, observation_time, source) are skipped.
	UpsertObservations(ctx context.Context, batch []Observation) (UpsertResult, error)

	// ForecastsInWindow loads a site's forecasts with
	// valid_time ∈ [start, end].
	ForecastsInWindow(ctx context.Context, siteID int64, start, end time.Time) ([]Forecast, error)

	// ObservationsInWindow loads a site's observations with
	// observation_time ∈ [start, end].
	ObservationsInWindow(ctx context.Context, siteID int64, start, end time.Time) ([]Observation, error)
}

// PairStore persists matched pairs and the processed flag that gates
// deviation reduction.
type PairStore interface {
	// ExistingPairKeys loads the (forecast_id, observation_id) set for
	// a site. The matcher checks this before inserting; the unique
	// constraint is a safety net, not the control flow.
	ExistingPairKeys(ctx context.Context, siteID int64) (map[PairKey]struct{}, error)

	// InsertPairs writes a batch, returning the number inserted.
	InsertPairs(ctx context.Context, batch []Pair) (int, error)

	// UnprocessedPairs loads a site's pairs with valid_time ∈
	// [start, end] and processed_at unset, oldest first.
	UnprocessedPairs(ctx context.Context, siteID int64, start, end time.Time) ([]Pair, error)

	// MarkProcessed stamps processed_at. A stamped pair is never
	// reduced again.
	MarkProcessed(ctx context.Context, pairIDs []int64, at time.Time) error
}

// DeviationStore is the time-series side of the contract.
type DeviationStore interface {
	// WriteDeviations appends reduced rows keyed on
	// (timestamp, site, model, parameter, horizon).
	WriteDeviations(ctx context.Context, points []DeviationPoint) error

	// DeviationsForCell loads every deviation for one cell. The
	// accuracy engine reduces in-process so Bessel's correction and
	// quantisation live in exactly one place.
	DeviationsForCell(ctx context.Context, cell MetricCell) ([]DeviationPoint, error)

	// RefreshRollups recomputes the daily/weekly/monthly
	// pre-aggregated buckets. Scheduling of refreshes belongs to the
	// storage layer; this is the manual entry point.
	RefreshRollups(ctx context.Context) error
}

// MetricStore persists accuracy metrics with 4-tuple upsert semantics.
type MetricStore interface {
	UpsertMetric(ctx context.Context, m *AccuracyMetric) error

	// Metric returns ErrNotFound when the cell has never been computed.
	Metric(ctx context.Context, cell MetricCell) (*AccuracyMetric, error)
}

// ExecutionLogStore records one row per job run.
type ExecutionLogStore interface {
	InsertExecutionLog(ctx context.Context, log *ExecutionLog) error

	// RecentExecutions returns runs for a job, newest first.
	RecentExecutions(ctx context.Context, jobID string, limit int) ([]ExecutionLog, error)
}

// Store aggregates the relational side of the contract for wiring.
type Store interface {
	ReferenceStore
	StagingStore
	PairStore
	MetricStore
	ExecutionLogStore
}
