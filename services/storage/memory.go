// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a complete in-memory implementation of the storage
// contract, including the deviation time series. Used by the engine
// test suites and by `windward serve --memory` for local development.
//
// # Thread Safety
//
// MemoryStore is safe for concurrent use; a single mutex guards all
// state, which is fine at development scale.
type MemoryStore struct {
	mu sync.Mutex

	sites      []Site
	models     []Model
	parameters []Parameter

	forecasts       []Forecast
	observations    []Observation
	forecastKeys    map[forecastKey]struct{}
	observationKeys map[observationKey]struct{}

	pairs    []Pair
	pairKeys map[PairKey]struct{}

	deviations []DeviationPoint
	metrics    map[MetricCell]AccuracyMetric
	executions []ExecutionLog

	nextForecastID    int64
	nextObservationID int64
	nextPairID        int64
	nextExecutionID   int64

	rollupRefreshes int
}

type forecastKey struct {
	siteID, modelID, parameterID int64
	forecastRun, validTime       int64
}

type observationKey struct {
	siteID, parameterID int64
	observationTime     int64
	source              string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		forecastKeys:    make(map[forecastKey]struct{}),
		observationKeys: make(map[observationKey]struct{}),
		pairKeys:        make(map[PairKey]struct{}),
		metrics:         make(map[MetricCell]AccuracyMetric),
	}
}

// Seed loads reference data. Replaces any existing reference rows.
func (s *MemoryStore) Seed(sites []Site, models []Model, parameters []Parameter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites = append([]Site(nil), sites...)
	s.models = append([]Model(nil), models...)
	s.parameters = append([]Parameter(nil), parameters...)
}

// --- ReferenceStore ---

func (s *MemoryStore) Sites(ctx context.Context) ([]Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Site(nil), s.sites...), nil
}

func (s *MemoryStore) Site(ctx context.Context, id int64) (*Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, site := range s.sites {
		if site.ID == id {
			out := site
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Models(ctx context.Context) ([]Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Model(nil), s.models...), nil
}

func (s *MemoryStore) ModelByName(ctx context.Context, name string) (*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.models {
		if m.Name == name {
			out := m
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Parameters(ctx context.Context) ([]Parameter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Parameter(nil), s.parameters...), nil
}

func (s *MemoryStore) ParametersByID(ctx context.Context, ids []int64) (map[int64]Parameter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[int64]Parameter)
	for _, p := range s.parameters {
		if _, ok := want[p.ID]; ok {
			out[p.ID] = p
		}
	}
	return out, nil
}

// --- StagingStore ---

func (s *MemoryStore) UpsertForecasts(ctx context.Context, batch []Forecast) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := UpsertResult{Attempted: len(batch)}
	for _, f := range batch {
		key := forecastKey{
			siteID: f.SiteID, modelID: f.ModelID, parameterID: f.ParameterID,
			forecastRun: f.ForecastRun.UTC().UnixNano(), validTime: f.ValidTime.UTC().UnixNano(),
		}
		if _, dup := s.forecastKeys[key]; dup {
			continue
		}
		s.forecastKeys[key] = struct{}{}
		s.nextForecastID++
		f.ID = s.nextForecastID
		s.forecasts = append(s.forecasts, f)
		res.Inserted++
	}
	return res, nil
}

func (s *MemoryStore) UpsertObservations(ctx context.Context, batch []Observation) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := UpsertResult{Attempted: len(batch)}
	for _, o := range batch {
		src := ""
		if o.Source != nil {
			src = *o.Source
		}
		key := observationKey{
			siteID: o.SiteID, parameterID: o.ParameterID,
			observationTime: o.ObservationTime.UTC().UnixNano(), source: src,
		}
		if _, dup := s.observationKeys[key]; dup {
			continue
		}
		s.observationKeys[key] = struct{}{}
		s.nextObservationID++
		o.ID = s.nextObservationID
		s.observations = append(s.observations, o)
		res.Inserted++
	}
	return res, nil
}

func (s *MemoryStore) ForecastsInWindow(ctx context.Context, siteID int64, start, end time.Time) ([]Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Forecast
	for _, f := range s.forecasts {
		if f.SiteID == siteID && !f.ValidTime.Before(start) && !f.ValidTime.After(end) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidTime.Before(out[j].ValidTime) })
	return out, nil
}

func (s *MemoryStore) ObservationsInWindow(ctx context.Context, siteID int64, start, end time.Time) ([]Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Observation
	for _, o := range s.observations {
		if o.SiteID == siteID && !o.ObservationTime.Before(start) && !o.ObservationTime.After(end) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservationTime.Before(out[j].ObservationTime) })
	return out, nil
}

// --- PairStore ---

func (s *MemoryStore) ExistingPairKeys(ctx context.Context, siteID int64) (map[PairKey]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[PairKey]struct{})
	for _, p := range s.pairs {
		if p.SiteID == siteID {
			out[PairKey{ForecastID: p.ForecastID, ObservationID: p.ObservationID}] = struct{}{}
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertPairs(ctx context.Context, batch []Pair) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, p := range batch {
		key := PairKey{ForecastID: p.ForecastID, ObservationID: p.ObservationID}
		if _, dup := s.pairKeys[key]; dup {
			continue
		}
		s.pairKeys[key] = struct{}{}
		s.nextPairID++
		p.ID = s.nextPairID
		s.pairs = append(s.pairs, p)
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) UnprocessedPairs(ctx context.Context, siteID int64, start, end time.Time) ([]Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Pair
	for _, p := range s.pairs {
		if p.SiteID == siteID && p.ProcessedAt == nil &&
			!p.ValidTime.Before(start) && !p.ValidTime.After(end) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidTime.Before(out[j].ValidTime) })
	return out, nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, pairIDs []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[int64]struct{}, len(pairIDs))
	for _, id := range pairIDs {
		want[id] = struct{}{}
	}
	for i := range s.pairs {
		if _, ok := want[s.pairs[i].ID]; ok && s.pairs[i].ProcessedAt == nil {
			ts := at
			s.pairs[i].ProcessedAt = &ts
		}
	}
	return nil
}

// Pairs returns a copy of every pair; test helper.
func (s *MemoryStore) Pairs() []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Pair(nil), s.pairs...)
}

// --- DeviationStore ---

func (s *MemoryStore) WriteDeviations(ctx context.Context, points []DeviationPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviations = append(s.deviations, points...)
	return nil
}

func (s *MemoryStore) DeviationsForCell(ctx context.Context, cell MetricCell) ([]DeviationPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []DeviationPoint
	for _, d := range s.deviations {
		if d.ModelID == cell.ModelID && d.SiteID == cell.SiteID &&
			d.ParameterID == cell.ParameterID && d.HorizonHours == cell.HorizonHours {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) RefreshRollups(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollupRefreshes++
	return nil
}

// Deviations returns a copy of every deviation point; test helper.
func (s *MemoryStore) Deviations() []DeviationPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeviationPoint(nil), s.deviations...)
}

// --- MetricStore ---

func (s *MemoryStore) UpsertMetric(ctx context.Context, m *AccuracyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell := MetricCell{ModelID: m.ModelID, SiteID: m.SiteID, ParameterID: m.ParameterID, HorizonHours: m.HorizonHours}
	s.metrics[cell] = *m
	return nil
}

func (s *MemoryStore) Metric(ctx context.Context, cell MetricCell) (*AccuracyMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[cell]
	if !ok {
		return nil, ErrNotFound
	}
	out := m
	return &out, nil
}

// --- ExecutionLogStore ---

func (s *MemoryStore) InsertExecutionLog(ctx context.Context, log *ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextExecutionID++
	log.ID = s.nextExecutionID
	s.executions = append(s.executions, *log)
	return nil
}

func (s *MemoryStore) RecentExecutions(ctx context.Context, jobID string, limit int) ([]ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ExecutionLog
	for i := len(s.executions) - 1; i >= 0 && len(out) < limit; i-- {
		if s.executions[i].JobID == jobID {
			out = append(out, s.executions[i])
		}
	}
	return out, nil
}
