// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/windward/pkg/logging"
	"github.com/AleutianAI/windward/services/ingest"
	"github.com/AleutianAI/windward/services/observability"
	"github.com/AleutianAI/windward/services/storage"
)

// BeaconSource pairs an observation collector with the site fields that
// address its network's beacons.
type BeaconSource struct {
	Collector *ingest.Collector
	Primary   func(storage.Site) *int
	Backup    func(storage.Site) *int
}

// Runner executes the two collection jobs. Sources run concurrently;
// within a source, sites are visited sequentially so the per-source
// rate limiter shapes the whole job.
type Runner struct {
	Store       storage.Store
	Logger      *logging.Logger
	Metrics     *observability.Metrics
	Forecast    []*ingest.Collector
	Observation []BeaconSource

	// Now is injectable for tests. Default: time.Now
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// jobState accumulates one run's outcome across source goroutines.
type jobState struct {
	mu        sync.Mutex
	collected int
	persisted int
	// failures drive the final status.
	failures []string
	// notes are informational (recovered fallbacks); they appear in
	// the execution log but never degrade the status.
	notes []string
}

func (s *jobState) addCounts(collected, persisted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collected += collected
	s.persisted += persisted
}

func (s *jobState) fail(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, fmt.Sprintf(format, args...))
}

func (s *jobState) note(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, fmt.Sprintf(format, args...))
}

// status applies the policy: success when nothing failed, failed when
// nothing was collected and something failed, partial otherwise.
func (s *jobState) status() storage.JobStatus {
	switch {
	case len(s.failures) == 0:
		return storage.StatusSuccess
	case s.collected == 0:
		return storage.StatusFailed
	default:
		return storage.StatusPartial
	}
}

// RunForecastJob collects forecasts from every forecast source for
// every site and stages them. Always returns a complete ExecutionLog;
// the log is also persisted best-effort.
func (r *Runner) RunForecastJob(ctx context.Context) storage.ExecutionLog {
	start := r.now()
	state := &jobState{}

	sites, params, ok := r.loadReference(ctx, state)
	if ok {
		// Most recent synoptic run; model runs are published on the
		// same 6-hour cadence the job fires on.
		forecastRun := start.Truncate(6 * time.Hour)

		g, gctx := errgroup.WithContext(ctx)
		for _, c := range r.Forecast {
			g.Go(func() error {
				r.collectForecastSource(gctx, c, sites, params, forecastRun, state)
				return nil
			})
		}
		g.Wait()
	}

	return r.finish(ctx, storage.JobForecastCollection, start, state)
}

// RunObservationJob scrapes every beacon network for every site and
// stages the observations, falling back to backup beacons when the
// primary yields nothing.
func (r *Runner) RunObservationJob(ctx context.Context) storage.ExecutionLog {
	start := r.now()
	state := &jobState{}

	sites, params, ok := r.loadReference(ctx, state)
	if ok {
		g, gctx := errgroup.WithContext(ctx)
		for _, bs := range r.Observation {
			g.Go(func() error {
				r.collectObservationSource(gctx, bs, sites, params, start, state)
				return nil
			})
		}
		g.Wait()
	}

	return r.finish(ctx, storage.JobObservationCollection, start, state)
}

func (r *Runner) loadReference(ctx context.Context, state *jobState) ([]storage.Site, map[string]int64, bool) {
	sites, err := r.Store.Sites(ctx)
	if err != nil {
		state.fail("load sites: %v", err)
		return nil, nil, false
	}
	parameters, err := r.Store.Parameters(ctx)
	if err != nil {
		state.fail("load parameters: %v", err)
		return nil, nil, false
	}
	params := make(map[string]int64, len(parameters))
	for _, p := range parameters {
		params[p.Name] = p.ID
	}
	return sites, params, true
}

func (r *Runner) collectForecastSource(ctx context.Context, c *ingest.Collector, sites []storage.Site, params map[string]int64, forecastRun time.Time, state *jobState) {
	model, err := r.Store.ModelByName(ctx, c.Name)
	if err != nil {
		state.fail("%s: resolve model: %v", c.Name, err)
		return
	}

	for _, site := range sites {
		fetchStart := time.Now()
		points := c.Forecasts(ctx, ingest.ForecastRequest{
			SiteID:      site.ID,
			ForecastRun: forecastRun,
			Coords:      ingest.Coordinates{Lat: site.Latitude, Lon: site.Longitude},
			ModelID:     model.ID,
			Parameters:  params,
		})
		r.Metrics.CollectorLatency.WithLabelValues(c.Source, "forecast").
			Observe(time.Since(fetchStart).Seconds())
		r.Metrics.PointsCollected.WithLabelValues(c.Source, "forecast").Add(float64(len(points)))
		if len(points) == 0 {
			state.fail("%s: no forecasts for site %s", c.Name, site.Name)
			continue
		}

		batch := make([]storage.Forecast, len(points))
		for i, p := range points {
			batch[i] = storage.Forecast{
				SiteID:      p.SiteID,
				ModelID:     p.ModelID,
				ParameterID: p.ParameterID,
				ForecastRun: p.ForecastRun,
				ValidTime:   p.ValidTime,
				Value:       p.Value,
			}
		}
		res, err := r.Store.UpsertForecasts(ctx, batch)
		if err != nil {
			state.fail("%s: stage forecasts for site %s: %v", c.Name, site.Name, err)
			continue
		}
		r.Metrics.PointsPersisted.WithLabelValues(c.Source, "forecast").Add(float64(res.Inserted))
		state.addCounts(len(points), res.Inserted)
	}
}

func (r *Runner) collectObservationSource(ctx context.Context, bs BeaconSource, sites []storage.Site, params map[string]int64, observationTime time.Time, state *jobState) {
	c := bs.Collector
	for _, site := range sites {
		primary := bs.Primary(site)
		backup := bs.Backup(site)
		if primary == nil && backup == nil {
			continue
		}

		req := ingest.ObservationRequest{
			SiteID:          site.ID,
			ObservationTime: observationTime,
			Parameters:      params,
		}

		fetchStart := time.Now()
		var points []ingest.ObservationPoint
		if primary != nil {
			req.BeaconID = primary
			points = c.Observations(ctx, req)
		}
		// Fallback only when the primary produced nothing; a primary
		// that answered (even with rows staging already has) wins.
		if len(points) == 0 && backup != nil {
			if primary != nil {
				state.note("%s: primary beacon %d for site %s yielded no data, trying backup %d",
					c.Name, *primary, site.Name, *backup)
			}
			req.BeaconID = backup
			points = c.Observations(ctx, req)
		}

		r.Metrics.CollectorLatency.WithLabelValues(c.Source, "observation").
			Observe(time.Since(fetchStart).Seconds())
		r.Metrics.PointsCollected.WithLabelValues(c.Source, "observation").Add(float64(len(points)))
		if len(points) == 0 {
			state.fail("%s: no observations for site %s", c.Name, site.Name)
			continue
		}

		batch := make([]storage.Observation, len(points))
		for i, p := range points {
			src := p.Source
			batch[i] = storage.Observation{
				SiteID:          p.SiteID,
				ParameterID:     p.ParameterID,
				ObservationTime: p.ObservationTime,
				Value:           p.Value,
				Source:          &src,
			}
		}
		res, err := r.Store.UpsertObservations(ctx, batch)
		if err != nil {
			state.fail("%s: stage observations for site %s: %v", c.Name, site.Name, err)
			continue
		}
		r.Metrics.PointsPersisted.WithLabelValues(c.Source, "observation").Add(float64(res.Inserted))
		state.addCounts(len(points), res.Inserted)
	}
}

// finish assembles the ExecutionLog, persists it best-effort, and
// records the run metrics.
func (r *Runner) finish(ctx context.Context, jobID string, start time.Time, state *jobState) storage.ExecutionLog {
	end := r.now()
	status := state.status()

	log := storage.ExecutionLog{
		JobID:            jobID,
		RunID:            uuid.NewString(),
		StartTime:        start,
		EndTime:          end,
		DurationSeconds:  end.Sub(start).Seconds(),
		Status:           status,
		RecordsCollected: state.collected,
		RecordsPersisted: state.persisted,
		Errors:           append(append([]string(nil), state.notes...), state.failures...),
	}

	r.Metrics.JobRuns.WithLabelValues(jobID, string(status)).Inc()
	r.Metrics.JobDuration.WithLabelValues(jobID).Observe(log.DurationSeconds)

	if err := r.Store.InsertExecutionLog(ctx, &log); err != nil {
		r.Logger.Error("failed to persist execution log",
			"job_id", jobID, "run_id", log.RunID, "error", err)
	}

	r.Logger.Info("job run finished",
		"job_id", jobID, "run_id", log.RunID, "status", status,
		"collected", state.collected, "persisted", state.persisted,
		"errors", len(state.failures), "duration_s", log.DurationSeconds)
	return log
}
