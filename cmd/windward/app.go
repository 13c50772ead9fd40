// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/windward/pkg/httpx"
	"github.com/AleutianAI/windward/pkg/logging"
	"github.com/AleutianAI/windward/services/accuracy"
	"github.com/AleutianAI/windward/services/deviation"
	"github.com/AleutianAI/windward/services/ingest"
	"github.com/AleutianAI/windward/services/match"
	"github.com/AleutianAI/windward/services/observability"
	"github.com/AleutianAI/windward/services/scheduler"
	"github.com/AleutianAI/windward/services/storage"
)

// app holds the wired pipeline for one process: stores, collectors,
// the job runner, and the three engines. Every command builds one and
// closes it on exit.
type app struct {
	cfg    Config
	logger *logging.Logger

	metrics *observability.Metrics
	deps    *ingest.Deps

	store  storage.Store
	series storage.DeviationStore

	runner     *scheduler.Runner
	sched      *scheduler.Scheduler
	matcher    *match.Matcher
	deviations *deviation.Engine
	accuracy   *accuracy.Engine

	closers []func()
}

// newApp wires the pipeline. With memory=true both store contracts are
// served by the in-memory implementation; otherwise PostgreSQL and
// InfluxDB back them.
func newApp(ctx context.Context, cfg Config, memory bool) (*app, error) {
	a := &app{
		cfg: cfg,
		logger: logging.New(logging.Config{
			Level:   logging.ParseLevel(cfg.LogLevel),
			LogDir:  cfg.LogDir,
			Service: "windward",
			JSON:    cfg.LogJSON,
		}),
	}
	a.closers = append(a.closers, func() { a.logger.Close() })

	a.metrics = observability.New(prometheus.DefaultRegisterer)
	a.deps = &ingest.Deps{
		Logger:   a.logger,
		Limiters: httpx.NewLimiterRegistry(),
		Breakers: httpx.NewBreakerRegistry(httpx.DefaultBreakerConfig()),
	}

	if err := a.initStores(ctx, memory); err != nil {
		a.Close()
		return nil, err
	}

	a.runner = &scheduler.Runner{
		Store:       a.store,
		Logger:      a.logger,
		Metrics:     a.metrics,
		Forecast:    a.forecastCollectors(),
		Observation: a.observationSources(),
	}

	a.matcher = match.New(a.store, a.logger, match.Config{
		Tolerance: time.Duration(cfg.MatchToleranceMinutes) * time.Minute,
	})
	a.deviations = deviation.New(a.store, a.series, a.logger, deviation.Config{})
	a.accuracy = accuracy.New(a.series, a.store, a.logger, accuracy.Config{})

	a.sched = scheduler.New(ctx, a.logger)
	return a, nil
}

func (a *app) initStores(ctx context.Context, memory bool) error {
	if memory {
		m := storage.NewMemoryStore()
		a.store = m
		a.series = m
		a.logger.Warn("using in-memory storage, data is lost on exit")
		return nil
	}
	if err := a.cfg.requireStores(); err != nil {
		return err
	}

	pg, err := storage.NewPostgresStore(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.store = pg
	a.closers = append(a.closers, func() { pg.Close() })

	client := influxdb2.NewClient(a.cfg.InfluxURL, a.cfg.InfluxToken)
	a.series = storage.NewInfluxDeviationStore(client, a.cfg.InfluxOrg, a.cfg.InfluxBucket)
	a.closers = append(a.closers, client.Close)
	return nil
}

// forecastCollectors builds the forecast-side collectors. A source
// with an empty base URL is left out.
func (a *app) forecastCollectors() []*ingest.Collector {
	var out []*ingest.Collector
	if a.cfg.AromeBaseURL != "" {
		out = append(out, ingest.NewAromeCollector(ingest.AromeConfig{
			BaseURL:      a.cfg.AromeBaseURL,
			Token:        a.cfg.APIToken,
			RateInterval: time.Duration(a.cfg.AromeRateMS) * time.Millisecond,
		}, a.deps))
	}
	if a.cfg.SoundingBaseURL != "" {
		out = append(out, ingest.NewSoundingCollector(ingest.SoundingConfig{
			BaseURL:      a.cfg.SoundingBaseURL,
			Origin:       a.cfg.SoundingOrigin,
			Referer:      a.cfg.SoundingReferer,
			AuthHeader:   a.cfg.SoundingAuth,
			RateInterval: time.Duration(a.cfg.SoundingRateMS) * time.Millisecond,
		}, a.deps))
	}
	return out
}

// observationSources builds the beacon-network collectors with their
// site addressing.
func (a *app) observationSources() []scheduler.BeaconSource {
	rate := time.Duration(a.cfg.BeaconRateMS) * time.Millisecond

	var out []scheduler.BeaconSource
	if a.cfg.FFVLBaseURL != "" {
		out = append(out, scheduler.BeaconSource{
			Collector: ingest.NewFFVLCollector(ingest.FFVLConfig{
				BaseURL:      a.cfg.FFVLBaseURL,
				RateInterval: rate,
			}, a.deps),
			Primary: func(s storage.Site) *int { return s.FFVLBeaconID },
			Backup:  func(s storage.Site) *int { return s.FFVLBackupBeaconID },
		})
	}
	if a.cfg.RommaBaseURL != "" {
		out = append(out, scheduler.BeaconSource{
			Collector: ingest.NewRommaCollector(ingest.RommaConfig{
				BaseURL:      a.cfg.RommaBaseURL,
				RateInterval: rate,
			}, a.deps),
			Primary: func(s storage.Site) *int { return s.RommaBeaconID },
			Backup:  func(s storage.Site) *int { return s.RommaBackupBeaconID },
		})
	}
	return out
}

// registerJobs puts the two collection jobs on the schedule.
func (a *app) registerJobs() error {
	if err := a.sched.Register(storage.JobForecastCollection, a.cfg.ForecastHours,
		a.tracedJob(storage.JobForecastCollection, a.runner.RunForecastJob)); err != nil {
		return err
	}
	return a.sched.Register(storage.JobObservationCollection, a.cfg.ObservationHours,
		a.tracedJob(storage.JobObservationCollection, a.runner.RunObservationJob))
}

// tracedJob wraps a job body in a span and refreshes the breaker
// gauges once the run is over.
func (a *app) tracedJob(jobID string, run func(context.Context) storage.ExecutionLog) scheduler.JobFunc {
	tracer := otel.Tracer("windward/scheduler")
	return func(ctx context.Context) {
		ctx, span := tracer.Start(ctx, jobID,
			trace.WithSpanKind(trace.SpanKindInternal))
		defer span.End()

		log := run(ctx)
		span.SetAttributes(
			attribute.String("job.run_id", log.RunID),
			attribute.String("job.status", string(log.Status)),
			attribute.Int("job.records_collected", log.RecordsCollected),
			attribute.Int("job.records_persisted", log.RecordsPersisted),
		)
		a.metrics.ObserveBreakers(a.deps.Breakers.Statuses())
	}
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	if a.sched != nil {
		a.sched.Shutdown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
