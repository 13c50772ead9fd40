// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the pipeline's Prometheus instrumentation.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/windward/pkg/httpx"
)

// Metrics is the process-wide instrument set. Create one per process
// and share it; all instruments are safe for concurrent use.
type Metrics struct {
	// PointsCollected counts points returned by collectors, by source
	// and kind (forecast/observation).
	PointsCollected *prometheus.CounterVec

	// PointsPersisted counts points actually inserted by staging
	// upserts; the gap to PointsCollected is duplicate pressure.
	PointsPersisted *prometheus.CounterVec

	// JobRuns counts job executions by job id and final status.
	JobRuns *prometheus.CounterVec

	// JobDuration observes wall-clock job duration in seconds.
	JobDuration *prometheus.HistogramVec

	// CollectorLatency observes one collector call per site, by source
	// and kind. Includes rate-limiter wait and retries.
	CollectorLatency *prometheus.HistogramVec

	// UnmatchedForecasts counts forecasts the matcher could not pair.
	UnmatchedForecasts prometheus.Counter

	// OutlierDeviations counts deviations past their outlier threshold.
	OutlierDeviations prometheus.Counter

	// BreakerState exports each circuit breaker's state as a gauge:
	// 0 closed, 1 half-open, 2 open.
	BreakerState *prometheus.GaugeVec
}

// New registers the instrument set on reg. Pass
// prometheus.DefaultRegisterer outside of tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PointsCollected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windward",
			Name:      "points_collected_total",
			Help:      "Points returned by collectors.",
		}, []string{"source", "kind"}),
		PointsPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windward",
			Name:      "points_persisted_total",
			Help:      "Points inserted by staging upserts.",
		}, []string{"source", "kind"}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windward",
			Name:      "job_runs_total",
			Help:      "Job executions by final status.",
		}, []string{"job_id", "status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "windward",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock job duration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job_id"}),
		CollectorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "windward",
			Name:      "collector_latency_seconds",
			Help:      "One collector call per site, rate-limit wait included.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source", "kind"}),
		UnmatchedForecasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "windward",
			Name:      "unmatched_forecasts_total",
			Help:      "Forecasts with no observation within tolerance.",
		}),
		OutlierDeviations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "windward",
			Name:      "outlier_deviations_total",
			Help:      "Deviations flagged past their outlier threshold.",
		}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "windward",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"breaker"}),
	}
}

// ObserveBreakers refreshes the breaker state gauges from a registry
// snapshot. Called from the admin surface and after each job run.
func (m *Metrics) ObserveBreakers(statuses []httpx.BreakerStatus) {
	for _, s := range statuses {
		var v float64
		switch s.State {
		case httpx.CircuitHalfOpen:
			v = 1
		case httpx.CircuitOpen:
			v = 2
		}
		m.BreakerState.WithLabelValues(s.Name).Set(v)
	}
}
