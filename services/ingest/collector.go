// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ingest implements the collectors: one per upstream source,
// all exposing the same two-operation contract. A source that does not
// provide a kind carries a nil function and yields no points.
//
// Collectors are total over their inputs: any failure becomes an empty
// sequence plus a log line. Nothing in this package panics or returns
// an error to the scheduler; the execution log and the circuit breaker
// carry the failure signal instead.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/windward/pkg/httpx"
	"github.com/AleutianAI/windward/pkg/logging"
)

// Parameter names used across collectors. They must match the
// reference-table parameter names the scheduler resolves to ids.
const (
	ParamWindSpeed     = "wind_speed"
	ParamWindDirection = "wind_direction"
	ParamTemperature   = "temperature"
)

// ForecastPoint is one collected forecast value, ready for staging.
type ForecastPoint struct {
	SiteID      int64
	ModelID     int64
	ParameterID int64
	ForecastRun time.Time
	ValidTime   time.Time
	Value       float64
}

// ObservationPoint is one collected observation value.
type ObservationPoint struct {
	SiteID          int64
	ParameterID     int64
	ObservationTime time.Time
	Value           float64
	Source          string
}

// Coordinates is a (lat, lon) pair in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// ForecastRequest carries the arguments of a collect-forecast call.
// Parameters maps parameter name to its surrogate id; collectors only
// emit points for parameters present in the map.
type ForecastRequest struct {
	SiteID      int64
	ForecastRun time.Time
	Coords      Coordinates
	ModelID     int64
	Parameters  map[string]int64
}

// ObservationRequest carries the arguments of a collect-observation
// call. BeaconID is nil when the site has no station on this network.
type ObservationRequest struct {
	SiteID          int64
	ObservationTime time.Time
	BeaconID        *int
	Parameters      map[string]int64
}

// Range is an inclusive (min, max) plausibility bound per parameter.
type Range struct {
	Min float64
	Max float64
}

// Collector is the capability set for one upstream source. Concrete
// collectors fill the metadata and whichever collect functions the
// source supports.
type Collector struct {
	// Name identifies the collector in logs and metrics.
	Name string

	// Source is the tag written into observation rows and used to key
	// the rate limiter and circuit breakers.
	Source string

	// Timeout is the wall-clock bound on each HTTP call.
	Timeout time.Duration

	// RateInterval is the minimum inter-request interval for this
	// source.
	RateInterval time.Duration

	// ValidationRanges bounds plausible values per parameter name.
	// Points outside their range are dropped with a warning.
	ValidationRanges map[string]Range

	// CollectForecast is nil for observation-only sources.
	CollectForecast func(ctx context.Context, req ForecastRequest) []ForecastPoint

	// CollectObservation is nil for forecast-only sources.
	CollectObservation func(ctx context.Context, req ObservationRequest) []ObservationPoint
}

// Forecasts invokes the forecast capability, or returns nil for
// observation-only sources.
func (c *Collector) Forecasts(ctx context.Context, req ForecastRequest) []ForecastPoint {
	if c.CollectForecast == nil {
		return nil
	}
	return c.CollectForecast(ctx, req)
}

// Observations invokes the observation capability, or returns nil for
// forecast-only sources.
func (c *Collector) Observations(ctx context.Context, req ObservationRequest) []ObservationPoint {
	if c.CollectObservation == nil {
		return nil
	}
	return c.CollectObservation(ctx, req)
}

// Deps are the shared ingestion resources. Limiters and breakers are
// process-wide per source so overlapping jobs cannot defeat the
// per-source rate-limit invariant.
type Deps struct {
	Logger   *logging.Logger
	Limiters *httpx.LimiterRegistry
	Breakers *httpx.BreakerRegistry

	// Retry overrides the default retry policy; zero value means
	// httpx.DefaultRetryConfig.
	Retry httpx.RetryConfig
}

func (d *Deps) retryConfig() httpx.RetryConfig {
	if d.Retry.Attempts == 0 {
		return httpx.DefaultRetryConfig()
	}
	return d.Retry
}

// guardedFetch runs fetch behind the source's rate limiter, circuit
// breaker, and the retry wrapper. The circuit-open fast path is
// reported as a plain error; callers treat every error as "no points".
func guardedFetch(ctx context.Context, deps *Deps, c *Collector, kind string, fetch func(ctx context.Context) error) error {
	limiter := deps.Limiters.Get(c.Source, c.RateInterval)
	breaker := deps.Breakers.Get(c.Source, kind)

	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	return breaker.Do(func() error {
		return httpx.Retry(ctx, deps.retryConfig(), fetch)
	})
}

// inRange checks a value against the collector's validation ranges.
// Parameters without a declared range pass through.
func (c *Collector) inRange(param string, value float64) bool {
	r, ok := c.ValidationRanges[param]
	if !ok {
		return true
	}
	return value >= r.Min && value <= r.Max
}

// logFetchError picks the log level: an open breaker is expected noise
// while the source recovers, everything else is a real error.
func logFetchError(logger *logging.Logger, collector, kind string, err error) {
	if errors.Is(err, httpx.ErrCircuitOpen) {
		logger.Warn("circuit open, skipping collection", "collector", collector, "kind", kind)
		return
	}
	logger.Error("collection failed", "collector", collector, "kind", kind, "error", err)
}
