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
	"net/url"
	"os"
	"time"

	"github.com/AleutianAI/windward/pkg/httpx"
)

// AromeConfig configures the gridded-model forecast collector.
type AromeConfig struct {
	// BaseURL is the model export endpoint serving GRIB2 files.
	BaseURL string

	// Token is the API bearer token.
	Token string

	// Timeout bounds one download. Gridded payloads are large, so the
	// default is generous. Default: 60s
	Timeout time.Duration

	// RateInterval is the minimum spacing between downloads. The
	// upstream quota is 50 requests per minute. Default: 1.2s
	RateInterval time.Duration
}

// NewAromeCollector builds the forecast collector for the AROME
// gridded model. It is forecast-only; the observation capability is
// absent.
func NewAromeCollector(cfg AromeConfig, deps *Deps) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = 1200 * time.Millisecond
	}

	c := &Collector{
		Name:         "arome",
		Source:       "arome",
		Timeout:      cfg.Timeout,
		RateInterval: cfg.RateInterval,
		ValidationRanges: map[string]Range{
			ParamWindSpeed:     {Min: 0, Max: 200},
			ParamWindDirection: {Min: 0, Max: 360},
			ParamTemperature:   {Min: -60, Max: 60},
		},
	}
	a := &aromeCollector{cfg: cfg, deps: deps, collector: c}
	c.CollectForecast = a.collect
	return c
}

type aromeCollector struct {
	cfg       AromeConfig
	deps      *Deps
	collector *Collector
}

func (a *aromeCollector) collect(ctx context.Context, req ForecastRequest) []ForecastPoint {
	var fields []gribField
	err := guardedFetch(ctx, a.deps, a.collector, "forecast", func(ctx context.Context) error {
		var fetchErr error
		fields, fetchErr = a.fetchRun(ctx, req.ForecastRun)
		return fetchErr
	})
	if err != nil {
		logFetchError(a.deps.Logger, a.collector.Name, "forecast", err)
		return nil
	}
	return a.extract(fields, req)
}

// fetchRun downloads the GRIB2 file for one model run. The payload is
// staged through a temp file so a partial download never reaches the
// parser; the file is removed on every exit path.
func (a *aromeCollector) fetchRun(ctx context.Context, run time.Time) ([]gribField, error) {
	client := httpx.NewClient(a.cfg.Timeout)
	defer client.Close()

	endpoint, err := a.runURL(run)
	if err != nil {
		return nil, err
	}

	// A missing token is tolerated: the request goes out unauthenticated
	// and the upstream rejection surfaces as a clean HTTPError.
	headers := map[string]string{}
	if a.cfg.Token != "" {
		headers["Authorization"] = "Bearer " + a.cfg.Token
	}
	payload, err := client.GetBytes(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "arome-*.grib2")
	if err != nil {
		return nil, fmt.Errorf("stage grib payload: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(payload); err != nil {
		return nil, fmt.Errorf("stage grib payload: %w", err)
	}
	staged, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("read staged payload: %w", err)
	}

	fields, skipped, err := parseGRIB2(staged)
	if err != nil {
		return nil, err
	}
	for _, msgErr := range skipped {
		a.deps.Logger.Warn("skipping undecodable grib message",
			"collector", a.collector.Name, "run", run.UTC(), "error", msgErr)
	}
	return fields, nil
}

func (a *aromeCollector) runURL(run time.Time) (string, error) {
	u, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("referencetime", run.UTC().Format(time.RFC3339))
	q.Set("time", "00H24H")
	q.Set("package", "SP1")
	q.Set("format", "grib2")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// extract interpolates every decoded field at the site coordinates and
// derives the pipeline parameters. Wind speed and direction both need
// the (u, v) pair at the same valid time; temperature stands alone.
func (a *aromeCollector) extract(fields []gribField, req ForecastRequest) []ForecastPoint {
	type uv struct {
		u, v float64
		hasU bool
		hasV bool
	}
	winds := make(map[time.Time]*uv)
	var points []ForecastPoint

	emit := func(param string, validTime time.Time, value float64) {
		id, wanted := req.Parameters[param]
		if !wanted {
			return
		}
		if !a.collector.inRange(param, value) {
			a.deps.Logger.Warn("dropping implausible forecast value",
				"collector", a.collector.Name, "parameter", param,
				"value", value, "valid_time", validTime)
			return
		}
		points = append(points, ForecastPoint{
			SiteID:      req.SiteID,
			ModelID:     req.ModelID,
			ParameterID: id,
			ForecastRun: req.ForecastRun,
			ValidTime:   validTime,
			Value:       value,
		})
	}

	for i := range fields {
		f := &fields[i]
		value, err := f.valueAt(req.Coords.Lat, req.Coords.Lon)
		if err != nil {
			a.deps.Logger.Warn("site outside model grid",
				"collector", a.collector.Name, "site_id", req.SiteID, "error", err)
			continue
		}
		vt := f.ValidTime.UTC()
		switch f.paramName() {
		case "wind_u":
			w := winds[vt]
			if w == nil {
				w = &uv{}
				winds[vt] = w
			}
			w.u, w.hasU = value, true
		case "wind_v":
			w := winds[vt]
			if w == nil {
				w = &uv{}
				winds[vt] = w
			}
			w.v, w.hasV = value, true
		case "temperature":
			emit(ParamTemperature, vt, KelvinToCelsius(value))
		}
	}

	for vt, w := range winds {
		if !w.hasU || !w.hasV {
			a.deps.Logger.Warn("incomplete wind components, skipping valid time",
				"collector", a.collector.Name, "valid_time", vt)
			continue
		}
		emit(ParamWindSpeed, vt, WindSpeedKmh(w.u, w.v))
		emit(ParamWindDirection, vt, WindDirectionDeg(w.u, w.v))
	}
	return points
}
