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
	"time"

	"github.com/AleutianAI/windward/pkg/httpx"
)

// SoundingConfig configures the JSON sounding forecast collector.
type SoundingConfig struct {
	// BaseURL is the sounding endpoint.
	BaseURL string

	// Origin and Referer are required by the upstream or it serves an
	// error page.
	Origin  string
	Referer string

	// AuthHeader is the value of the x-auth header, when required.
	AuthHeader string

	// UserAgent identifies the caller to the upstream.
	UserAgent string

	// Timeout bounds one request. Default: 30s
	Timeout time.Duration

	// RateInterval is the minimum spacing between requests.
	// Default: 2s
	RateInterval time.Duration
}

// soundingResponse is the upstream document: a status gate plus hourly
// profiles keyed by "HH:MM". Each profile is a set of vertical levels;
// index 0 is the surface.
type soundingResponse struct {
	Status string                  `json:"status"`
	Data   map[string]soundingHour `json:"data"`
}

type soundingHour struct {
	U           []float64 `json:"u"`
	V           []float64 `json:"v"`
	Temperature []float64 `json:"temperature"`
}

// NewSoundingCollector builds the forecast collector for the sounding
// model export. Forecast-only.
func NewSoundingCollector(cfg SoundingConfig, deps *Deps) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = 2 * time.Second
	}

	c := &Collector{
		Name:         "meteociel",
		Source:       "meteociel",
		Timeout:      cfg.Timeout,
		RateInterval: cfg.RateInterval,
		ValidationRanges: map[string]Range{
			ParamWindSpeed:     {Min: 0, Max: 200},
			ParamWindDirection: {Min: 0, Max: 360},
			ParamTemperature:   {Min: -60, Max: 60},
		},
	}
	s := &soundingCollector{cfg: cfg, deps: deps, collector: c}
	c.CollectForecast = s.collect
	return c
}

type soundingCollector struct {
	cfg       SoundingConfig
	deps      *Deps
	collector *Collector
}

func (s *soundingCollector) collect(ctx context.Context, req ForecastRequest) []ForecastPoint {
	// The endpoint is coordinate-addressed; without both coordinates
	// there is nothing meaningful to request.
	if req.Coords.Lat == 0 && req.Coords.Lon == 0 {
		s.deps.Logger.Warn("site has no coordinates, skipping sounding collection",
			"collector", s.collector.Name, "site_id", req.SiteID)
		return nil
	}

	var doc soundingResponse
	err := guardedFetch(ctx, s.deps, s.collector, "forecast", func(ctx context.Context) error {
		return s.fetch(ctx, req, &doc)
	})
	if err != nil {
		logFetchError(s.deps.Logger, s.collector.Name, "forecast", err)
		return nil
	}

	if doc.Status != "ok" {
		s.deps.Logger.Warn("sounding response not ok",
			"collector", s.collector.Name, "status", doc.Status, "site_id", req.SiteID)
		return nil
	}
	return s.extract(&doc, req)
}

func (s *soundingCollector) fetch(ctx context.Context, req ForecastRequest, doc *soundingResponse) error {
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	run := req.ForecastRun.UTC()
	q := u.Query()
	q.Set("run", run.Format("2006010215"))
	q.Set("location", fmt.Sprintf("%.4f,%.4f", req.Coords.Lat, req.Coords.Lon))
	q.Set("date", run.Format("20060102"))
	q.Set("plot", "sounding")
	u.RawQuery = q.Encode()

	headers := map[string]string{
		"Origin":     s.cfg.Origin,
		"Referer":    s.cfg.Referer,
		"User-Agent": s.cfg.UserAgent,
	}
	if s.cfg.AuthHeader != "" {
		headers["x-auth"] = s.cfg.AuthHeader
	}

	client := httpx.NewClient(s.cfg.Timeout)
	defer client.Close()
	return client.GetJSON(ctx, u.String(), headers, doc)
}

// extract derives one point set per hour of the target date from the
// surface level of each profile. Malformed hours are dropped one at a
// time.
func (s *soundingCollector) extract(doc *soundingResponse, req ForecastRequest) []ForecastPoint {
	run := req.ForecastRun.UTC()
	var points []ForecastPoint

	emit := func(param string, validTime time.Time, value float64) {
		id, wanted := req.Parameters[param]
		if !wanted {
			return
		}
		if !s.collector.inRange(param, value) {
			s.deps.Logger.Warn("dropping implausible forecast value",
				"collector", s.collector.Name, "parameter", param,
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

	for hour, profile := range doc.Data {
		clock, err := time.Parse("15:04", hour)
		if err != nil {
			s.deps.Logger.Warn("unparseable sounding hour key",
				"collector", s.collector.Name, "hour", hour)
			continue
		}
		validTime := time.Date(run.Year(), run.Month(), run.Day(),
			clock.Hour(), clock.Minute(), 0, 0, time.UTC)

		if len(profile.U) > 0 && len(profile.V) > 0 {
			u, v := profile.U[0], profile.V[0]
			emit(ParamWindSpeed, validTime, WindSpeedKmh(u, v))
			emit(ParamWindDirection, validTime, WindDirectionDeg(u, v))
		} else {
			s.deps.Logger.Warn("sounding hour missing wind profile",
				"collector", s.collector.Name, "hour", hour)
		}
		if len(profile.Temperature) > 0 {
			emit(ParamTemperature, validTime, KelvinToCelsius(profile.Temperature[0]))
		}
	}
	return points
}
