// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the JSON sounding forecast collector.

package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func soundingRequest(run time.Time) ForecastRequest {
	return ForecastRequest{
		SiteID:      1,
		ModelID:     2,
		ForecastRun: run,
		Coords:      Coordinates{Lat: 45.9, Lon: 6.87},
		Parameters:  testParameters(),
	}
}

func TestSoundingCollector_ExtractsSurfaceValues(t *testing.T) {
	run := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)

	var gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		// Surface is index 0; upper levels must be ignored.
		w.Write([]byte(`{
			"status": "ok",
			"data": {
				"12:00": {"u": [3, 30], "v": [4, 40], "temperature": [288.15, 250]}
			}
		}`))
	}))
	defer server.Close()

	c := NewSoundingCollector(SoundingConfig{BaseURL: server.URL}, testDeps())
	points := c.Forecasts(context.Background(), soundingRequest(run))
	require.Len(t, points, 3)

	byParam := map[int64]ForecastPoint{}
	for _, p := range points {
		byParam[p.ParameterID] = p
	}
	assert.Equal(t, 18.0, byParam[1].Value, "wind speed from surface u/v")
	assert.Equal(t, 217.0, byParam[2].Value, "wind direction from surface u/v")
	assert.Equal(t, 15.0, byParam[3].Value, "surface temperature in celsius")

	valid := time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)
	for _, p := range points {
		assert.Equal(t, valid, p.ValidTime)
		assert.Equal(t, run, p.ForecastRun)
	}

	q := gotQuery.Load().(url.Values)
	assert.Equal(t, "2026011100", q.Get("run"))
	assert.Equal(t, "20260111", q.Get("date"))
	assert.Equal(t, "sounding", q.Get("plot"))
	assert.Equal(t, "45.9000,6.8700", q.Get("location"))
}

func TestSoundingCollector_StatusGate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "error", "data": {}}`))
	}))
	defer server.Close()

	c := NewSoundingCollector(SoundingConfig{BaseURL: server.URL}, testDeps())
	run := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, c.Forecasts(context.Background(), soundingRequest(run)))
}

func TestSoundingCollector_MissingCoordinatesIsNoop(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	c := NewSoundingCollector(SoundingConfig{BaseURL: server.URL}, testDeps())
	req := soundingRequest(time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC))
	req.Coords = Coordinates{}

	assert.Empty(t, c.Forecasts(context.Background(), req))
	assert.Zero(t, hits.Load(), "no request without coordinates")
}

func TestSoundingCollector_UpstreamFailureIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewSoundingCollector(SoundingConfig{BaseURL: server.URL}, testDeps())
	run := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, c.Forecasts(context.Background(), soundingRequest(run)))
}

func TestSoundingCollector_MalformedHourDropped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"status": "ok",
			"data": {
				"noon": {"u": [1], "v": [1], "temperature": [280]},
				"06:00": {"u": [1], "v": [1], "temperature": [280]}
			}
		}`))
	}))
	defer server.Close()

	c := NewSoundingCollector(SoundingConfig{BaseURL: server.URL}, testDeps())
	run := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	points := c.Forecasts(context.Background(), soundingRequest(run))

	require.Len(t, points, 3, "only the parseable hour contributes")
	for _, p := range points {
		assert.Equal(t, 6, p.ValidTime.Hour())
	}
}
