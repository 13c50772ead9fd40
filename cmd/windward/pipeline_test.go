// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// End-to-end pipeline scenario on the in-memory store.

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/windward/pkg/logging"
	"github.com/AleutianAI/windward/services/accuracy"
	"github.com/AleutianAI/windward/services/deviation"
	"github.com/AleutianAI/windward/services/match"
	"github.com/AleutianAI/windward/services/storage"
)

// TestPipelineEndToEnd walks one temperature sample through the whole
// pipeline: staged forecast and observation, matched pair, reduced
// deviation, accuracy cell.
func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	logger := logging.New(logging.Config{Quiet: true})

	m := storage.NewMemoryStore()
	m.Seed(
		[]storage.Site{{ID: 1, Name: "planfait", Latitude: 45.9, Longitude: 6.13}},
		[]storage.Model{{ID: 1, Name: "arome"}},
		[]storage.Parameter{{ID: 3, Name: storage.ParamTemperature}},
	)

	run := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	valid := run.Add(12 * time.Hour)
	source := "ffvl"

	_, err := m.UpsertForecasts(ctx, []storage.Forecast{{
		SiteID: 1, ModelID: 1, ParameterID: 3,
		ForecastRun: run, ValidTime: valid, Value: 25.5,
	}})
	require.NoError(t, err)
	_, err = m.UpsertObservations(ctx, []storage.Observation{{
		SiteID: 1, ParameterID: 3,
		ObservationTime: valid.Add(10 * time.Minute), Value: 22.3, Source: &source,
	}})
	require.NoError(t, err)

	// Match.
	matcher := match.New(m, logger, match.Config{})
	mres, err := matcher.MatchWindow(ctx, 1, run, run.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, mres.PairsInserted)

	pairs := m.Pairs()
	require.Len(t, pairs, 1)
	assert.Equal(t, 12, pairs[0].HorizonHours)
	assert.Equal(t, 10, pairs[0].TimeDiffMinutes)

	// Reduce.
	engine := deviation.New(m, m, logger, deviation.Config{})
	dres, err := engine.ReduceWindow(ctx, 1, run, run.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, dres.DeviationsWritten)

	devs := m.Deviations()
	require.Len(t, devs, 1)
	assert.InDelta(t, -3.2, devs[0].Deviation, 1e-9)
	assert.Equal(t, 12, devs[0].HorizonHours)

	// A second reduction pass finds nothing; the pair is stamped.
	dres, err = engine.ReduceWindow(ctx, 1, run, run.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, dres.PairsProcessed)

	// Metrics.
	acc := accuracy.New(m, m, logger, accuracy.Config{})
	cell := storage.MetricCell{ModelID: 1, SiteID: 1, ParameterID: 3, HorizonHours: 12}
	metric, err := acc.ComputeCell(ctx, cell)
	require.NoError(t, err)

	assert.InDelta(t, 3.2, metric.MAE, 1e-9)
	assert.InDelta(t, -3.2, metric.Bias, 1e-9)
	assert.Equal(t, 1, metric.SampleSize)
	assert.Equal(t, storage.ConfidenceInsufficient, metric.ConfidenceLevel)
	assert.Equal(t, metric.CILower, metric.CIUpper, "interval collapses on one sample")

	stored, err := m.Metric(ctx, cell)
	require.NoError(t, err)
	assert.Equal(t, metric.MAE, stored.MAE)
}
