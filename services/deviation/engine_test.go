// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the deviation engine.

package deviation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/windward/pkg/logging"
	"github.com/AleutianAI/windward/services/storage"
)

var (
	run   = time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	valid = time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)
)

func seededStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	s := storage.NewMemoryStore()
	s.Seed(nil, nil, []storage.Parameter{
		{ID: 1, Name: storage.ParamWindSpeed, Unit: "km/h"},
		{ID: 2, Name: storage.ParamWindDirection, Unit: "deg"},
		{ID: 3, Name: storage.ParamTemperature, Unit: "°C"},
	})
	return s
}

func insertPair(t *testing.T, s *storage.MemoryStore, parameterID int64, forecast, observed float64) {
	t.Helper()
	insertPairAt(t, s, parameterID, forecast, observed, valid)
}

func insertPairAt(t *testing.T, s *storage.MemoryStore, parameterID int64, forecast, observed float64, at time.Time) {
	t.Helper()
	_, err := s.InsertPairs(context.Background(), []storage.Pair{{
		ForecastID:    int64(len(s.Pairs()) + 1),
		ObservationID: int64(len(s.Pairs()) + 1),
		SiteID:        1, ModelID: 1, ParameterID: parameterID,
		ForecastRun: run, ValidTime: at,
		HorizonHours:  storage.HorizonHours(run, at),
		ForecastValue: forecast, ObservedValue: observed,
	}})
	require.NoError(t, err)
}

func newEngine(s *storage.MemoryStore) *Engine {
	return New(s, s, logging.New(logging.Config{Quiet: true}), Config{})
}

func TestReduceWindow_SignedDeviation(t *testing.T) {
	s := seededStore(t)
	insertPair(t, s, 3, 25.5, 22.3)

	res, err := newEngine(s).ReduceWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Result{PairsProcessed: 1, DeviationsWritten: 1}, res)

	devs := s.Deviations()
	require.Len(t, devs, 1)
	assert.InDelta(t, -3.2, devs[0].Deviation, 1e-9, "observed minus forecast")
	assert.Equal(t, valid, devs[0].Timestamp)
	assert.Equal(t, 12, devs[0].HorizonHours)
}

func TestReduceWindow_CircularWrap(t *testing.T) {
	s := seededStore(t)
	// Forecast 350°, observed 10°: the short way around is +20.
	insertPair(t, s, 2, 350, 10)

	_, err := newEngine(s).ReduceWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)

	devs := s.Deviations()
	require.Len(t, devs, 1)
	assert.Equal(t, 20.0, devs[0].Deviation)
}

func TestReduceWindow_ProcessedPairsAreSkipped(t *testing.T) {
	s := seededStore(t)
	insertPair(t, s, 3, 25.5, 22.3)

	e := newEngine(s)
	res, err := e.ReduceWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeviationsWritten)

	res, err = e.ReduceWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, res.DeviationsWritten, "at-most-once reduction")
	assert.Len(t, s.Deviations(), 1)

	for _, p := range s.Pairs() {
		assert.NotNil(t, p.ProcessedAt)
	}
}

func TestReduceWindow_OutlierFlaggedNotFiltered(t *testing.T) {
	s := seededStore(t)
	insertPair(t, s, 1, 10, 75)                           // |65| > 50 km/h: outlier
	insertPairAt(t, s, 2, 0, 180, valid.Add(time.Minute)) // direction is never an outlier

	res, err := newEngine(s).ReduceWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, res.OutliersFlagged)
	assert.Equal(t, 2, res.DeviationsWritten, "outliers are written, not dropped")
}

func TestReduceWindow_UnknownParameterSkipped(t *testing.T) {
	s := seededStore(t)
	insertPair(t, s, 99, 1, 2)

	res, err := newEngine(s).ReduceWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, res.DeviationsWritten)
}

func TestReduceWindow_OldestFirst(t *testing.T) {
	s := seededStore(t)
	insertPairAt(t, s, 3, 1, 2, valid.Add(2*time.Hour))
	insertPairAt(t, s, 3, 1, 2, valid)

	_, err := newEngine(s).ReduceWindow(context.Background(), 1, run, valid.Add(3*time.Hour))
	require.NoError(t, err)

	devs := s.Deviations()
	require.Len(t, devs, 2)
	assert.True(t, devs[0].Timestamp.Equal(valid), "oldest pair reduced first")
}

func TestNormalizeCircular(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{20, 20},
		{-340, 20},
		{380, 20},
		{181, -179},
		{-180, 180},
		{180, 180},
		{-181, 179},
		{0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeCircular(tc.in), "in=%v", tc.in)
	}

	// Invariant under full turns.
	for _, d := range []float64{-500, -90, 0, 45, 200, 720} {
		n := NormalizeCircular(d)
		assert.Equal(t, n, NormalizeCircular(d+360))
		assert.Equal(t, n, NormalizeCircular(d-720))
	}
}
