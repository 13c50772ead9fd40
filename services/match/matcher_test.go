// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the matching engine.

package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/windward/pkg/logging"
	"github.com/AleutianAI/windward/pkg/validation"
	"github.com/AleutianAI/windward/services/storage"
)

var (
	run   = time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	valid = time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)
)

func newMatcher(store Store) *Matcher {
	return New(store, logging.New(logging.Config{Quiet: true}), Config{})
}

func stage(t *testing.T, s *storage.MemoryStore, forecasts []storage.Forecast, observations []storage.Observation) {
	t.Helper()
	if len(forecasts) > 0 {
		_, err := s.UpsertForecasts(context.Background(), forecasts)
		require.NoError(t, err)
	}
	if len(observations) > 0 {
		_, err := s.UpsertObservations(context.Background(), observations)
		require.NoError(t, err)
	}
}

func TestMatchWindow_BasicPair(t *testing.T) {
	s := storage.NewMemoryStore()
	stage(t, s,
		[]storage.Forecast{{SiteID: 1, ModelID: 1, ParameterID: 1,
			ForecastRun: run, ValidTime: valid, Value: 25.5}},
		[]storage.Observation{{SiteID: 1, ParameterID: 1,
			ObservationTime: valid.Add(10 * time.Minute), Value: 22.3}},
	)

	res, err := newMatcher(s).MatchWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Result{ForecastsExamined: 1, Matched: 1, PairsInserted: 1}, res)

	pairs := s.Pairs()
	require.Len(t, pairs, 1)
	p := pairs[0]
	assert.Equal(t, 12, p.HorizonHours)
	assert.Equal(t, 10, p.TimeDiffMinutes)
	assert.Equal(t, 25.5, p.ForecastValue)
	assert.Equal(t, 22.3, p.ObservedValue)
	assert.Nil(t, p.ProcessedAt)
}

func TestMatchWindow_ToleranceBoundary(t *testing.T) {
	s := storage.NewMemoryStore()
	stage(t, s,
		[]storage.Forecast{
			{SiteID: 1, ModelID: 1, ParameterID: 1, ForecastRun: run, ValidTime: valid},
			{SiteID: 1, ModelID: 1, ParameterID: 2, ForecastRun: run, ValidTime: valid},
		},
		[]storage.Observation{
			// Exactly at tolerance: matches.
			{SiteID: 1, ParameterID: 1, ObservationTime: valid.Add(30 * time.Minute)},
			// One second past: does not.
			{SiteID: 1, ParameterID: 2, ObservationTime: valid.Add(30*time.Minute + time.Second)},
		},
	)

	res, err := newMatcher(s).MatchWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Unmatched)
}

func TestMatchWindow_ClosestWinsAndTieBreak(t *testing.T) {
	s := storage.NewMemoryStore()
	stage(t, s,
		[]storage.Forecast{{ID: 0, SiteID: 1, ModelID: 1, ParameterID: 1,
			ForecastRun: run, ValidTime: valid}},
		[]storage.Observation{
			{SiteID: 1, ParameterID: 1, ObservationTime: valid.Add(-20 * time.Minute), Value: 1},
			{SiteID: 1, ParameterID: 1, ObservationTime: valid.Add(-5 * time.Minute), Value: 2},
			{SiteID: 1, ParameterID: 1, ObservationTime: valid.Add(5 * time.Minute), Value: 3},
		},
	)

	_, err := newMatcher(s).MatchWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)

	pairs := s.Pairs()
	require.Len(t, pairs, 1)
	// -5min and +5min tie on |Δt|; the earlier observation wins.
	assert.Equal(t, 2.0, pairs[0].ObservedValue)
}

func TestMatchWindow_ParameterBucketsDoNotCross(t *testing.T) {
	s := storage.NewMemoryStore()
	stage(t, s,
		[]storage.Forecast{{SiteID: 1, ModelID: 1, ParameterID: 1,
			ForecastRun: run, ValidTime: valid}},
		[]storage.Observation{{SiteID: 1, ParameterID: 2,
			ObservationTime: valid, Value: 9}},
	)

	res, err := newMatcher(s).MatchWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unmatched, "an observation of another parameter never matches")
	assert.Empty(t, s.Pairs())
}

func TestMatchWindow_Idempotent(t *testing.T) {
	s := storage.NewMemoryStore()
	stage(t, s,
		[]storage.Forecast{{SiteID: 1, ModelID: 1, ParameterID: 1,
			ForecastRun: run, ValidTime: valid}},
		[]storage.Observation{{SiteID: 1, ParameterID: 1, ObservationTime: valid}},
	)

	m := newMatcher(s)
	res, err := m.MatchWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, res.PairsInserted)

	res, err = m.MatchWindow(context.Background(), 1, run, valid.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, res.AlreadyPaired)
	assert.Zero(t, res.PairsInserted)
	assert.Len(t, s.Pairs(), 1)
}

func TestMatchWindow_ObservationWindowIsPadded(t *testing.T) {
	s := storage.NewMemoryStore()
	stage(t, s,
		[]storage.Forecast{{SiteID: 1, ModelID: 1, ParameterID: 1,
			ForecastRun: run, ValidTime: valid}},
		// 20 minutes before the window start, still within tolerance of
		// the forecast at the window edge.
		[]storage.Observation{{SiteID: 1, ParameterID: 1,
			ObservationTime: valid.Add(-20 * time.Minute)}},
	)

	res, err := newMatcher(s).MatchWindow(context.Background(), 1, valid, valid.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
}

func TestMatchWindow_ValidatesArguments(t *testing.T) {
	m := newMatcher(storage.NewMemoryStore())

	_, err := m.MatchWindow(context.Background(), 0, run, valid)
	var verr *validation.ErrValidation
	require.ErrorAs(t, err, &verr)

	_, err = m.MatchWindow(context.Background(), 1, valid, run)
	require.ErrorAs(t, err, &verr, "inverted window is rejected")
}
