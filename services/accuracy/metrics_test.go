// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the accuracy metrics engine.

package accuracy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/windward/pkg/logging"
	"github.com/AleutianAI/windward/services/storage"
)

var cell = storage.MetricCell{ModelID: 1, SiteID: 1, ParameterID: 1, HorizonHours: 12}

func newEngine(s *storage.MemoryStore) *Engine {
	return New(s, s, logging.New(logging.Config{Quiet: true}), Config{})
}

// writeDeviations spreads the values one day apart starting 2026-01-01.
func writeDeviations(t *testing.T, s *storage.MemoryStore, values ...float64) {
	t.Helper()
	writeDeviationsSpaced(t, s, 24*time.Hour, values...)
}

func writeDeviationsSpaced(t *testing.T, s *storage.MemoryStore, gap time.Duration, values ...float64) {
	t.Helper()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	points := make([]storage.DeviationPoint, len(values))
	for i, v := range values {
		points[i] = storage.DeviationPoint{
			Timestamp: start.Add(time.Duration(i) * gap),
			SiteID:    cell.SiteID, ModelID: cell.ModelID,
			ParameterID: cell.ParameterID, HorizonHours: cell.HorizonHours,
			Deviation: v,
		}
	}
	require.NoError(t, s.WriteDeviations(context.Background(), points))
}

func TestComputeCell_Statistics(t *testing.T) {
	s := storage.NewMemoryStore()
	writeDeviations(t, s, -2, 0, 2, 4)

	m, err := newEngine(s).ComputeCell(context.Background(), cell)
	require.NoError(t, err)

	assert.Equal(t, 4, m.SampleSize)
	assert.Equal(t, 2.0, m.MAE)
	assert.Equal(t, 1.0, m.Bias)
	assert.Equal(t, -2.0, m.MinDeviation)
	assert.Equal(t, 4.0, m.MaxDeviation)
	// Sample std dev of {-2, 0, 2, 4}: sqrt(20/3).
	assert.InDelta(t, math.Sqrt(20.0/3.0), m.StdDev, 1e-4)
	assert.GreaterOrEqual(t, m.MAE, math.Abs(m.Bias), "mae dominates |bias|")
}

func TestComputeCell_EmptyCellIsNotFound(t *testing.T) {
	s := storage.NewMemoryStore()

	_, err := newEngine(s).ComputeCell(context.Background(), cell)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.Metric(context.Background(), cell)
	assert.ErrorIs(t, err, storage.ErrNotFound, "no zero row fabricated")
}

func TestComputeCell_SingleSampleCollapsesCI(t *testing.T) {
	s := storage.NewMemoryStore()
	writeDeviations(t, s, 3.5)

	m, err := newEngine(s).ComputeCell(context.Background(), cell)
	require.NoError(t, err)

	assert.Zero(t, m.StdDev)
	assert.Equal(t, m.Bias, m.CILower)
	assert.Equal(t, m.Bias, m.CIUpper)
}

func TestComputeCell_ConfidenceInterval(t *testing.T) {
	s := storage.NewMemoryStore()
	writeDeviations(t, s, 1, 2, 3, 4, 5)

	m, err := newEngine(s).ComputeCell(context.Background(), cell)
	require.NoError(t, err)

	// n=5, bias=3, s=sqrt(2.5), t_{0.975,4}=2.776.
	margin := 2.776 * math.Sqrt(2.5) / math.Sqrt(5)
	assert.InDelta(t, 3-margin, m.CILower, 1e-3)
	assert.InDelta(t, 3+margin, m.CIUpper, 1e-3)
}

func TestComputeCell_ConfidenceByDaysOfData(t *testing.T) {
	cases := []struct {
		name string
		days int
		want storage.ConfidenceLevel
	}{
		{"29 days is insufficient", 29, storage.ConfidenceInsufficient},
		{"30 days is preliminary", 30, storage.ConfidencePreliminary},
		{"89 days is preliminary", 89, storage.ConfidencePreliminary},
		{"90 days is validated", 90, storage.ConfidenceValidated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := storage.NewMemoryStore()
			// N points one day apart span N-1 days.
			values := make([]float64, tc.days+1)
			for i := range values {
				values[i] = float64(i % 7)
			}
			writeDeviations(t, s, values...)

			m, err := newEngine(s).ComputeCell(context.Background(), cell)
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.ConfidenceLevel)
		})
	}
}

func TestComputeCell_DenseSampleIsStillInsufficient(t *testing.T) {
	s := storage.NewMemoryStore()
	// 100 samples packed into a single day: coverage, not volume,
	// drives confidence.
	values := make([]float64, 100)
	writeDeviationsSpaced(t, s, 10*time.Minute, values...)

	m, err := newEngine(s).ComputeCell(context.Background(), cell)
	require.NoError(t, err)
	assert.Equal(t, storage.ConfidenceInsufficient, m.ConfidenceLevel)
}

func TestComputeCell_UpsertsMetric(t *testing.T) {
	s := storage.NewMemoryStore()
	writeDeviations(t, s, 1, 2, 3)

	e := newEngine(s)
	_, err := e.ComputeCell(context.Background(), cell)
	require.NoError(t, err)

	stored, err := s.Metric(context.Background(), cell)
	require.NoError(t, err)
	assert.Equal(t, 2.0, stored.Bias)

	// Recompute after more data: the cell row is replaced.
	writeDeviations(t, s, 10, 10, 10)
	_, err = e.ComputeCell(context.Background(), cell)
	require.NoError(t, err)
	stored, err = s.Metric(context.Background(), cell)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.SampleSize)
}

func TestComputeCell_Quantisation(t *testing.T) {
	s := storage.NewMemoryStore()
	writeDeviations(t, s, 1.0/3.0, 1.0/3.0)

	m, err := newEngine(s).ComputeCell(context.Background(), cell)
	require.NoError(t, err)
	assert.Equal(t, 0.3333, m.Bias, "4 fractional digits")
	assert.Equal(t, 0.3333, m.MAE)
}

func TestComputeCell_ValidatesCell(t *testing.T) {
	_, err := newEngine(storage.NewMemoryStore()).ComputeCell(context.Background(),
		storage.MetricCell{ModelID: 0, SiteID: 1, ParameterID: 1})
	assert.Error(t, err)
}

func TestClassifyAndMessage(t *testing.T) {
	assert.Equal(t, storage.ConfidenceInsufficient, Classify(0))
	assert.Equal(t, storage.ConfidencePreliminary, Classify(45))
	assert.Equal(t, storage.ConfidenceValidated, Classify(120))

	// 45 days of data: 45 more to validated.
	msg := Message(storage.ConfidencePreliminary, 45)
	assert.Contains(t, msg, "45 more days")

	msg = Message(storage.ConfidenceInsufficient, 10)
	assert.Contains(t, msg, "20 more days")
}

func TestTValue(t *testing.T) {
	assert.Equal(t, 12.706, tValue(1))
	assert.Equal(t, 2.776, tValue(4))
	assert.Equal(t, 2.042, tValue(35), "falls back to the last smaller df")
	assert.Equal(t, 1.96, tValue(5000))
	assert.Greater(t, tValue(2), tValue(10), "critical value shrinks with df")
}
