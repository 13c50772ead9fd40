// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the InfluxDB deviation store.

package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Influx APIs ---

type mockWriteAPI struct {
	WrittenPoints []*write.Point
	Err           error
}

func (m *mockWriteAPI) WritePoint(ctx context.Context, point ...*write.Point) error {
	m.WrittenPoints = append(m.WrittenPoints, point...)
	return m.Err
}

type mockQueryAPI struct {
	Queries []string
	Result  *api.QueryTableResult
	Err     error
}

func (m *mockQueryAPI) Query(ctx context.Context, query string) (*api.QueryTableResult, error) {
	m.Queries = append(m.Queries, query)
	return m.Result, m.Err
}

func TestWriteDeviations_PointShape(t *testing.T) {
	w := &mockWriteAPI{}
	q := &mockQueryAPI{}
	s := NewInfluxDeviationStoreWithAPIs(w, q, "windward", "deviations")

	ts := time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)
	err := s.WriteDeviations(context.Background(), []DeviationPoint{{
		Timestamp: ts, SiteID: 1, ModelID: 2, ParameterID: 3, HorizonHours: 12,
		ForecastValue: 25.5, ObservedValue: 22.3, Deviation: -3.2,
	}})
	require.NoError(t, err)
	require.Len(t, w.WrittenPoints, 1)

	p := w.WrittenPoints[0]
	assert.Equal(t, "deviation", p.Name())
	assert.Equal(t, ts, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{
		"site_id": "1", "model_id": "2", "parameter_id": "3", "horizon": "12",
	}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, -3.2, fields["deviation"])
	assert.Equal(t, 25.5, fields["forecast_value"])
	assert.Equal(t, 22.3, fields["observed_value"])
}

func TestWriteDeviations_EmptyBatchIsNoop(t *testing.T) {
	w := &mockWriteAPI{}
	s := NewInfluxDeviationStoreWithAPIs(w, &mockQueryAPI{}, "windward", "deviations")
	require.NoError(t, s.WriteDeviations(context.Background(), nil))
	assert.Empty(t, w.WrittenPoints)
}

func TestDeviationsForCell_QueryFiltersCell(t *testing.T) {
	q := &mockQueryAPI{}
	s := NewInfluxDeviationStoreWithAPIs(&mockWriteAPI{}, q, "windward", "deviations")

	_, err := s.DeviationsForCell(context.Background(),
		MetricCell{ModelID: 2, SiteID: 1, ParameterID: 3, HorizonHours: 12})
	require.NoError(t, err)
	require.Len(t, q.Queries, 1)

	query := q.Queries[0]
	assert.Contains(t, query, `"deviations"`)
	assert.Contains(t, query, `r.site_id == "1"`)
	assert.Contains(t, query, `r.model_id == "2"`)
	assert.Contains(t, query, `r.parameter_id == "3"`)
	assert.Contains(t, query, `r.horizon == "12"`)
	assert.Contains(t, query, "pivot")
}

func TestRefreshRollups_CoversWindowsAndAggregates(t *testing.T) {
	q := &mockQueryAPI{}
	s := NewInfluxDeviationStoreWithAPIs(&mockWriteAPI{}, q, "windward", "deviations")

	require.NoError(t, s.RefreshRollups(context.Background()))
	assert.Len(t, q.Queries, len(rollupWindows)*len(rollupAggregations))

	joined := strings.Join(q.Queries, "\n")
	for _, w := range rollupWindows {
		assert.Contains(t, joined, w.measurement)
	}
	for _, agg := range rollupAggregations {
		assert.Contains(t, joined, agg.field)
	}
	assert.Contains(t, joined, `to(bucket: "deviations", org: "windward")`)
}
