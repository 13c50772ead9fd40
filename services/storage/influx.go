// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"fmt"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// deviationMeasurement is the raw time series; one point per reduced
// pair, keyed by (timestamp, site, model, parameter, horizon) via tags.
// Re-writing the same key overwrites identically, so reduction retries
// are idempotent at the storage layer too.
const deviationMeasurement = "deviation"

// rollupWindows are the pre-aggregated buckets. Refresh is manual (or
// driven by an external task); the pipeline only defines the meaning.
var rollupWindows = []struct {
	measurement string
	every       string
	lookback    string
}{
	{"deviation_1d", "1d", "-90d"},
	{"deviation_1w", "1w", "-1y"},
	{"deviation_1mo", "1mo", "-2y"},
}

// InfluxWriteAPI and InfluxQueryAPI narrow the client interfaces so
// tests can inject mocks, mirroring the data services.
type InfluxWriteAPI interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type InfluxQueryAPI interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// InfluxDeviationStore implements DeviationStore on InfluxDB 2.x.
type InfluxDeviationStore struct {
	writeAPI InfluxWriteAPI
	queryAPI InfluxQueryAPI
	org      string
	bucket   string
}

// NewInfluxDeviationStore wires the blocking write API and query API
// for the configured org and bucket.
func NewInfluxDeviationStore(client influxdb2.Client, org, bucket string) *InfluxDeviationStore {
	return &InfluxDeviationStore{
		writeAPI: client.WriteAPIBlocking(org, bucket),
		queryAPI: client.QueryAPI(org),
		org:      org,
		bucket:   bucket,
	}
}

// NewInfluxDeviationStoreWithAPIs injects the APIs directly; used by
// tests.
func NewInfluxDeviationStoreWithAPIs(w InfluxWriteAPI, q InfluxQueryAPI, org, bucket string) *InfluxDeviationStore {
	return &InfluxDeviationStore{writeAPI: w, queryAPI: q, org: org, bucket: bucket}
}

func (s *InfluxDeviationStore) WriteDeviations(ctx context.Context, points []DeviationPoint) error {
	if len(points) == 0 {
		return nil
	}
	batch := make([]*write.Point, 0, len(points))
	for _, d := range points {
		p := influxdb2.NewPoint(
			deviationMeasurement,
			map[string]string{
				"site_id":      strconv.FormatInt(d.SiteID, 10),
				"model_id":     strconv.FormatInt(d.ModelID, 10),
				"parameter_id": strconv.FormatInt(d.ParameterID, 10),
				"horizon":      strconv.Itoa(d.HorizonHours),
			},
			map[string]interface{}{
				"forecast_value": d.ForecastValue,
				"observed_value": d.ObservedValue,
				"deviation":      d.Deviation,
			},
			d.Timestamp.UTC(),
		)
		batch = append(batch, p)
	}
	if err := s.writeAPI.WritePoint(ctx, batch...); err != nil {
		return fmt.Errorf("write deviations: %w", err)
	}
	return nil
}

func (s *InfluxDeviationStore) DeviationsForCell(ctx context.Context, cell MetricCell) ([]DeviationPoint, error) {
	// Tag values are generated from int64 ids, never user text, so the
	// interpolation below cannot inject Flux.
	query := fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: 0)
		  |> filter(fn: (r) => r._measurement == %q)
		  |> filter(fn: (r) => r.site_id == %q and r.model_id == %q and r.parameter_id == %q and r.horizon == %q)
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)`,
		s.bucket, deviationMeasurement,
		strconv.FormatInt(cell.SiteID, 10),
		strconv.FormatInt(cell.ModelID, 10),
		strconv.FormatInt(cell.ParameterID, 10),
		strconv.Itoa(cell.HorizonHours))

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query deviations: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	var out []DeviationPoint
	for result.Next() {
		record := result.Record()
		d := DeviationPoint{
			Timestamp:    record.Time(),
			SiteID:       cell.SiteID,
			ModelID:      cell.ModelID,
			ParameterID:  cell.ParameterID,
			HorizonHours: cell.HorizonHours,
		}
		if v, ok := record.ValueByKey("forecast_value").(float64); ok {
			d.ForecastValue = v
		}
		if v, ok := record.ValueByKey("observed_value").(float64); ok {
			d.ObservedValue = v
		}
		if v, ok := record.ValueByKey("deviation").(float64); ok {
			d.Deviation = v
		}
		out = append(out, d)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("iterate deviations: %w", result.Err())
	}
	return out, nil
}

// rollupAggregations maps roll-up field names to the Flux that produces
// them from the raw deviation field.
var rollupAggregations = []struct {
	field string
	flux  string
}{
	{"mae", `|> map(fn: (r) => ({r with _value: math.abs(x: r._value)})) |> aggregateWindow(every: %s, fn: mean, createEmpty: false)`},
	{"bias", `|> aggregateWindow(every: %s, fn: mean, createEmpty: false)`},
	{"std_dev", `|> aggregateWindow(every: %s, fn: stddev, createEmpty: false)`},
	{"sample_size", `|> aggregateWindow(every: %s, fn: count, createEmpty: false) |> toFloat()`},
	{"min_deviation", `|> aggregateWindow(every: %s, fn: min, createEmpty: false)`},
	{"max_deviation", `|> aggregateWindow(every: %s, fn: max, createEmpty: false)`},
}

func (s *InfluxDeviationStore) RefreshRollups(ctx context.Context) error {
	for _, w := range rollupWindows {
		for _, agg := range rollupAggregations {
			pipeline := fmt.Sprintf(agg.flux, w.every)
			query := fmt.Sprintf(`
				import "math"
				from(bucket: %q)
				  |> range(start: %s)
				  |> filter(fn: (r) => r._measurement == %q and r._field == "deviation")
				  %s
				  |> set(key: "_field", value: %q)
				  |> set(key: "_measurement", value: %q)
				  |> to(bucket: %q, org: %q)`,
				s.bucket, w.lookback, deviationMeasurement,
				pipeline, agg.field, w.measurement, s.bucket, s.org)

			result, err := s.queryAPI.Query(ctx, query)
			if err != nil {
				return fmt.Errorf("refresh rollup %s/%s: %w", w.measurement, agg.field, err)
			}
			if result == nil {
				continue
			}
			// to() yields no interesting rows; drain for the error.
			for result.Next() {
			}
			if result.Err() != nil {
				return fmt.Errorf("refresh rollup %s/%s: %w", w.measurement, agg.field, result.Err())
			}
		}
	}
	return nil
}
