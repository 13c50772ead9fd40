// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage defines the pipeline's domain model and the storage
// contract the engines run against, plus three implementations: a
// Postgres store for reference/staging/pair/metric/log tables, an
// InfluxDB store for the deviation time series, and an in-memory store
// for development and tests.
package storage

import (
	"math"
	"time"
)

// Known parameter names. wind_direction is circular; the deviation
// engine branches on it before any arithmetic.
const (
	ParamWindSpeed     = "wind_speed"     // km/h
	ParamWindDirection = "wind_direction" // deg, circular
	ParamTemperature   = "temperature"    // °C
)

// Job identifiers for the execution log.
const (
	JobForecastCollection    = "forecast_collection"
	JobObservationCollection = "observation_collection"
)

// Site is a fixed geographic point of interest. Beacon ids address the
// site's ground stations per observation network; backups are tried
// only when the primary errors.
type Site struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
	Altitude  float64 `db:"altitude" json:"altitude"`

	FFVLBeaconID        *int `db:"ffvl_beacon_id" json:"ffvl_beacon_id,omitempty"`
	FFVLBackupBeaconID  *int `db:"ffvl_backup_beacon_id" json:"ffvl_backup_beacon_id,omitempty"`
	RommaBeaconID       *int `db:"romma_beacon_id" json:"romma_beacon_id,omitempty"`
	RommaBackupBeaconID *int `db:"romma_backup_beacon_id" json:"romma_backup_beacon_id,omitempty"`
}

// Model is a forecast source.
type Model struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Origin string `db:"origin" json:"origin"`
}

// Parameter is a measured quantity.
type Parameter struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Unit string `db:"unit" json:"unit"`
}

// Circular reports whether the parameter needs circular arithmetic.
func (p Parameter) Circular() bool { return p.Name == ParamWindDirection }

// Forecast is a raw forecast point, unique on
// (site, model, parameter, forecast_run, valid_time).
type Forecast struct {
	ID          int64     `db:"id"`
	SiteID      int64     `db:"site_id"`
	ModelID     int64     `db:"model_id"`
	ParameterID int64     `db:"parameter_id"`
	ForecastRun time.Time `db:"forecast_run"`
	ValidTime   time.Time `db:"valid_time"`
	Value       float64   `db:"value"`
}

// Observation is a raw observed point, unique on
// (site, parameter, observation_time, source).
type Observation struct {
	ID              int64     `db:"id"`
	SiteID          int64     `db:"site_id"`
	ParameterID     int64     `db:"parameter_id"`
	ObservationTime time.Time `db:"observation_time"`
	Value           float64   `db:"value"`
	Source          *string   `db:"source"`
}

// Pair is a matched (forecast, observation) with denormalised keys so
// the deviation engine never joins back to staging.
type Pair struct {
	ID              int64      `db:"id"`
	ForecastID      int64      `db:"forecast_id"`
	ObservationID   int64      `db:"observation_id"`
	SiteID          int64      `db:"site_id"`
	ModelID         int64      `db:"model_id"`
	ParameterID     int64      `db:"parameter_id"`
	ForecastRun     time.Time  `db:"forecast_run"`
	ValidTime       time.Time  `db:"valid_time"`
	HorizonHours    int        `db:"horizon_hours"`
	ForecastValue   float64    `db:"forecast_value"`
	ObservedValue   float64    `db:"observed_value"`
	TimeDiffMinutes int        `db:"time_diff_minutes"`
	ProcessedAt     *time.Time `db:"processed_at"`
}

// PairKey identifies a pair regardless of surrogate id.
type PairKey struct {
	ForecastID    int64
	ObservationID int64
}

// DeviationPoint is one reduced signed error, keyed on
// (timestamp, site, model, parameter, horizon) in the time-series store.
type DeviationPoint struct {
	Timestamp     time.Time
	SiteID        int64
	ModelID       int64
	ParameterID   int64
	HorizonHours  int
	ForecastValue float64
	ObservedValue float64
	Deviation     float64
}

// MetricCell addresses one accuracy cell.
type MetricCell struct {
	ModelID      int64
	SiteID       int64
	ParameterID  int64
	HorizonHours int
}

// ConfidenceLevel classifies a metric by temporal coverage. The level
// is monotone non-decreasing in days of data.
type ConfidenceLevel string

const (
	ConfidenceInsufficient ConfidenceLevel = "insufficient"
	ConfidencePreliminary  ConfidenceLevel = "preliminary"
	ConfidenceValidated    ConfidenceLevel = "validated"
)

// AccuracyMetric holds reduced statistics for one cell, unique on the
// 4-tuple. Numeric fields are stored quantised to 4 fractional digits.
type AccuracyMetric struct {
	ModelID         int64           `db:"model_id"`
	SiteID          int64           `db:"site_id"`
	ParameterID     int64           `db:"parameter_id"`
	HorizonHours    int             `db:"horizon_hours"`
	MAE             float64         `db:"mae"`
	Bias            float64         `db:"bias"`
	StdDev          float64         `db:"std_dev"`
	SampleSize      int             `db:"sample_size"`
	ConfidenceLevel ConfidenceLevel `db:"confidence_level"`
	CILower         float64         `db:"ci_lower"`
	CIUpper         float64         `db:"ci_upper"`
	MinDeviation    float64         `db:"min_deviation"`
	MaxDeviation    float64         `db:"max_deviation"`
	CalculatedAt    time.Time       `db:"calculated_at"`
}

// JobStatus is the outcome of one scheduled or manual job run.
type JobStatus string

const (
	StatusSuccess JobStatus = "success"
	StatusPartial JobStatus = "partial"
	StatusFailed  JobStatus = "failed"
)

// ExecutionLog is one row per job run.
type ExecutionLog struct {
	ID               int64     `db:"id"`
	JobID            string    `db:"job_id"`
	RunID            string    `db:"run_id"`
	StartTime        time.Time `db:"start_time"`
	EndTime          time.Time `db:"end_time"`
	DurationSeconds  float64   `db:"duration_seconds"`
	Status           JobStatus `db:"status"`
	RecordsCollected int       `db:"records_collected"`
	RecordsPersisted int       `db:"records_persisted"`
	Errors           []string  `db:"-"`
}

// HorizonHours computes floor((validTime − forecastRun) / 1h).
//
// Negative horizons (forecast_run after valid_time) are representable;
// the matcher's window arithmetic keeps them out in practice.
func HorizonHours(forecastRun, validTime time.Time) int {
	return int(math.Floor(validTime.Sub(forecastRun).Hours()))
}
