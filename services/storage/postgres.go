// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
	"github.com/jmoiron/sqlx"
)

// Pool sizing, the reference values from the deployment manifests.
const (
	pgMaxOpenConns = 20
	pgMinIdleConns = 5
)

// PostgresStore implements the relational side of the storage contract
// (reference, staging, pairs, metrics, execution log) on Postgres via
// sqlx. Migration DDL lives outside this repo; queries assume the
// deployed schema with the staging and metric unique keys in place.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects and configures the pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMinIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// --- ReferenceStore ---

const siteColumns = `id, name, latitude, longitude, altitude,
	ffvl_beacon_id, ffvl_backup_beacon_id, romma_beacon_id, romma_backup_beacon_id`

func (s *PostgresStore) Sites(ctx context.Context) ([]Site, error) {
	var out []Site
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+siteColumns+` FROM sites ORDER BY id`)
	return out, err
}

func (s *PostgresStore) Site(ctx context.Context, id int64) (*Site, error) {
	var out Site
	err := s.db.GetContext(ctx, &out,
		`SELECT `+siteColumns+` FROM sites WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) Models(ctx context.Context) ([]Model, error) {
	var out []Model
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, name, origin FROM models ORDER BY id`)
	return out, err
}

func (s *PostgresStore) ModelByName(ctx context.Context, name string) (*Model, error) {
	var out Model
	err := s.db.GetContext(ctx, &out,
		`SELECT id, name, origin FROM models WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) Parameters(ctx context.Context) ([]Parameter, error) {
	var out []Parameter
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, name, unit FROM parameters ORDER BY id`)
	return out, err
}

func (s *PostgresStore) ParametersByID(ctx context.Context, ids []int64) (map[int64]Parameter, error) {
	if len(ids) == 0 {
		return map[int64]Parameter{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, name, unit FROM parameters WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []Parameter
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make(map[int64]Parameter, len(rows))
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// --- StagingStore ---

func (s *PostgresStore) UpsertForecasts(ctx context.Context, batch []Forecast) (UpsertResult, error) {
	res := UpsertResult{Attempted: len(batch)}
	if len(batch) == 0 {
		return res, nil
	}
	// A single multi-row statement: the batch is atomic, and
	// RowsAffected counts only non-conflicting rows.
	r, err := s.db.NamedExecContext(ctx, `
		INSERT INTO forecasts (site_id, model_id, parameter_id, forecast_run, valid_time, value)
		VALUES (:site_id, :model_id, :parameter_id, :forecast_run, :valid_time, :value)
		ON CONFLICT (site_id, model_id, parameter_id, forecast_run, valid_time) DO NOTHING`,
		batch)
	if err != nil {
		return res, fmt.Errorf("upsert forecasts: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return res, err
	}
	res.Inserted = int(n)
	return res, nil
}

func (s *PostgresStore) UpsertObservations(ctx context.Context, batch []Observation) (UpsertResult, error) {
	res := UpsertResult{Attempted: len(batch)}
	if len(batch) == 0 {
		return res, nil
	}
	r, err := s.db.NamedExecContext(ctx, `
		INSERT INTO observations (site_id, parameter_id, observation_time, value, source)
		VALUES (:site_id, :parameter_id, :observation_time, :value, :source)
		ON CONFLICT (site_id, parameter_id, observation_time, source) DO NOTHING`,
		batch)
	if err != nil {
		return res, fmt.Errorf("upsert observations: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return res, err
	}
	res.Inserted = int(n)
	return res, nil
}

func (s *PostgresStore) ForecastsInWindow(ctx context.Context, siteID int64, start, end time.Time) ([]Forecast, error) {
	var out []Forecast
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, site_id, model_id, parameter_id, forecast_run, valid_time, value
		FROM forecasts
		WHERE site_id = $1 AND valid_time BETWEEN $2 AND $3
		ORDER BY valid_time`, siteID, start, end)
	return out, err
}

func (s *PostgresStore) ObservationsInWindow(ctx context.Context, siteID int64, start, end time.Time) ([]Observation, error) {
	var out []Observation
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, site_id, parameter_id, observation_time, value, source
		FROM observations
		WHERE site_id = $1 AND observation_time BETWEEN $2 AND $3
		ORDER BY observation_time`, siteID, start, end)
	return out, err
}

// --- PairStore ---

func (s *PostgresStore) ExistingPairKeys(ctx context.Context, siteID int64) (map[PairKey]struct{}, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT forecast_id, observation_id FROM pairs WHERE site_id = $1`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[PairKey]struct{})
	for rows.Next() {
		var k PairKey
		if err := rows.Scan(&k.ForecastID, &k.ObservationID); err != nil {
			return nil, err
		}
		out[k] = struct{}{}
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertPairs(ctx context.Context, batch []Pair) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	r, err := s.db.NamedExecContext(ctx, `
		INSERT INTO pairs (forecast_id, observation_id, site_id, model_id, parameter_id,
			forecast_run, valid_time, horizon_hours, forecast_value, observed_value, time_diff_minutes)
		VALUES (:forecast_id, :observation_id, :site_id, :model_id, :parameter_id,
			:forecast_run, :valid_time, :horizon_hours, :forecast_value, :observed_value, :time_diff_minutes)
		ON CONFLICT (forecast_id, observation_id) DO NOTHING`,
		batch)
	if err != nil {
		return 0, fmt.Errorf("insert pairs: %w", err)
	}
	n, err := r.RowsAffected()
	return int(n), err
}

func (s *PostgresStore) UnprocessedPairs(ctx context.Context, siteID int64, start, end time.Time) ([]Pair, error) {
	var out []Pair
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, forecast_id, observation_id, site_id, model_id, parameter_id,
			forecast_run, valid_time, horizon_hours, forecast_value, observed_value,
			time_diff_minutes, processed_at
		FROM pairs
		WHERE site_id = $1 AND valid_time BETWEEN $2 AND $3 AND processed_at IS NULL
		ORDER BY valid_time`, siteID, start, end)
	return out, err
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, pairIDs []int64, at time.Time) error {
	if len(pairIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`UPDATE pairs SET processed_at = ? WHERE id IN (?) AND processed_at IS NULL`, at, pairIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return err
}

// --- MetricStore ---

func (s *PostgresStore) UpsertMetric(ctx context.Context, m *AccuracyMetric) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO accuracy_metrics (model_id, site_id, parameter_id, horizon_hours,
			mae, bias, std_dev, sample_size, confidence_level, ci_lower, ci_upper,
			min_deviation, max_deviation, calculated_at)
		VALUES (:model_id, :site_id, :parameter_id, :horizon_hours,
			:mae, :bias, :std_dev, :sample_size, :confidence_level, :ci_lower, :ci_upper,
			:min_deviation, :max_deviation, :calculated_at)
		ON CONFLICT (model_id, site_id, parameter_id, horizon_hours) DO UPDATE SET
			mae = EXCLUDED.mae,
			bias = EXCLUDED.bias,
			std_dev = EXCLUDED.std_dev,
			sample_size = EXCLUDED.sample_size,
			confidence_level = EXCLUDED.confidence_level,
			ci_lower = EXCLUDED.ci_lower,
			ci_upper = EXCLUDED.ci_upper,
			min_deviation = EXCLUDED.min_deviation,
			max_deviation = EXCLUDED.max_deviation,
			calculated_at = EXCLUDED.calculated_at`,
		m)
	return err
}

func (s *PostgresStore) Metric(ctx context.Context, cell MetricCell) (*AccuracyMetric, error) {
	var out AccuracyMetric
	err := s.db.GetContext(ctx, &out, `
		SELECT model_id, site_id, parameter_id, horizon_hours, mae, bias, std_dev,
			sample_size, confidence_level, ci_lower, ci_upper, min_deviation,
			max_deviation, calculated_at
		FROM accuracy_metrics
		WHERE model_id = $1 AND site_id = $2 AND parameter_id = $3 AND horizon_hours = $4`,
		cell.ModelID, cell.SiteID, cell.ParameterID, cell.HorizonHours)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// --- ExecutionLogStore ---

// executionLogRow flattens the errors list into a single text column.
type executionLogRow struct {
	ExecutionLog
	ErrorsText sql.NullString `db:"errors"`
}

func (s *PostgresStore) InsertExecutionLog(ctx context.Context, log *ExecutionLog) error {
	row := executionLogRow{ExecutionLog: *log}
	if len(log.Errors) > 0 {
		row.ErrorsText = sql.NullString{String: strings.Join(log.Errors, "\n"), Valid: true}
	}
	var id int64
	rows, err := s.db.NamedQueryContext(ctx, `
		INSERT INTO execution_logs (job_id, run_id, start_time, end_time, duration_seconds,
			status, records_collected, records_persisted, errors)
		VALUES (:job_id, :run_id, :start_time, :end_time, :duration_seconds,
			:status, :records_collected, :records_persisted, :errors)
		RETURNING id`,
		row)
	if err != nil {
		return fmt.Errorf("insert execution log: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return err
		}
		log.ID = id
	}
	return rows.Err()
}

func (s *PostgresStore) RecentExecutions(ctx context.Context, jobID string, limit int) ([]ExecutionLog, error) {
	var rows []executionLogRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, job_id, run_id, start_time, end_time, duration_seconds,
			status, records_collected, records_persisted, errors
		FROM execution_logs
		WHERE job_id = $1
		ORDER BY start_time DESC
		LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ExecutionLog, 0, len(rows))
	for _, r := range rows {
		log := r.ExecutionLog
		if r.ErrorsText.Valid && r.ErrorsText.String != "" {
			log.Errors = strings.Split(r.ErrorsText.String, "\n")
		}
		out = append(out, log)
	}
	return out, nil
}
