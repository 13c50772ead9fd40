// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/windward/services/storage"
)

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// targetSites resolves the --site flag to a site list.
func targetSites(ctx context.Context, a *app) ([]storage.Site, error) {
	if siteID > 0 {
		site, err := a.store.Site(ctx, siteID)
		if err != nil {
			return nil, fmt.Errorf("site %d: %w", siteID, err)
		}
		return []storage.Site{*site}, nil
	}
	return a.store.Sites(ctx)
}

// runCollect executes one (or both) collection jobs and exits non-zero
// when a job failed outright. Partial runs exit zero; the execution
// log carries the detail.
func runCollect(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, config, memoryStore)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs := map[string]func(context.Context) storage.ExecutionLog{
		"forecast":    a.runner.RunForecastJob,
		"observation": a.runner.RunObservationJob,
	}

	var names []string
	switch collectJob {
	case "all":
		names = []string{"forecast", "observation"}
	case "forecast", "observation":
		names = []string{collectJob}
	default:
		return fmt.Errorf("unknown job %q (want forecast, observation, or all)", collectJob)
	}

	var failed []string
	for _, name := range names {
		log := jobs[name](ctx)
		if log.Status == storage.StatusFailed {
			failed = append(failed, name)
		}
	}
	a.metrics.ObserveBreakers(a.deps.Breakers.Statuses())

	if len(failed) > 0 {
		return fmt.Errorf("collection failed: %v", failed)
	}
	return nil
}

// runMatch pairs staged forecasts with observations over the trailing
// window for every target site.
func runMatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, config, memoryStore)
	if err != nil {
		return err
	}
	defer a.Close()

	sites, err := targetSites(ctx, a)
	if err != nil {
		return err
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(windowHours) * time.Hour)

	var inserted, unmatched int
	for _, site := range sites {
		res, err := a.matcher.MatchWindow(ctx, site.ID, start, end)
		if err != nil {
			return fmt.Errorf("match site %s: %w", site.Name, err)
		}
		a.metrics.UnmatchedForecasts.Add(float64(res.Unmatched))
		inserted += res.PairsInserted
		unmatched += res.Unmatched
	}

	a.logger.Info("matching finished",
		"sites", len(sites), "pairs_inserted", inserted, "unmatched", unmatched,
		"window_start", start, "window_end", end)
	return nil
}

// runReduce turns unprocessed pairs into deviation points for every
// target site.
func runReduce(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, config, memoryStore)
	if err != nil {
		return err
	}
	defer a.Close()

	sites, err := targetSites(ctx, a)
	if err != nil {
		return err
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(windowHours) * time.Hour)

	var written, outliers int
	for _, site := range sites {
		res, err := a.deviations.ReduceWindow(ctx, site.ID, start, end)
		if err != nil {
			return fmt.Errorf("reduce site %s: %w", site.Name, err)
		}
		a.metrics.OutlierDeviations.Add(float64(res.OutliersFlagged))
		written += res.DeviationsWritten
		outliers += res.OutliersFlagged
	}

	a.logger.Info("deviation reduction finished",
		"sites", len(sites), "deviations_written", written, "outliers_flagged", outliers,
		"window_start", start, "window_end", end)
	return nil
}

// runMetrics recomputes the accuracy cell for every combination of
// target site, model, parameter, and requested horizon. Cells with no
// deviation data are skipped.
func runMetrics(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, config, memoryStore)
	if err != nil {
		return err
	}
	defer a.Close()

	sites, err := targetSites(ctx, a)
	if err != nil {
		return err
	}
	models, err := a.store.Models(ctx)
	if err != nil {
		return err
	}
	parameters, err := a.store.Parameters(ctx)
	if err != nil {
		return err
	}

	var computed, skipped int
	for _, site := range sites {
		for _, model := range models {
			for _, param := range parameters {
				for _, horizon := range horizons {
					cell := storage.MetricCell{
						ModelID:      model.ID,
						SiteID:       site.ID,
						ParameterID:  param.ID,
						HorizonHours: horizon,
					}
					if _, err := a.accuracy.ComputeCell(ctx, cell); err != nil {
						if errors.Is(err, storage.ErrNotFound) {
							skipped++
							continue
						}
						return fmt.Errorf("compute metrics for site %s, model %s, %s@%dh: %w",
							site.Name, model.Name, param.Name, horizon, err)
					}
					computed++
				}
			}
		}
	}

	a.logger.Info("accuracy metrics recomputed",
		"sites", len(sites), "cells_computed", computed, "cells_skipped", skipped)
	return nil
}
