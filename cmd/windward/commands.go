// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	config Config

	configPath  string
	memoryStore bool
	collectJob  string
	siteID      int64
	windowHours int
	horizons    []int

	rootCmd = &cobra.Command{
		Use:   "windward",
		Short: "Forecast-verification pipeline for free-flight weather",
		Long: `Windward collects weather model forecasts and beacon observations,
pairs them in time, and reduces the deviations into per-site accuracy
metrics for each model, parameter, and forecast horizon.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			config, err = loadConfig(configPath)
			return err
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the admin HTTP surface",
		RunE:  runServe, // Defined in serve.go
	}

	collectCmd = &cobra.Command{
		Use:   "collect",
		Short: "Run a collection job once and exit",
		RunE:  runCollect, // Defined in pipeline.go
	}

	matchCmd = &cobra.Command{
		Use:   "match",
		Short: "Pair staged forecasts with observations over a window",
		RunE:  runMatch, // Defined in pipeline.go
	}

	reduceCmd = &cobra.Command{
		Use:   "reduce",
		Short: "Reduce unprocessed pairs into deviation points",
		RunE:  runReduce, // Defined in pipeline.go
	}

	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Recompute accuracy metrics from stored deviations",
		RunE:  runMetrics, // Defined in pipeline.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to a windward.yaml overlay (default ./windward.yaml when present)")
	rootCmd.PersistentFlags().BoolVar(&memoryStore, "memory", false,
		"use the in-memory store instead of PostgreSQL/InfluxDB")

	collectCmd.Flags().StringVar(&collectJob, "job", "all",
		"which job to run: forecast, observation, or all")

	for _, cmd := range []*cobra.Command{matchCmd, reduceCmd, metricsCmd} {
		cmd.Flags().Int64Var(&siteID, "site", 0, "restrict to one site id (0 = every site)")
		cmd.Flags().IntVar(&windowHours, "window", 24, "trailing window in hours")
	}
	metricsCmd.Flags().IntSliceVar(&horizons, "horizons", []int{1, 3, 6, 12, 24, 48},
		"forecast horizons (hours) to recompute")

	rootCmd.AddCommand(serveCmd, collectCmd, matchCmd, reduceCmd, metricsCmd)
}
