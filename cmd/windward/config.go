// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Values are read from the
// environment first; an optional YAML file overlays them, so a file
// can pin everything while secrets stay in the environment.
type Config struct {
	// Environment tags logs and traces. Valid: "dev", "staging", "prod".
	Environment string `yaml:"environment" validate:"oneof=dev staging prod"`

	// Port is the admin HTTP port for serve. Default: 12300
	Port int `yaml:"port" validate:"gt=0,lt=65536"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// LogDir enables JSON file logging when set.
	LogDir string `yaml:"log_dir"`

	// LogJSON switches stderr output to JSON.
	LogJSON bool `yaml:"log_json"`

	// GinMode sets the Gin framework mode for serve.
	GinMode string `yaml:"gin_mode" validate:"omitempty,oneof=debug release test"`

	// DatabaseURL is the PostgreSQL DSN. Required unless --memory.
	DatabaseURL string `yaml:"database_url"`

	// Influx* configure the time-series store. Required unless --memory.
	InfluxURL    string `yaml:"influx_url"`
	InfluxToken  string `yaml:"influx_token"`
	InfluxOrg    string `yaml:"influx_org"`
	InfluxBucket string `yaml:"influx_bucket"`

	// OTelEndpoint is the OTLP/gRPC collector endpoint. Tracing is
	// disabled when empty.
	OTelEndpoint string `yaml:"otel_endpoint"`

	// APIToken is the bearer token for the gridded-model export API.
	APIToken string `yaml:"api_token"`

	// Upstream endpoints. A collector with an empty base URL is not
	// wired, so single-source deployments need no stub config.
	AromeBaseURL    string `yaml:"arome_base_url"`
	SoundingBaseURL string `yaml:"sounding_base_url"`
	SoundingOrigin  string `yaml:"sounding_origin"`
	SoundingReferer string `yaml:"sounding_referer"`
	SoundingAuth    string `yaml:"sounding_auth"`
	FFVLBaseURL     string `yaml:"ffvl_base_url"`
	RommaBaseURL    string `yaml:"romma_base_url"`

	// SchedulerEnabled starts the cron schedule under serve. When
	// false the admin surface still allows manual triggers.
	SchedulerEnabled bool `yaml:"scheduler_enabled"`

	// ForecastHours and ObservationHours are the UTC firing hours of
	// the two collection jobs.
	ForecastHours    []int `yaml:"forecast_hours" validate:"dive,gte=0,lte=23"`
	ObservationHours []int `yaml:"observation_hours" validate:"dive,gte=0,lte=23"`

	// Per-source request spacing, in milliseconds. Zero keeps the
	// collector's own default: 1200 for the gridded model (50 requests
	// a minute of quota), 2000 for the sounding endpoint and the
	// scraped beacon pages.
	AromeRateMS    int `yaml:"arome_rate_ms" validate:"gte=0"`
	SoundingRateMS int `yaml:"sounding_rate_ms" validate:"gte=0"`
	BeaconRateMS   int `yaml:"beacon_rate_ms" validate:"gte=0"`

	// MatchToleranceMinutes is the pairing window half-width.
	MatchToleranceMinutes int `yaml:"match_tolerance_minutes" validate:"gt=0"`
}

// loadConfig builds the configuration from the environment, overlays
// the YAML file at path (when it exists), and validates the result.
// An empty path falls back to ./windward.yaml, which is optional.
func loadConfig(path string) (Config, error) {
	cfg := Config{
		Environment: getEnvString("WINDWARD_ENV", "dev"),
		Port:        getEnvInt("WINDWARD_PORT", 12300),
		LogLevel:    getEnvString("WINDWARD_LOG_LEVEL", "info"),
		LogDir:      getEnvString("WINDWARD_LOG_DIR", ""),
		LogJSON:     getEnvBool("WINDWARD_LOG_JSON", false),
		GinMode:     getEnvString("GIN_MODE", ""),

		DatabaseURL:  getEnvString("DATABASE_URL", ""),
		InfluxURL:    getEnvString("INFLUXDB_URL", ""),
		InfluxToken:  getEnvString("INFLUXDB_TOKEN", ""),
		InfluxOrg:    getEnvString("INFLUXDB_ORG", "windward"),
		InfluxBucket: getEnvString("INFLUXDB_BUCKET", "deviations"),

		OTelEndpoint: getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		APIToken:        getEnvString("WINDWARD_API_TOKEN", ""),
		AromeBaseURL:    getEnvString("AROME_BASE_URL", "https://public-api.meteofrance.fr/public/arome/1.0"),
		SoundingBaseURL: getEnvString("SOUNDING_BASE_URL", "https://www.meteociel.fr/modeles/sondage"),
		SoundingOrigin:  getEnvString("SOUNDING_ORIGIN", "https://www.meteociel.fr"),
		SoundingReferer: getEnvString("SOUNDING_REFERER", "https://www.meteociel.fr/"),
		SoundingAuth:    getEnvString("SOUNDING_AUTH", ""),
		FFVLBaseURL:     getEnvString("FFVL_BASE_URL", "https://www.balisemeteo.com/balise.php"),
		RommaBaseURL:    getEnvString("ROMMA_BASE_URL", "https://www.romma.fr/station_24.php"),

		SchedulerEnabled:      getEnvBool("WINDWARD_SCHEDULER_ENABLED", true),
		ForecastHours:         getEnvHours("WINDWARD_FORECAST_HOURS", []int{0, 6, 12, 18}),
		ObservationHours:      getEnvHours("WINDWARD_OBSERVATION_HOURS", []int{8, 10, 12, 14, 16, 18}),
		AromeRateMS:           getEnvInt("AROME_RATE_INTERVAL_MS", 0),
		SoundingRateMS:        getEnvInt("SOUNDING_RATE_INTERVAL_MS", 0),
		BeaconRateMS:          getEnvInt("BEACON_RATE_INTERVAL_MS", 0),
		MatchToleranceMinutes: getEnvInt("WINDWARD_MATCH_TOLERANCE_MINUTES", 30),
	}

	optional := path == ""
	if optional {
		path = "windward.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case optional && os.IsNotExist(err):
		// No overlay file; environment values stand.
	default:
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// requireStores checks the store settings that only matter when the
// process runs against real backends.
func (c Config) requireStores() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (or pass --memory)")
	}
	if c.InfluxURL == "" {
		return fmt.Errorf("INFLUXDB_URL is required (or pass --memory)")
	}
	return nil
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvHours parses a comma-separated hour list ("0,6,12,18").
// Malformed entries fall back to the default list wholesale; range
// checking belongs to the validator and the scheduler.
func getEnvHours(key string, defaultValue []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var hours []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		hours = append(hours, n)
	}
	return hours
}
