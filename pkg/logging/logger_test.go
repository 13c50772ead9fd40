// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the structured logger.

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		" ERROR ": LevelError,
		"verbose": LevelInfo, // unknown defaults to info
		"":        LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		LogDir:  dir,
		Service: "scheduler",
		Quiet:   true,
	})
	logger.Info("job run finished", "job_id", "forecast_collection")
	require.NoError(t, logger.Close())

	path := filepath.Join(dir,
		fmt.Sprintf("scheduler_%s.log", time.Now().Format("2006-01-02")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"msg":"job run finished"`)
	assert.Contains(t, string(data), `"service":"scheduler"`)
	assert.Contains(t, string(data), `"job_id":"forecast_collection"`)
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:  LevelWarn,
		LogDir: dir,
		Quiet:  true,
	})
	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Close())

	path := filepath.Join(dir,
		fmt.Sprintf("windward_%s.log", time.Now().Format("2006-01-02")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestWithAttachesAttributes(t *testing.T) {
	dir := t.TempDir()
	parent := New(Config{LogDir: dir, Service: "ingest", Quiet: true})
	child := parent.With("source", "ffvl")
	child.Info("fetched page")
	require.NoError(t, parent.Close())

	path := filepath.Join(dir,
		fmt.Sprintf("ingest_%s.log", time.Now().Format("2006-01-02")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source":"ffvl"`)
}

func TestCloseIsIdempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	// A logger without a file has nothing to close.
	require.NoError(t, New(Config{Quiet: true}).Close())
}
