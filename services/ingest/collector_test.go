// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// Shared test fixtures for the collector suite.

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/windward/pkg/httpx"
	"github.com/AleutianAI/windward/pkg/logging"
)

// testDeps builds Deps with a quiet logger and a single-attempt retry
// policy so failing tests do not sit in backoff sleeps.
func testDeps() *Deps {
	return &Deps{
		Logger:   logging.New(logging.Config{Quiet: true}),
		Limiters: httpx.NewLimiterRegistry(),
		Breakers: httpx.NewBreakerRegistry(httpx.DefaultBreakerConfig()),
		Retry: httpx.RetryConfig{
			Attempts:  1,
			BaseDelay: time.Millisecond,
			MaxDelay:  time.Millisecond,
		},
	}
}

func testParameters() map[string]int64 {
	return map[string]int64{
		ParamWindSpeed:     1,
		ParamWindDirection: 2,
		ParamTemperature:   3,
	}
}

func TestCollector_AbsentCapabilitiesReturnNil(t *testing.T) {
	c := &Collector{Name: "forecast-only"}

	assert.Nil(t, c.Observations(context.Background(), ObservationRequest{}))
	assert.Nil(t, c.Forecasts(context.Background(), ForecastRequest{}))
}

// The gridded-model API grants 50 requests a minute; the beacon pages
// are scraped and get the polite 2-second spacing.
func TestCollector_DefaultRateIntervals(t *testing.T) {
	deps := testDeps()

	assert.Equal(t, 1200*time.Millisecond,
		NewAromeCollector(AromeConfig{}, deps).RateInterval)
	assert.Equal(t, 2*time.Second,
		NewFFVLCollector(FFVLConfig{}, deps).RateInterval)
	assert.Equal(t, 2*time.Second,
		NewRommaCollector(RommaConfig{}, deps).RateInterval)
}

func TestCollector_InRange(t *testing.T) {
	c := &Collector{ValidationRanges: map[string]Range{
		ParamWindSpeed: {Min: 0, Max: 150},
	}}

	assert.True(t, c.inRange(ParamWindSpeed, 0))
	assert.True(t, c.inRange(ParamWindSpeed, 150))
	assert.False(t, c.inRange(ParamWindSpeed, -0.1))
	assert.False(t, c.inRange(ParamWindSpeed, 150.1))
	assert.True(t, c.inRange("unbounded_parameter", 1e9))
}
