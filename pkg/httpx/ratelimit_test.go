// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the per-source rate limiter.

package httpx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_EnforcesInterval(t *testing.T) {
	l := NewLimiter(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond,
		"second dispatch must wait out the interval")
}

func TestLimiter_ZeroIntervalDisablesLimiting(t *testing.T) {
	l := NewLimiter(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_CancelReleasesWait(t *testing.T) {
	l := NewLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Wait(ctx))
	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not release on cancellation")
	}
}

func TestLimiterRegistry_SharedPerSource(t *testing.T) {
	r := NewLimiterRegistry()
	a := r.Get("ffvl", 2*time.Second)
	b := r.Get("ffvl", 5*time.Second)
	assert.Same(t, a, b, "the first interval wins for a source")
	assert.NotSame(t, a, r.Get("romma", 2*time.Second))
}
