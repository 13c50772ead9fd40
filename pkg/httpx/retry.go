// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpx

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrRetryExhausted is returned when all retry attempts fail. Use
// errors.Is to detect it and errors.Unwrap (or %w formatting) to reach
// the last underlying error.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryConfig controls the retry wrapper.
type RetryConfig struct {
	// Attempts is the total number of tries, first call included.
	// Default: 3
	Attempts int

	// BaseDelay is the first backoff delay; attempt k waits
	// BaseDelay * 2^(k-1). Default: 500ms
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff. Default: 10s
	MaxDelay time.Duration

	// Jitter adds randomness to backoff in the range (0.0-1.0).
	// Default: 0 (deterministic, kept at 0 in tests)
	Jitter float64

	// Retryable decides whether an error is worth retrying.
	// Nil means every error is retryable.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the collector defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Jitter:    0.25,
	}
}

// Retry runs fn up to cfg.Attempts times with exponential backoff.
//
// The backoff sleep is context-cancellable; cancellation of ctx itself
// surfaces as ctx.Err() immediately. The caller's context is the only
// cancellation that stops the loop: fn's own error is never inspected
// for context sentinels, because a per-attempt timeout inside fn
// (http.Client.Timeout matches context.DeadlineExceeded) is exactly
// the kind of failure a retry can recover. Non-retryable errors (per
// cfg.Retryable) short-circuit the loop. On exhaustion the last error
// is wrapped so that errors.Is(err, ErrRetryExhausted) holds.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffDelay(cfg, attempt)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.Attempts, lastErr)
}

// backoffDelay computes the delay before the given attempt (1-based
// for the first retry).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		spread := float64(delay) * cfg.Jitter
		delay += time.Duration((rand.Float64()*2 - 1) * spread)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}
