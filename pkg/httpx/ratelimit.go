// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpx

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum inter-request interval for one upstream
// source. It wraps a token bucket with a single token so that two
// concurrent callers can never dispatch closer together than the
// interval.
//
// # Thread Safety
//
// Limiter is safe to share across concurrent requests for a source.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a limiter with the given minimum interval between
// requests. A non-positive interval disables limiting.
func NewLimiter(interval time.Duration) *Limiter {
	if interval <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next request may be dispatched, or until ctx
// is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// LimiterRegistry holds one limiter per source name, created on demand.
// Process-wide; collectors share the registry so the per-source
// rate-limit invariant holds even when sources overlap in time.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewLimiterRegistry creates an empty registry.
func NewLimiterRegistry() *LimiterRegistry {
	return &LimiterRegistry{limiters: make(map[string]*Limiter)}
}

// Get returns the limiter for a source, creating it with the given
// interval if needed. The interval of an existing limiter is not
// changed.
func (r *LimiterRegistry) Get(source string, interval time.Duration) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[source]; ok {
		return l
	}
	l := NewLimiter(interval)
	r.limiters[source] = l
	return l
}
