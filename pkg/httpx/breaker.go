// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpx

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
//
// # State Diagram
//
//	CLOSED ──[failures in window ≥ threshold]──► OPEN
//	   ▲                                          │
//	   │                                     [cooldown]
//	   └──────[success]◄── HALF_OPEN ◄────────────┘
//	                          │
//	                     [failure]──► OPEN (cooldown renewed)
type CircuitState int

const (
	// CircuitClosed is the normal operating state.
	CircuitClosed CircuitState = iota

	// CircuitOpen means the circuit has tripped and requests are rejected.
	CircuitOpen

	// CircuitHalfOpen means we're testing if the source has recovered.
	CircuitHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of failures within Window before
	// the circuit opens. Default: 5
	FailureThreshold int

	// Window is the sliding window over which failures are counted.
	// Default: 2 minutes
	Window time.Duration

	// Cooldown is how long the circuit stays open before allowing a
	// half-open probe. Default: 60 seconds
	Cooldown time.Duration

	// Clock allows tests to control time. Default: time.Now
	Clock func() time.Time
}

// DefaultBreakerConfig returns the collector defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           2 * time.Minute,
		Cooldown:         60 * time.Second,
	}
}

// BreakerStatus is an observability snapshot of one breaker.
type BreakerStatus struct {
	Name           string       `json:"name"`
	State          CircuitState `json:"-"`
	StateName      string       `json:"state"`
	Failures       int          `json:"failures"`
	LastTransition time.Time    `json:"last_transition"`
}

// Breaker implements the circuit breaker pattern for one
// (source, kind) pair.
//
// In CLOSED, failures are counted over a sliding window; reaching the
// threshold opens the circuit. In OPEN, calls fail immediately with
// ErrCircuitOpen until the cooldown elapses; the first call after that
// is a half-open probe. Probe success closes the circuit and resets the
// counters; probe failure re-opens it with a fresh cooldown.
//
// # Thread Safety
//
// Breaker is safe for concurrent use.
type Breaker struct {
	name   string
	config BreakerConfig

	mu             sync.Mutex
	state          CircuitState
	failures       []time.Time
	openedAt       time.Time
	lastTransition time.Time
	probing        bool
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(name string, config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Window <= 0 {
		config.Window = 2 * time.Minute
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 60 * time.Second
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Breaker{
		name:   name,
		config: config,
		state:  CircuitClosed,
	}
}

// Do runs fn if the circuit allows it and records the outcome.
// Returns ErrCircuitOpen without calling fn when the circuit is open.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.config.Clock()
	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if now.Sub(b.openedAt) >= b.config.Cooldown {
			b.transition(CircuitHalfOpen, now)
			b.probing = true
			return true
		}
		return false
	case CircuitHalfOpen:
		// Only one probe at a time; concurrent callers fail fast.
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.config.Clock()
	if b.state == CircuitHalfOpen {
		b.probing = false
		if err != nil {
			b.openedAt = now
			b.transition(CircuitOpen, now)
		} else {
			b.failures = b.failures[:0]
			b.transition(CircuitClosed, now)
		}
		return
	}

	if err == nil {
		return
	}

	b.failures = append(b.failures, now)
	b.prune(now)
	if b.state == CircuitClosed && len(b.failures) >= b.config.FailureThreshold {
		b.openedAt = now
		b.transition(CircuitOpen, now)
	}
}

// prune drops failures older than the sliding window.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.config.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

func (b *Breaker) transition(state CircuitState, now time.Time) {
	if b.state == state {
		return
	}
	b.state = state
	b.lastTransition = now
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status returns an observability snapshot.
func (b *Breaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.config.Clock())
	return BreakerStatus{
		Name:           b.name,
		State:          b.state,
		StateName:      b.state.String(),
		Failures:       len(b.failures),
		LastTransition: b.lastTransition,
	}
}

// BreakerRegistry manages circuit breakers keyed by (source, kind).
//
// # Thread Safety
//
// BreakerRegistry is safe for concurrent use.
type BreakerRegistry struct {
	defaultConfig BreakerConfig
	mu            sync.Mutex
	breakers      map[string]*Breaker
}

// NewBreakerRegistry creates a registry with a default configuration
// applied to breakers created on demand.
func NewBreakerRegistry(defaultConfig BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		defaultConfig: defaultConfig,
		breakers:      make(map[string]*Breaker),
	}
}

// Get returns the breaker for a (source, kind) pair, creating it if
// needed.
func (r *BreakerRegistry) Get(source, kind string) *Breaker {
	key := source + "/" + kind
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := NewBreaker(key, r.defaultConfig)
	r.breakers[key] = b
	return b
}

// Statuses returns a snapshot of every breaker, for the admin surface.
func (r *BreakerRegistry) Statuses() []BreakerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BreakerStatus, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Status())
	}
	return out
}
