// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scheduler owns the collection job schedule: cron entries on
// UTC hour lists, one instance per job, and a manual trigger for the
// admin surface.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AleutianAI/windward/pkg/logging"
)

// JobFunc is one job body. The context is the scheduler's lifetime
// context; shutdown cancels it after in-flight runs are given a chance
// to finish.
type JobFunc func(ctx context.Context)

// JobInfo is a snapshot of one scheduled job for the admin surface.
type JobInfo struct {
	ID       string    `json:"id"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
	PrevRun  time.Time `json:"prev_run,omitempty"`
}

type job struct {
	id       string
	schedule string
	entryID  cron.EntryID
	wrapped  cron.Job
}

// Scheduler is the process-wide job scheduler. All schedules are
// interpreted in UTC. Each job runs at most one instance at a time;
// fires that land while the previous run is still going are skipped,
// which also coalesces missed fires after a stall.
//
// # Thread Safety
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	cron   *cron.Cron
	logger *logging.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a stopped scheduler bound to ctx; cancelling ctx cancels
// every job's context.
func New(ctx context.Context, logger *logging.Logger) *Scheduler {
	jobCtx, cancel := context.WithCancel(ctx)
	cronLogger := cron.PrintfLogger(printfAdapter{logger})
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		logger: logger,
		jobs:   make(map[string]*job),
		ctx:    jobCtx,
		cancel: cancel,
	}
}

// printfAdapter exposes the structured logger to cron's Printf-shaped
// logging interface.
type printfAdapter struct{ l *logging.Logger }

func (p printfAdapter) Printf(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

// Register schedules fn at the given UTC hours (minute 0). Hours must
// be distinct values in [0, 23].
func (s *Scheduler) Register(id string, utcHours []int, fn JobFunc) error {
	spec, err := hourSpec(utcHours)
	if err != nil {
		return fmt.Errorf("job %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[id]; dup {
		return fmt.Errorf("job %s already registered", id)
	}

	// SkipIfStillRunning enforces one instance per job and coalesces
	// fires that pile up behind a slow run.
	wrapped := cron.NewChain(
		cron.SkipIfStillRunning(cron.PrintfLogger(printfAdapter{s.logger})),
	).Then(cron.FuncJob(func() { fn(s.ctx) }))

	entryID, err := s.cron.AddJob(spec, wrapped)
	if err != nil {
		return fmt.Errorf("job %s: add cron entry: %w", id, err)
	}
	s.jobs[id] = &job{id: id, schedule: spec, entryID: entryID, wrapped: wrapped}
	s.order = append(s.order, id)
	s.logger.Info("job registered", "job_id", id, "schedule", spec)
	return nil
}

// Start begins firing schedules. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop stops firing new runs and returns immediately; in-flight runs
// keep their context and are allowed to finish. Cancelling the context
// passed to New is the hard-stop path.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// Shutdown stops the schedule and cancels every job context.
func (s *Scheduler) Shutdown() {
	s.Stop()
	s.cancel()
}

// Running reports whether schedules are firing.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Jobs returns a snapshot of every registered job in registration
// order.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, id := range s.order {
		j := s.jobs[id]
		entry := s.cron.Entry(j.entryID)
		out = append(out, JobInfo{
			ID:       j.id,
			Schedule: j.schedule,
			NextRun:  entry.Next,
			PrevRun:  entry.Prev,
		})
	}
	return out
}

// Trigger runs a job immediately in its own goroutine, through the
// same single-instance chain as scheduled fires. Unknown ids error.
func (s *Scheduler) Trigger(id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", id)
	}
	s.logger.Info("job triggered manually", "job_id", id)
	go j.wrapped.Run()
	return nil
}

// hourSpec renders a UTC hour list as a five-field cron spec.
func hourSpec(hours []int) (string, error) {
	if len(hours) == 0 {
		return "", fmt.Errorf("empty hour list")
	}
	seen := make(map[int]struct{}, len(hours))
	sorted := append([]int(nil), hours...)
	sort.Ints(sorted)

	parts := make([]string, 0, len(sorted))
	for _, h := range sorted {
		if h < 0 || h > 23 {
			return "", fmt.Errorf("hour %d out of range", h)
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		parts = append(parts, strconv.Itoa(h))
	}
	return "0 " + strings.Join(parts, ",") + " * * *", nil
}
