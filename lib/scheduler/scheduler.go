// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/finchvox/finchvox/lib/clock"
)

// DefaultInterval is the pass interval used when none is configured.
const DefaultInterval = time.Minute

// Scheduler drives a Runner from a single ticker.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(runner *Runner, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{runner: runner, interval: interval, clock: clk, logger: logger}
}

// Start launches the loop. A loop that is already running is stopped
// first, so there is never more than one ticker. The first pass runs
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	// The ticker exists once Start returns.
	ticker := s.clock.NewTicker(s.interval)
	go s.loop(loopCtx, ticker, s.done)
	s.logger.Info("finalization scheduler started", "interval", s.interval)
}

func (s *Scheduler) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	// Passes run to completion even when the loop is cancelled
	// mid-pass; cancellation only prevents the next one.
	passCtx := context.WithoutCancel(ctx)
	s.runner.RunFinalizationPass(passCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.runner.RunFinalizationPass(passCtx)
		}
	}
}

// Stop cancels the loop and waits for an in-flight pass to finish.
// Stopping a scheduler that is not running is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	s.logger.Info("finalization scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Runner returns the runner the scheduler drives.
func (s *Scheduler) Runner() *Runner { return s.runner }
