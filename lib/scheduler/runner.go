// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/finchvox/finchvox/lib/clock"
	"github.com/finchvox/finchvox/lib/metrics"
	"github.com/finchvox/finchvox/lib/session"
)

// SessionFinalizer finalizes one session. *finalizer.Finalizer
// satisfies it.
type SessionFinalizer interface {
	Finalize(ctx context.Context, sessionID string) bool
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	SessionsDir string
	Finalizer   SessionFinalizer
	Reader      *session.Reader
	Thresholds  Thresholds
	Clock       clock.Clock
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Runner evaluates and finalizes sessions. Passes and single-session
// finalizations are serialized by one mutex, so a timer tick and an
// on-demand trigger never act on the session set at the same time.
type Runner struct {
	sessionsDir string
	finalizer   SessionFinalizer
	reader      *session.Reader
	thresholds  Thresholds
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu sync.Mutex

	passes       atomic.Uint64
	finalized    atomic.Uint64
	failed       atomic.Uint64
	lastPassUnix atomic.Int64
}

func NewRunner(options RunnerOptions) *Runner {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Reader == nil {
		options.Reader = session.NewReader(options.Logger)
	}
	return &Runner{
		sessionsDir: options.SessionsDir,
		finalizer:   options.Finalizer,
		reader:      options.Reader,
		thresholds:  options.Thresholds,
		clock:       options.Clock,
		metrics:     options.Metrics,
		logger:      options.Logger,
	}
}

// FindSessionsToFinalize returns the sessions eligible right now.
func (r *Runner) FindSessionsToFinalize() ([]string, error) {
	return FindSessionsToFinalize(r.sessionsDir, r.clock.Now(), r.thresholds, r.reader)
}

// Evaluate returns the current decision for every session.
func (r *Runner) Evaluate() ([]Decision, error) {
	return EvaluateAll(r.sessionsDir, r.clock.Now(), r.thresholds, r.reader)
}

// RunFinalizationPass finalizes every eligible session sequentially and
// returns how many succeeded. A cancelled context stops the pass
// between sessions.
func (r *Runner) RunFinalizationPass(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	eligible, err := r.FindSessionsToFinalize()
	if err != nil {
		r.logger.Error("scanning sessions failed", "dir", r.sessionsDir, "error", err)
		return 0
	}
	if len(eligible) > 0 {
		r.logger.Info("finalization pass starting", "eligible", len(eligible))
	}

	succeeded := 0
	for _, sessionID := range eligible {
		if ctx.Err() != nil {
			r.logger.Info("finalization pass cancelled", "remaining", len(eligible)-succeeded)
			break
		}
		if r.finalize(ctx, sessionID) {
			succeeded++
		}
	}

	r.passes.Add(1)
	r.lastPassUnix.Store(r.clock.Now().Unix())
	r.metrics.ObservePass(len(eligible))
	if len(eligible) > 0 {
		r.logger.Info("finalization pass complete", "finalized", succeeded, "eligible", len(eligible))
	}
	return succeeded
}

// FinalizeSession finalizes one session on demand, bypassing the
// eligibility rules.
func (r *Runner) FinalizeSession(ctx context.Context, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalize(ctx, sessionID)
}

func (r *Runner) finalize(ctx context.Context, sessionID string) bool {
	if r.finalizer.Finalize(ctx, sessionID) {
		r.finalized.Add(1)
		return true
	}
	r.failed.Add(1)
	return false
}

// Stats is a snapshot of the runner's counters.
type Stats struct {
	Passes    uint64
	Finalized uint64
	Failed    uint64

	// LastPass is zero before the first pass completes.
	LastPass time.Time
}

func (r *Runner) Stats() Stats {
	stats := Stats{
		Passes:    r.passes.Load(),
		Finalized: r.finalized.Load(),
		Failed:    r.failed.Load(),
	}
	if unix := r.lastPassUnix.Load(); unix != 0 {
		stats.LastPass = time.Unix(unix, 0)
	}
	return stats
}
