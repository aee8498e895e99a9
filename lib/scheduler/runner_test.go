// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/finchvox/finchvox/lib/clock"
	"github.com/finchvox/finchvox/lib/metrics"
)

func TestRunFinalizationPassCountsSuccesses(t *testing.T) {
	f := newFixture(t)
	f.live("good", 10*time.Minute, false)
	f.live("bad", 10*time.Minute, false)
	f.live("fresh", time.Second, false)

	finalizer := newRecordingFinalizer()
	finalizer.result = func(id string) bool { return id == "good" }
	m := metrics.New()
	runner := NewRunner(RunnerOptions{
		SessionsDir: f.root,
		Finalizer:   finalizer,
		Reader:      quietReader(),
		Thresholds:  testThresholds,
		Clock:       clock.Fake(testNow),
		Metrics:     m,
		Logger:      quietLogger(),
	})

	if got := runner.RunFinalizationPass(context.Background()); got != 1 {
		t.Errorf("RunFinalizationPass = %d, want 1", got)
	}
	stats := runner.Stats()
	if stats.Passes != 1 || stats.Finalized != 1 || stats.Failed != 1 {
		t.Errorf("Stats = %+v", stats)
	}
	if !stats.LastPass.Equal(testNow) {
		t.Errorf("LastPass = %v, want %v", stats.LastPass, testNow)
	}
	if got := testutil.ToFloat64(m.SessionsPending); got != 2 {
		t.Errorf("pending gauge = %v, want 2", got)
	}
}

func TestRunFinalizationPassEmpty(t *testing.T) {
	finalizer := newRecordingFinalizer()
	runner := NewRunner(RunnerOptions{
		SessionsDir: t.TempDir() + "/absent",
		Finalizer:   finalizer,
		Thresholds:  testThresholds,
		Clock:       clock.Fake(testNow),
		Logger:      quietLogger(),
	})
	if got := runner.RunFinalizationPass(context.Background()); got != 0 {
		t.Errorf("RunFinalizationPass = %d, want 0", got)
	}
	if runner.Stats().Passes != 1 {
		t.Error("an empty pass was not counted")
	}
}

func TestRunFinalizationPassHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	f.live("one", 10*time.Minute, false)
	f.live("two", 10*time.Minute, false)

	finalizer := newRecordingFinalizer()
	runner := NewRunner(RunnerOptions{
		SessionsDir: f.root,
		Finalizer:   finalizer,
		Reader:      quietReader(),
		Thresholds:  testThresholds,
		Clock:       clock.Fake(testNow),
		Logger:      quietLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := runner.RunFinalizationPass(ctx); got != 0 {
		t.Errorf("RunFinalizationPass = %d with a cancelled context, want 0", got)
	}
}

func TestFinalizeSessionBypassesEligibility(t *testing.T) {
	f := newFixture(t)
	f.live("fresh", time.Second, false)

	finalizer := newRecordingFinalizer()
	runner := NewRunner(RunnerOptions{
		SessionsDir: f.root,
		Finalizer:   finalizer,
		Thresholds:  testThresholds,
		Clock:       clock.Fake(testNow),
		Logger:      quietLogger(),
	})
	if !runner.FinalizeSession(context.Background(), "fresh") {
		t.Fatal("FinalizeSession returned false")
	}
	if got := <-finalizer.calls; got != "fresh" {
		t.Errorf("finalized %q", got)
	}
}
