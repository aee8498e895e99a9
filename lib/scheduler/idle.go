// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"os"
	"time"

	"github.com/finchvox/finchvox/lib/session"
)

// State is a session's lifecycle state as of one evaluation. It is
// recomputed on every pass and never persisted.
type State uint8

const (
	NotEligible State = iota
	RootSpanEnded
	InactivePastMin
	PastMaxThreshold
)

func (s State) String() string {
	switch s {
	case RootSpanEnded:
		return "root-span-ended"
	case InactivePastMin:
		return "inactive-past-min"
	case PastMaxThreshold:
		return "past-max-threshold"
	default:
		return "not-eligible"
	}
}

// Eligible reports whether the state qualifies for automatic
// finalization. Sessions past the maximum threshold are treated as
// abandoned and are not.
func (s State) Eligible() bool {
	return s == RootSpanEnded || s == InactivePastMin
}

// Thresholds bound the inactivity window.
type Thresholds struct {
	MinInactive time.Duration
	MaxInactive time.Duration
}

// Decision is the outcome of evaluating one session directory.
type Decision struct {
	SessionID    string
	State        State
	LastActivity time.Time
	Inactive     time.Duration
	Reason       string
}

// LastActivity returns the latest modification time across the trace
// file, the logs file, and every audio chunk. The zero time means none
// of them exist.
func LastActivity(dir session.Dir) time.Time {
	var latest time.Time
	consider := func(path string) {
		info, err := os.Stat(path)
		if err == nil && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	consider(dir.TracePath())
	consider(dir.LogsPath())
	if chunks, err := dir.Chunks(); err == nil {
		for _, chunk := range chunks {
			consider(chunk.Path)
		}
	}
	return latest
}

// Evaluate applies the eligibility rules in precedence order:
//
//  1. a manifest means the session is finalized
//  2. no trace file means there is nothing to finalize
//  3. inactivity beyond MaxInactive is abandonment
//  4. inactivity of at least MinInactive qualifies
//  5. otherwise only an ended root span qualifies
//
// The root span is read last because it requires scanning the trace.
func Evaluate(dir session.Dir, now time.Time, thresholds Thresholds, reader *session.Reader) Decision {
	decision := Decision{SessionID: dir.ID, State: NotEligible}

	if _, err := os.Stat(dir.ManifestPath()); err == nil {
		decision.Reason = "already finalized"
		return decision
	}
	if _, err := os.Stat(dir.TracePath()); err != nil {
		decision.Reason = "no trace file"
		return decision
	}

	decision.LastActivity = LastActivity(dir)
	decision.Inactive = now.Sub(decision.LastActivity)
	if decision.LastActivity.IsZero() {
		decision.Inactive = now.Sub(time.Unix(0, 0))
	}

	switch {
	case decision.Inactive > thresholds.MaxInactive:
		decision.State = PastMaxThreshold
		decision.Reason = "inactive beyond maximum threshold"
	case decision.Inactive >= thresholds.MinInactive:
		decision.State = InactivePastMin
		decision.Reason = "inactive past minimum threshold"
	case reader.RootSpanEnded(dir):
		decision.State = RootSpanEnded
		decision.Reason = "root span ended"
	default:
		decision.Reason = "still active"
	}
	return decision
}

// FindSessionsToFinalize evaluates every session under sessionsDir and
// returns the IDs that qualify, in directory order. A missing
// sessionsDir yields an empty result.
func FindSessionsToFinalize(sessionsDir string, now time.Time, thresholds Thresholds, reader *session.Reader) ([]string, error) {
	decisions, err := EvaluateAll(sessionsDir, now, thresholds, reader)
	if err != nil {
		return nil, err
	}
	eligible := []string{}
	for _, decision := range decisions {
		if decision.State.Eligible() {
			eligible = append(eligible, decision.SessionID)
		}
	}
	return eligible, nil
}

// EvaluateAll returns a Decision for every session directory.
func EvaluateAll(sessionsDir string, now time.Time, thresholds Thresholds, reader *session.Reader) ([]Decision, error) {
	ids, err := session.List(sessionsDir)
	if err != nil {
		return nil, err
	}
	decisions := make([]Decision, 0, len(ids))
	for _, id := range ids {
		decisions = append(decisions, Evaluate(session.Open(sessionsDir, id), now, thresholds, reader))
	}
	return decisions, nil
}
