// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finchvox/finchvox/lib/codec"
	"github.com/finchvox/finchvox/lib/scheduler"
	"github.com/finchvox/finchvox/lib/session"
)

const (
	ActionStatus   = "status"
	ActionPending  = "pending"
	ActionPass     = "pass"
	ActionFinalize = "finalize"
)

// Runner is the part of *scheduler.Runner the actions drive.
type Runner interface {
	RunFinalizationPass(ctx context.Context) int
	FinalizeSession(ctx context.Context, sessionID string) bool
	Evaluate() ([]scheduler.Decision, error)
	Stats() scheduler.Stats
}

type StatusResponse struct {
	Running   bool      `cbor:"running"`
	Passes    uint64    `cbor:"passes"`
	Finalized uint64    `cbor:"finalized"`
	Failed    uint64    `cbor:"failed"`
	LastPass  time.Time `cbor:"last_pass"`
}

type PendingSession struct {
	SessionID       string    `cbor:"session_id"`
	State           string    `cbor:"state"`
	Eligible        bool      `cbor:"eligible"`
	LastActivity    time.Time `cbor:"last_activity"`
	InactiveSeconds float64   `cbor:"inactive_seconds"`
	Reason          string    `cbor:"reason"`
}

type PendingResponse struct {
	Sessions []PendingSession `cbor:"sessions"`
}

type PassResponse struct {
	Finalized int `cbor:"finalized"`
}

type FinalizeResponse struct {
	SessionID string `cbor:"session_id"`
	Finalized bool   `cbor:"finalized"`
}

// Register wires the four actions to runner. running reports whether
// the periodic scheduler is active; it may be nil.
func Register(server *Server, runner Runner, running func() bool) {
	server.Handle(ActionStatus, func(context.Context, []byte) (any, error) {
		stats := runner.Stats()
		return StatusResponse{
			Running:   running != nil && running(),
			Passes:    stats.Passes,
			Finalized: stats.Finalized,
			Failed:    stats.Failed,
			LastPass:  stats.LastPass,
		}, nil
	})

	server.Handle(ActionPending, func(_ context.Context, raw []byte) (any, error) {
		var request struct {
			All bool `cbor:"all"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid pending request: %w", err)
		}
		decisions, err := runner.Evaluate()
		if err != nil {
			return nil, err
		}
		response := PendingResponse{Sessions: []PendingSession{}}
		for _, decision := range decisions {
			if !request.All && !decision.State.Eligible() {
				continue
			}
			response.Sessions = append(response.Sessions, PendingSession{
				SessionID:       decision.SessionID,
				State:           decision.State.String(),
				Eligible:        decision.State.Eligible(),
				LastActivity:    decision.LastActivity,
				InactiveSeconds: decision.Inactive.Seconds(),
				Reason:          decision.Reason,
			})
		}
		return response, nil
	})

	server.Handle(ActionPass, func(ctx context.Context, _ []byte) (any, error) {
		return PassResponse{Finalized: runner.RunFinalizationPass(ctx)}, nil
	})

	server.Handle(ActionFinalize, func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			SessionID string `cbor:"session_id"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid finalize request: %w", err)
		}
		if request.SessionID == "" {
			return nil, errors.New("missing required field: session_id")
		}
		if err := session.ValidateID(request.SessionID); err != nil {
			return nil, err
		}
		return FinalizeResponse{
			SessionID: request.SessionID,
			Finalized: runner.FinalizeSession(ctx, request.SessionID),
		}, nil
	})
}
