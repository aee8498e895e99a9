// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import "strings"

// Platform is a voice-agent framework whose spans finchvox understands.
type Platform uint8

const (
	// Pipecat is the baseline platform, assumed when no other
	// platform's signal is present.
	Pipecat Platform = iota

	// LiveKit is the LiveKit Agents framework.
	LiveKit
)

// String returns the platform's lowercase identifier.
func (p Platform) String() string {
	switch p {
	case LiveKit:
		return "livekit"
	default:
		return "pipecat"
	}
}

const (
	liveKitScopeName       = "livekit-agents"
	liveKitAttributePrefix = "lk."
)

var turnSpanNames = map[Platform][]string{
	Pipecat: {"turn"},
	LiveKit: {"user_turn", "agent_turn"},
}

// TurnSpanNames returns the span names that mark a conversational turn
// on p. The returned slice must not be modified.
func (p Platform) TurnSpanNames() []string {
	return turnSpanNames[p]
}

// IsTurn reports whether a span named name is a turn on p.
func (p Platform) IsTurn(name string) bool {
	for _, candidate := range turnSpanNames[p] {
		if candidate == name {
			return true
		}
	}
	return false
}

// Signals is the per-span evidence Detect looks at.
type Signals struct {
	ScopeName     string
	AttributeKeys []string
}

// Detect returns the platform indicated by the first span carrying a
// platform signal, or Pipecat when none does.
func Detect(spans []Signals) Platform {
	for _, span := range spans {
		if Classify(span) == LiveKit {
			return LiveKit
		}
	}
	return Pipecat
}

// Classify inspects a single span. Scope name wins over attribute keys.
func Classify(span Signals) Platform {
	if span.ScopeName == liveKitScopeName {
		return LiveKit
	}
	for _, key := range span.AttributeKeys {
		if strings.HasPrefix(key, liveKitAttributePrefix) {
			return LiveKit
		}
	}
	return Pipecat
}
