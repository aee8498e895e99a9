// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package platform identifies which voice-agent framework produced a
// session's spans and which span names that framework uses for a
// conversational turn.
//
// Platforms form a closed set. Detection inspects the instrumentation
// scope name first, then attribute key prefixes; a span set with no
// recognizable signal belongs to Pipecat, the baseline.
package platform
