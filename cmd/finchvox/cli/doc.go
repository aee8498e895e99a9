// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the finchvox
// binary: a [Command] tree dispatched by the first positional
// argument, pflag flag sets generated from tagged parameter structs,
// typo suggestions for commands and flags, a terminal-aware slog
// logger, and lipgloss rendering for the startup banner and storage
// troubleshooting output.
package cli
