// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control serves the on-demand trigger socket of a running
// finchvox process.
//
// The protocol is one CBOR request and one CBOR response per
// connection. A request is a map with an "action" key plus
// action-specific fields; a response is {ok, error?, data?}. The
// actions are:
//
//	status    scheduler state and counters
//	pending   sessions eligible for finalization right now
//	pass      run one finalization pass immediately
//	finalize  finalize one session, bypassing eligibility
//
// pass and finalize go through the same Runner as scheduled ticks and
// therefore never overlap one.
//
// On Linux the server rejects peers whose UID differs from its own.
package control
