// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for finchvox packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so tests never block forever on a channel. They are the
// only place tests use wall-clock time; everything else runs on
// lib/clock's fake.
//
// [SocketDir] returns a short /tmp directory for Unix sockets, whose
// paths are limited to 108 bytes.
//
// The fixture helpers ([WriteLines], [WriteJSONL], [WriteWAV],
// [SetModTime]) build session directories the way the ingestion writers
// would leave them.
//
// All helpers call t.Fatalf on failure.
package testutil
