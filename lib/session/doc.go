// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session reads the on-disk record of one voice-agent session
// and produces its manifest.
//
// A session is a directory named by its session ID under the sessions
// base directory:
//
//	<sessions>/<id>/
//	    trace_<id>.jsonl         span records, append-only
//	    logs_<id>.jsonl          log records, append-only
//	    exceptions_<id>.jsonl    exception records, append-only
//	    environment_<id>.json    one-shot environment snapshot
//	    audio/chunk_NNNN.wav     raw PCM chunks while live
//	    audio/chunk_NNNN.json    per-chunk sidecar metadata
//	    audio.opus | audio.wav   merged artifact after finalization
//	    manifest.json            written once, on finalization
//
// The ingestion path appends to these files while [Reader] scans them,
// so the reader treats every file as an unsorted bag of lines and
// tolerates a trailing line that is still being written. Derived values
// are recomputed on every call; nothing is cached.
//
// [Manifest] is the durable summary. Its presence in a directory is
// the signal that the session is finalized. [Export] and [Import]
// move a session directory in and out of a zip archive rooted at
// "<id>/".
package session
