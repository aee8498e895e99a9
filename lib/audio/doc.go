// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package audio turns a session's raw PCM chunks into one durable
// artifact.
//
// [Merge] concatenates chunk WAV files at the sample-frame level in
// sequence order, using the first chunk's sample rate, bit depth, and
// channel count. Chunks are assumed homogeneous; mixed formats produce
// garbled output and are not detected.
//
// [Compressor] transcodes the merged WAV with an external [Encoder]
// (ffmpeg in production). The encoder's availability is probed once per
// Encoder value and cached, so a newly installed ffmpeg is only noticed
// after a restart.
//
// [Pipeline.Finalize] runs the whole per-session step: merge, compress
// or fall back to WAV, then drop the chunk directory. When it returns,
// the session holds either audio/ or one artifact, never both.
package audio
