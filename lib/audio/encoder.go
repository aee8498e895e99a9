// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Encoder transcodes a WAV file into a compressed voice codec.
type Encoder interface {
	// Available reports whether the encoder can run. Implementations
	// may cache the answer; it must be safe to call concurrently.
	Available(ctx context.Context) bool

	// Encode transcodes input into output, overwriting output.
	Encode(ctx context.Context, input, output string) error

	// Extension is the output file extension, including the dot.
	Extension() string
}

// FFmpeg encodes to Opus by shelling out to ffmpeg.
type FFmpeg struct {
	// Binary is the executable name or path. Defaults to "ffmpeg".
	Binary string

	// Bitrate is passed to -b:a. Defaults to "32k".
	Bitrate string

	logger *slog.Logger

	probeOnce sync.Once
	available bool
}

// NewFFmpeg returns an FFmpeg encoder. Empty arguments select the
// defaults.
func NewFFmpeg(binary, bitrate string, logger *slog.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "32k"
	}
	return &FFmpeg{Binary: binary, Bitrate: bitrate, logger: logger}
}

// Available runs "ffmpeg -version" on first use and caches the result
// for the lifetime of f.
func (f *FFmpeg) Available(ctx context.Context) bool {
	f.probeOnce.Do(func() {
		err := exec.CommandContext(ctx, f.Binary, "-version").Run()
		f.available = err == nil
		if f.available {
			f.logger.Info("ffmpeg detected, audio compression enabled", "binary", f.Binary)
		} else {
			f.logger.Warn("ffmpeg not found, audio will not be compressed", "binary", f.Binary, "error", err)
		}
	})
	return f.available
}

func (f *FFmpeg) Extension() string { return ".opus" }

// Encode runs ffmpeg with the libopus voice profile.
func (f *FFmpeg) Encode(ctx context.Context, input, output string) error {
	command := exec.CommandContext(ctx, f.Binary,
		"-y",
		"-i", input,
		"-c:a", "libopus",
		"-b:a", f.Bitrate,
		"-application", "voip",
		output,
	)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if index := strings.LastIndexByte(s, '\n'); index >= 0 {
		return s[index+1:]
	}
	return s
}
