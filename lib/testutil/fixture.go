// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SocketDir creates a short-path temporary directory for socket files
// and removes it when the test ends.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "finchvox-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// WriteLines writes each line followed by a newline, creating parent
// directories.
func WriteLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	var builder strings.Builder
	for _, line := range lines {
		builder.WriteString(line)
		builder.WriteByte('\n')
	}
	WriteFile(t, path, []byte(builder.String()))
}

// WriteJSONL marshals each record onto its own line.
func WriteJSONL(t *testing.T, path string, records ...any) {
	t.Helper()
	lines := make([]string, len(records))
	for i, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			t.Fatalf("marshaling record %d for %s: %v", i, path, err)
		}
		lines[i] = string(data)
	}
	WriteLines(t, path, lines...)
}

// WriteFile writes data, creating parent directories.
func WriteFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// WriteWAV writes a 16-bit PCM WAV file holding samples (interleaved
// when channels > 1).
func WriteWAV(t *testing.T, path string, sampleRate, channels int, samples []int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer file.Close()

	encoder := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buffer); err != nil {
		t.Fatalf("writing samples to %s: %v", path, err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("closing %s: %v", path, err)
	}
}

// ReadWAV decodes a PCM WAV file and returns its sample rate, channel
// count, and samples.
func ReadWAV(t *testing.T, path string) (sampleRate, channels int, samples []int) {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return int(decoder.SampleRate), int(decoder.NumChans), buffer.Data
}

// SetModTime sets both atime and mtime of path.
func SetModTime(t *testing.T, path string, modTime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("setting mtime on %s: %v", path, err)
	}
}

// RequireExists fails the test unless path exists.
func RequireExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

// RequireMissing fails the test if path exists.
func RequireMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("expected %s not to exist", path)
	} else if !os.IsNotExist(err) {
		t.Fatalf("stat %s: %v", path, err)
	}
}
