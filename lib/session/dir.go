// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// File names inside a session directory that do not embed the ID.
const (
	ManifestName   = "manifest.json"
	AudioDirName   = "audio"
	OpusName       = "audio.opus"
	WAVName        = "audio.wav"
	MergedWAVName  = "audio_merged.wav"
	chunkExtension = ".wav"
)

var chunkPattern = regexp.MustCompile(`^chunk_(\d+)\.wav$`)

// Dir locates one session on disk.
type Dir struct {
	ID   string
	Path string
}

// Open returns the Dir for id under sessionsDir. It does not touch the
// filesystem.
func Open(sessionsDir, id string) Dir {
	return Dir{ID: id, Path: filepath.Join(sessionsDir, id)}
}

// ValidateID rejects IDs that cannot be used as a single path segment.
func ValidateID(id string) error {
	if id == "" {
		return errors.New("session ID is empty")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("session ID %q is not a valid path segment", id)
	}
	return nil
}

func (d Dir) TracePath() string       { return filepath.Join(d.Path, "trace_"+d.ID+".jsonl") }
func (d Dir) LogsPath() string        { return filepath.Join(d.Path, "logs_"+d.ID+".jsonl") }
func (d Dir) EnvironmentPath() string { return filepath.Join(d.Path, "environment_"+d.ID+".json") }
func (d Dir) ManifestPath() string { return filepath.Join(d.Path, ManifestName) }
func (d Dir) AudioDir() string     { return filepath.Join(d.Path, AudioDirName) }
func (d Dir) OpusPath() string     { return filepath.Join(d.Path, OpusName) }
func (d Dir) WAVPath() string      { return filepath.Join(d.Path, WAVName) }
func (d Dir) MergedPath() string   { return filepath.Join(d.Path, MergedWAVName) }

// Exists reports whether the session directory is present.
func (d Dir) Exists() bool {
	info, err := os.Stat(d.Path)
	return err == nil && info.IsDir()
}

// Finalized reports whether manifest.json is present.
func (d Dir) Finalized() bool {
	_, err := os.Stat(d.ManifestPath())
	return err == nil
}

// Artifact returns the path of the merged audio artifact, preferring
// Opus over WAV, or "" when neither exists.
func (d Dir) Artifact() string {
	for _, path := range []string{d.OpusPath(), d.WAVPath()} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Chunk is one raw audio fragment written while the session was live.
type Chunk struct {
	Sequence int
	Path     string
}

// Chunks lists the session's audio chunks ordered by numeric sequence.
// A missing audio directory yields no chunks and no error. Sidecar
// metadata and any other files in the directory are ignored.
func (d Dir) Chunks() ([]Chunk, error) {
	entries, err := os.ReadDir(d.AudioDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading audio directory: %w", err)
	}

	var chunks []Chunk
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != chunkExtension {
			continue
		}
		match := chunkPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		sequence, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		chunks = append(chunks, Chunk{
			Sequence: sequence,
			Path:     filepath.Join(d.AudioDir(), entry.Name()),
		})
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Sequence < chunks[j].Sequence
	})
	return chunks, nil
}

// AudioBytes returns the on-disk size of the session's audio: the
// merged artifact when one exists, otherwise the sum of chunk sizes.
// ok is false when the session has no audio at all.
func (d Dir) AudioBytes() (size int64, ok bool) {
	if artifact := d.Artifact(); artifact != "" {
		if info, err := os.Stat(artifact); err == nil {
			return info.Size(), true
		}
	}
	chunks, err := d.Chunks()
	if err != nil || len(chunks) == 0 {
		return 0, false
	}
	for _, chunk := range chunks {
		info, err := os.Stat(chunk.Path)
		if err != nil {
			continue
		}
		size += info.Size()
	}
	return size, true
}

// List returns the IDs of all session directories under sessionsDir.
// A missing sessionsDir yields an empty list.
func List(sessionsDir string) ([]string, error) {
	entries, err := os.ReadDir(sessionsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sessions directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

// ShortID truncates a session ID for log output.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
