// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"
)

// Manifest is the finalized summary of a session. Its JSON form is a
// stable contract read by every listing and detail path; nullable
// fields marshal as null rather than being omitted.
type Manifest struct {
	SessionID   string       `json:"session_id"`
	ServiceName *string      `json:"service_name"`
	StartTime   *float64     `json:"start_time"`
	EndTime     *float64     `json:"end_time"`
	DurationMS  *float64     `json:"duration_ms"`
	AudioSizeMB *int64       `json:"audio_size_mb"`
	Trace       TraceSummary `json:"trace"`
	LogCount    int          `json:"log_count"`
}

type TraceSummary struct {
	TurnCount int `json:"turn_count"`
}

const bytesPerMiB = 1024 * 1024

// NewManifest converts a snapshot into a manifest.
func NewManifest(snapshot Snapshot) Manifest {
	manifest := Manifest{
		SessionID: snapshot.SessionID,
		Trace:     TraceSummary{TurnCount: snapshot.TurnCount},
		LogCount:  snapshot.LogCount,
	}
	if snapshot.ServiceName != "" {
		name := snapshot.ServiceName
		manifest.ServiceName = &name
	}
	if start, ok := snapshot.StartTime(); ok {
		manifest.StartTime = &start
	}
	if end, ok := snapshot.EndTime(); ok {
		manifest.EndTime = &end
	}
	if duration, ok := snapshot.DurationMS(); ok {
		manifest.DurationMS = &duration
	}
	if snapshot.HasAudio {
		mib := snapshot.AudioBytes / bytesPerMiB
		manifest.AudioSizeMB = &mib
	}
	return manifest
}

// StartSeconds returns the start time or 0 when absent. Listings sort
// on this value.
func (m Manifest) StartSeconds() float64 {
	if m.StartTime == nil {
		return 0
	}
	return *m.StartTime
}

// Canonical returns the RFC 8785 canonical JSON encoding of m.
func (m Manifest) Canonical() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize manifest: %w", err)
	}
	return canonical, nil
}

// ParseManifest validates data against the manifest schema and decodes
// it.
func ParseManifest(data []byte) (Manifest, error) {
	if err := ValidateManifest(data); err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}

// ReadManifest loads and validates path.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return manifest, nil
}

// WriteManifest writes m atomically into the session directory: the
// bytes go to a temporary file in the same directory, are fsynced, and
// are renamed into place. Readers observe either no manifest or a
// complete one.
func WriteManifest(dir Dir, m Manifest) error {
	data, err := m.Canonical()
	if err != nil {
		return err
	}
	return writeFileAtomic(dir.ManifestPath(), data, 0o644)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	temporaryPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("write temporary file: %w", err)
	}
	if err := file.Chmod(mode); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("chmod temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("sync temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("close temporary file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("rename into place: %w", err)
	}

	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

//go:embed manifest.schema.json
var manifestSchemaJSON []byte

var compileManifestSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(manifestSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return schema, nil
})

// ValidateManifest checks data against the embedded manifest schema.
func ValidateManifest(data []byte) error {
	schema, err := compileManifestSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("manifest schema validation failed: %v", result.Errors)
}
