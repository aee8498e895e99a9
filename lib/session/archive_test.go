// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/finchvox/finchvox/lib/testutil"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for name, content := range files {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return buffer.Bytes()
}

func TestExportImportRoundTrip(t *testing.T) {
	dir := newSessionDir(t)
	testutil.WriteJSONL(t, dir.TracePath(),
		span("session", "", 1000_000000000, 1900_000000000),
		span("turn", "aa11", 1100_000000000, 1200_000000000),
		span("turn", "aa11", 1300_000000000, 1400_000000000),
	)
	testutil.WriteLines(t, dir.LogsPath(), `{"n":1}`, `{"n":2}`)
	testutil.WriteFile(t, filepath.Join(dir.AudioDir(), "chunk_0001.wav"), make([]byte, 64))
	testutil.WriteFile(t, filepath.Join(dir.AudioDir(), "chunk_0001.json"), []byte(`{}`))

	reader := quietReader()
	before := NewManifest(reader.Read(dir))

	var archive bytes.Buffer
	digest, err := Export(&archive, dir)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(digest) != 64 {
		t.Errorf("digest %q is not a 32-byte hex hash", digest)
	}

	restored, err := Import(archive.Bytes(), t.TempDir())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if restored.ID != dir.ID {
		t.Errorf("imported ID = %q, want %q", restored.ID, dir.ID)
	}

	after := NewManifest(reader.Read(restored))
	if !reflect.DeepEqual(before, after) {
		t.Errorf("manifest changed across export/import:\nbefore %+v\nafter  %+v", before, after)
	}
	testutil.RequireExists(t, filepath.Join(restored.AudioDir(), "chunk_0001.json"))
}

func TestExportEntryNames(t *testing.T) {
	dir := newSessionDir(t)
	testutil.WriteLines(t, dir.TracePath(), `{}`)
	testutil.WriteFile(t, filepath.Join(dir.AudioDir(), "chunk_0001.wav"), []byte("x"))

	var archive bytes.Buffer
	if _, err := Export(&archive, dir); err != nil {
		t.Fatal(err)
	}
	reader, err := zip.NewReader(bytes.NewReader(archive.Bytes()), int64(archive.Len()))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, file := range reader.File {
		names = append(names, file.Name)
	}
	want := []string{
		testSessionID + "/audio/chunk_0001.wav",
		testSessionID + "/trace_" + testSessionID + ".jsonl",
	}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("entries = %v, want %v", names, want)
	}
}

func TestExportMissingSession(t *testing.T) {
	_, err := Export(&bytes.Buffer{}, Open(t.TempDir(), "nope"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Export on missing dir = %v, want ErrNotExist", err)
	}
}

func TestImportRejections(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		reason string
	}{
		{name: "not a zip", data: []byte("plain text"), reason: "Invalid zip file"},
		{
			name:   "no jsonl",
			data:   buildZip(t, map[string]string{"abc/manifest.json": "{}"}),
			reason: "Zip must contain at least one .jsonl file",
		},
		{
			name:   "bad json line",
			data:   buildZip(t, map[string]string{"abc/trace_abc.jsonl": "{}\n\nnot json\n"}),
			reason: "Invalid JSON on line 3 of abc/trace_abc.jsonl",
		},
		{
			name:   "traversal",
			data:   buildZip(t, map[string]string{"abc/../../evil.jsonl": "{}\n"}),
			reason: "outside session directory",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			base := t.TempDir()
			_, err := Import(test.data, base)
			if !IsArchiveError(err) {
				t.Fatalf("Import error = %v, want ArchiveError", err)
			}
			if !strings.Contains(err.Error(), test.reason) {
				t.Errorf("error %q does not mention %q", err, test.reason)
			}
			ids, _ := List(base)
			if len(ids) != 0 {
				t.Errorf("rejected import created sessions %v", ids)
			}
		})
	}
}

func TestImportReplacesExisting(t *testing.T) {
	base := t.TempDir()
	existing := Open(base, "abc")
	testutil.WriteFile(t, filepath.Join(existing.Path, "stale.txt"), []byte("old"))

	data := buildZip(t, map[string]string{"abc/trace_abc.jsonl": `{"name":"turn"}` + "\n"})
	dir, err := Import(data, base)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	testutil.RequireMissing(t, filepath.Join(dir.Path, "stale.txt"))
	testutil.RequireExists(t, dir.TracePath())

	ids, err := List(base)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"abc"}) {
		t.Errorf("sessions after import = %v, want [abc] (staging dir must be gone)", ids)
	}
}
