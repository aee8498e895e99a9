// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"
)

// ArchiveError is an import rejection whose Reason is safe to show to
// the user who supplied the archive.
type ArchiveError struct {
	Reason string
	Err    error
}

func (e *ArchiveError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// Export writes every regular file under dir into a zip archive on w.
// Entry names are "<id>/<relative path>" with forward slashes. The
// returned digest is the hex BLAKE3 hash of the archive bytes.
func Export(w io.Writer, dir Dir) (digest string, err error) {
	if !dir.Exists() {
		return "", fmt.Errorf("session %s: %w", dir.ID, os.ErrNotExist)
	}

	hasher := blake3.New()
	archive := zip.NewWriter(io.MultiWriter(w, hasher))

	walkErr := filepath.WalkDir(dir.Path, func(filePath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Hidden entries are staging and cleanup leftovers.
		if filePath != dir.Path && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relative, err := filepath.Rel(dir.Path, filePath)
		if err != nil {
			return err
		}
		return addArchiveFile(archive, dir.ID+"/"+filepath.ToSlash(relative), filePath)
	})
	if walkErr != nil {
		archive.Close()
		return "", fmt.Errorf("archiving session %s: %w", dir.ID, walkErr)
	}
	if err := archive.Close(); err != nil {
		return "", fmt.Errorf("finishing archive for %s: %w", dir.ID, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func addArchiveFile(archive *zip.Writer, name, filePath string) error {
	source, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	destination, err := archive.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(destination, source)
	return err
}

// ValidateArchive checks that data is a zip with at least one .jsonl
// member and that every non-blank line of every .jsonl member is valid
// JSON.
func ValidateArchive(data []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &ArchiveError{Reason: "Invalid zip file", Err: err}
	}
	return validateMembers(reader)
}

func validateMembers(reader *zip.Reader) error {
	found := false
	for _, file := range reader.File {
		if !strings.HasSuffix(file.Name, ".jsonl") {
			continue
		}
		found = true
		if err := validateJSONLMember(file); err != nil {
			return err
		}
	}
	if !found {
		return &ArchiveError{Reason: "Zip must contain at least one .jsonl file"}
	}
	return nil
}

func validateJSONLMember(file *zip.File) error {
	member, err := file.Open()
	if err != nil {
		return &ArchiveError{Reason: "Unreadable archive member " + file.Name, Err: err}
	}
	defer member.Close()

	reader := bufio.NewReader(member)
	for lineNumber := 1; ; lineNumber++ {
		line, readErr := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 && !json.Valid(trimmed) {
			return &ArchiveError{Reason: fmt.Sprintf("Invalid JSON on line %d of %s", lineNumber, file.Name)}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return &ArchiveError{Reason: "Unreadable archive member " + file.Name, Err: readErr}
		}
	}
}

// archiveSessionID takes the session ID from the first path segment of
// the first entry and requires every entry to live under it.
func archiveSessionID(reader *zip.Reader) (string, error) {
	if len(reader.File) == 0 {
		return "", &ArchiveError{Reason: "Could not determine session ID from zip structure"}
	}
	id, _, _ := strings.Cut(reader.File[0].Name, "/")
	if ValidateID(id) != nil {
		return "", &ArchiveError{Reason: "Could not determine session ID from zip structure"}
	}
	for _, file := range reader.File {
		name := path.Clean(file.Name)
		inside := strings.HasPrefix(name, id+"/") || (name == id && file.FileInfo().IsDir())
		if !inside || !filepath.IsLocal(filepath.FromSlash(name)) {
			return "", &ArchiveError{Reason: fmt.Sprintf("Archive entry %q is outside session directory %q", file.Name, id)}
		}
	}
	return id, nil
}

// Import validates an archive produced by Export and extracts it under
// sessionsDir, replacing any existing directory for the same session.
// Extraction happens in a hidden staging directory that is renamed into
// place, so a failed import leaves any previous copy untouched.
func Import(data []byte, sessionsDir string) (Dir, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Dir{}, &ArchiveError{Reason: "Invalid zip file", Err: err}
	}
	if err := validateMembers(reader); err != nil {
		return Dir{}, err
	}
	id, err := archiveSessionID(reader)
	if err != nil {
		return Dir{}, err
	}

	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		return Dir{}, fmt.Errorf("creating sessions directory: %w", err)
	}
	staging, err := os.MkdirTemp(sessionsDir, ".import-"+id+"-")
	if err != nil {
		return Dir{}, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	for _, file := range reader.File {
		if err := extractMember(file, staging); err != nil {
			return Dir{}, fmt.Errorf("extracting %s: %w", file.Name, err)
		}
	}

	dir := Open(sessionsDir, id)
	if err := os.RemoveAll(dir.Path); err != nil {
		return Dir{}, fmt.Errorf("removing existing session %s: %w", id, err)
	}
	if err := os.Rename(filepath.Join(staging, id), dir.Path); err != nil {
		return Dir{}, fmt.Errorf("moving imported session into place: %w", err)
	}
	return dir, nil
}

func extractMember(file *zip.File, root string) error {
	target := filepath.Join(root, filepath.FromSlash(path.Clean(file.Name)))
	if file.FileInfo().IsDir() || strings.HasSuffix(file.Name, "/") {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	source, err := file.Open()
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return err
	}
	return destination.Close()
}

// IsArchiveError reports whether err is a user-facing import rejection.
func IsArchiveError(err error) bool {
	var archiveErr *ArchiveError
	return errors.As(err, &archiveErr)
}
