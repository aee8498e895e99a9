// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/finchvox/finchvox/lib/session"
)

// ErrNotFound is wrapped by ReadFile when the file does not exist.
var ErrNotFound = errors.New("not found")

// DefaultListLimit is the listing size used when callers pass zero.
const DefaultListLimit = 100

// SessionFile names one file inside a session.
type SessionFile struct {
	SessionID string
	Name      string
}

func (f SessionFile) validate() error {
	if err := session.ValidateID(f.SessionID); err != nil {
		return err
	}
	if !filepath.IsLocal(filepath.FromSlash(f.Name)) {
		return fmt.Errorf("file name %q escapes the session directory", f.Name)
	}
	return nil
}

func (f SessionFile) String() string { return f.SessionID + "/" + f.Name }

// Backend stores and lists sessions.
type Backend interface {
	// WriteFile stores content as file, replacing any previous copy.
	WriteFile(ctx context.Context, file SessionFile, content []byte) error

	// ReadFile returns the content of file. Missing files produce an
	// error wrapping ErrNotFound.
	ReadFile(ctx context.Context, file SessionFile) ([]byte, error)

	// FileExists reports whether file is stored.
	FileExists(ctx context.Context, file SessionFile) (bool, error)

	// ListSessions returns up to limit manifests, most recent start
	// time first. Sessions without a start time sort last.
	ListSessions(ctx context.Context, limit int) ([]session.Manifest, error)

	// DeleteSession removes every file of the session. Deleting a
	// session that does not exist is not an error.
	DeleteSession(ctx context.Context, sessionID string) error

	// UploadSession copies the local directory tree localDir to the
	// session's location in this backend.
	UploadSession(ctx context.Context, sessionID, localDir string) error

	// SessionManifest returns the session's manifest without fetching
	// the rest of the session, or nil when there is none.
	SessionManifest(ctx context.Context, sessionID string) (*session.Manifest, error)
}

// Downloader is implemented by backends that can materialize a stored
// session into a local directory.
type Downloader interface {
	// DownloadSession writes the session's files under localDir and
	// reports whether any file was found.
	DownloadSession(ctx context.Context, sessionID, localDir string) (bool, error)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// sortByStartDescending orders manifests newest first; absent start
// times count as zero. Ties keep their input order.
func sortByStartDescending(manifests []session.Manifest) {
	sort.SliceStable(manifests, func(i, j int) bool {
		return manifests[i].StartSeconds() > manifests[j].StartSeconds()
	})
}
