// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/finchvox/finchvox/lib/session"
)

// Local is the filesystem passthrough backend rooted at the sessions
// directory.
type Local struct {
	sessionsDir string
	reader      *session.Reader
	logger      *slog.Logger
}

func NewLocal(sessionsDir string, reader *session.Reader, logger *slog.Logger) *Local {
	return &Local{sessionsDir: sessionsDir, reader: reader, logger: logger}
}

// SessionDir returns the directory holding sessionID.
func (l *Local) SessionDir(sessionID string) session.Dir {
	return session.Open(l.sessionsDir, sessionID)
}

func (l *Local) path(file SessionFile) string {
	return filepath.Join(l.sessionsDir, file.SessionID, filepath.FromSlash(file.Name))
}

func (l *Local) WriteFile(_ context.Context, file SessionFile, content []byte) error {
	if err := file.validate(); err != nil {
		return err
	}
	path := l.path(file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", file, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}
	return nil
}

func (l *Local) ReadFile(_ context.Context, file SessionFile) ([]byte, error) {
	if err := file.validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.path(file))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", file, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	return data, nil
}

func (l *Local) FileExists(_ context.Context, file SessionFile) (bool, error) {
	if err := file.validate(); err != nil {
		return false, err
	}
	_, err := os.Stat(l.path(file))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// ListSessions takes the limit most recently modified session
// directories, then orders their manifests by start time.
func (l *Local) ListSessions(ctx context.Context, limit int) ([]session.Manifest, error) {
	limit = normalizeLimit(limit)

	ids, err := session.List(l.sessionsDir)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id      string
		modTime time.Time
	}
	candidates := make([]candidate, 0, len(ids))
	for _, id := range ids {
		info, err := os.Stat(filepath.Join(l.sessionsDir, id))
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{id: id, modTime: info.ModTime()})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	manifests := make([]session.Manifest, 0, len(candidates))
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		manifest, err := l.SessionManifest(ctx, candidate.id)
		if err != nil {
			l.logger.Warn("skipping session with unreadable manifest",
				"session", session.ShortID(candidate.id), "error", err)
			continue
		}
		if manifest != nil {
			manifests = append(manifests, *manifest)
		}
	}
	sortByStartDescending(manifests)
	return manifests, nil
}

func (l *Local) DeleteSession(_ context.Context, sessionID string) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	if err := os.RemoveAll(l.SessionDir(sessionID).Path); err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}

// UploadSession is a no-op: local sessions are already in place.
func (l *Local) UploadSession(context.Context, string, string) error {
	return nil
}

// SessionManifest reads manifest.json, or computes a provisional
// manifest from the trace for a session that is still live.
func (l *Local) SessionManifest(_ context.Context, sessionID string) (*session.Manifest, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	dir := l.SessionDir(sessionID)

	manifest, err := session.ReadManifest(dir.ManifestPath())
	if err == nil {
		return &manifest, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if _, err := os.Stat(dir.TracePath()); err != nil {
		return nil, nil
	}
	computed := session.NewManifest(l.reader.Read(dir))
	return &computed, nil
}

// DownloadSession reports whether the session exists locally; nothing
// needs copying when localDir is the session directory itself.
func (l *Local) DownloadSession(_ context.Context, sessionID, localDir string) (bool, error) {
	dir := l.SessionDir(sessionID)
	if !dir.Exists() {
		return false, nil
	}
	if filepath.Clean(localDir) == filepath.Clean(dir.Path) {
		return true, nil
	}
	if err := os.CopyFS(localDir, os.DirFS(dir.Path)); err != nil {
		return false, fmt.Errorf("copying session %s: %w", sessionID, err)
	}
	return true, nil
}
