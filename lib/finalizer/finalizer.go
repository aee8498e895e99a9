// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package finalizer closes out one session: audio is merged and
// compressed, the manifest is written, and the tree is optionally
// uploaded to remote storage and removed locally.
//
// The manifest write is the commit point. Everything before it is best
// effort and everything after it cannot un-finalize the session: a
// failed upload is logged and left for an operator to retry.
package finalizer

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/finchvox/finchvox/lib/audio"
	"github.com/finchvox/finchvox/lib/clock"
	"github.com/finchvox/finchvox/lib/metrics"
	"github.com/finchvox/finchvox/lib/session"
)

// Uploader copies a finalized session tree to remote storage.
// storage.Backend satisfies it.
type Uploader interface {
	UploadSession(ctx context.Context, sessionID, localDir string) error
}

// AudioFinalizer runs the per-session audio step. *audio.Pipeline
// satisfies it.
type AudioFinalizer interface {
	Finalize(ctx context.Context, dir session.Dir) (audio.Result, error)
}

// Options configures a Finalizer. SessionsDir, Audio and Reader are
// required.
type Options struct {
	SessionsDir string
	Audio       AudioFinalizer
	Reader      *session.Reader

	// Uploader is nil when sessions stay on local disk only.
	Uploader Uploader

	// DeleteAfterUpload removes the local directory once an upload
	// has returned without error. Ignored without an Uploader.
	DeleteAfterUpload bool

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Finalizer struct {
	sessionsDir       string
	audio             AudioFinalizer
	reader            *session.Reader
	uploader          Uploader
	deleteAfterUpload bool
	clock             clock.Clock
	metrics           *metrics.Metrics
	logger            *slog.Logger
}

func New(options Options) *Finalizer {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Finalizer{
		sessionsDir:       options.SessionsDir,
		audio:             options.Audio,
		reader:            options.Reader,
		uploader:          options.Uploader,
		deleteAfterUpload: options.DeleteAfterUpload,
		clock:             options.Clock,
		metrics:           options.Metrics,
		logger:            options.Logger,
	}
}

// SessionsDir returns the directory whose children are sessions.
func (f *Finalizer) SessionsDir() string { return f.sessionsDir }

// Finalize runs the full sequence for sessionID and reports whether the
// manifest was written. A missing directory returns false without
// touching the filesystem. Re-finalizing a session rewrites its
// manifest from the current files.
func (f *Finalizer) Finalize(ctx context.Context, sessionID string) bool {
	started := f.clock.Now()
	logger := f.logger.With("session", session.ShortID(sessionID))

	if err := session.ValidateID(sessionID); err != nil {
		logger.Warn("refusing to finalize invalid session ID", "error", err)
		f.metrics.ObserveFinalization(metrics.OutcomeMissing, 0)
		return false
	}
	dir := session.Open(f.sessionsDir, sessionID)
	if !dir.Exists() {
		logger.Warn("session directory not found", "path", dir.Path)
		f.metrics.ObserveFinalization(metrics.OutcomeMissing, 0)
		return false
	}

	logger.Info("finalizing session")

	// Audio failures leave chunks in place; the trace and logs are
	// still worth a manifest.
	result, err := f.audio.Finalize(ctx, dir)
	if err != nil {
		logger.Warn("audio finalization failed, continuing without merged audio", "error", err)
	} else {
		f.metrics.ObserveAudio(audioLabel(result.Format))
	}

	snapshot := f.reader.Read(dir)
	manifest := session.NewManifest(snapshot)
	if err := session.WriteManifest(dir, manifest); err != nil {
		logger.Error("writing manifest failed", "error", err)
		return false
	}
	logger.Info("manifest written",
		"turns", manifest.Trace.TurnCount,
		"logs", manifest.LogCount,
		"audio", string(result.Format),
	)

	if f.uploader != nil {
		f.upload(ctx, dir, logger)
	}

	elapsed := f.clock.Now().Sub(started)
	f.metrics.ObserveFinalization(metrics.OutcomeFinalized, elapsed)
	logger.Info("session finalized", "elapsed", elapsed.Round(time.Millisecond))
	return true
}

func (f *Finalizer) upload(ctx context.Context, dir session.Dir, logger *slog.Logger) {
	if err := f.uploader.UploadSession(ctx, dir.ID, dir.Path); err != nil {
		f.metrics.ObserveUpload(metrics.UploadFailed)
		logger.Error("uploading session failed, local copy kept", "error", err)
		return
	}
	f.metrics.ObserveUpload(metrics.UploadSucceeded)

	if !f.deleteAfterUpload {
		return
	}
	if err := os.RemoveAll(dir.Path); err != nil {
		logger.Warn("deleting local session after upload failed", "error", err)
		return
	}
	logger.Info("deleted local session after upload")
}

func audioLabel(format audio.ArtifactFormat) string {
	if format == audio.FormatNone {
		return ""
	}
	return string(format)
}
