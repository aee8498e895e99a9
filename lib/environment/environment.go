// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package environment records the runtime environment a voice agent
// reports for each trace. The agent posts one snapshot per trace ID;
// only the first is kept.
package environment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gowebpki/jcs"
	"go.opentelemetry.io/otel/trace"

	"github.com/finchvox/finchvox/lib/metrics"
	"github.com/finchvox/finchvox/lib/session"
	"github.com/finchvox/finchvox/lib/storage"
)

// ErrInvalidTraceID is returned for IDs that are not 32 hex digits or
// are all zero.
var ErrInvalidTraceID = errors.New("invalid trace ID")

// ErrInvalidDocument is returned when the body is not a JSON object.
var ErrInvalidDocument = errors.New("environment must be a JSON object")

// FileStore is the part of storage.Backend the recorder writes
// through.
type FileStore interface {
	WriteFile(ctx context.Context, file storage.SessionFile, content []byte) error
	FileExists(ctx context.Context, file storage.SessionFile) (bool, error)
}

// Recorder writes environment_<id>.json at most once per trace ID.
type Recorder struct {
	store   FileStore
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu   sync.Mutex
	seen map[trace.TraceID]struct{}
}

func NewRecorder(store FileStore, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		metrics: m,
		logger:  logger,
		seen:    make(map[trace.TraceID]struct{}),
	}
}

// FileName returns the environment file name for a session.
func FileName(sessionID string) string {
	return "environment_" + sessionID + ".json"
}

// ParseTraceID validates a hex trace ID.
func ParseTraceID(hex string) (trace.TraceID, error) {
	id, err := trace.TraceIDFromHex(hex)
	if err != nil || !id.IsValid() {
		return trace.TraceID{}, fmt.Errorf("%w: %q", ErrInvalidTraceID, hex)
	}
	return id, nil
}

// Record stores document for traceHex unless an environment for that
// trace was already recorded, in this process or on disk. It reports
// whether a file was written.
func (r *Recorder) Record(ctx context.Context, traceHex string, document []byte) (bool, error) {
	id, err := ParseTraceID(traceHex)
	if err != nil {
		return false, err
	}
	trimmed := bytes.TrimSpace(document)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false, ErrInvalidDocument
	}
	canonical, err := jcs.Transform(trimmed)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	r.mu.Lock()
	if _, ok := r.seen[id]; ok {
		r.mu.Unlock()
		return false, nil
	}
	r.seen[id] = struct{}{}
	r.mu.Unlock()

	sessionID := id.String()
	file := storage.SessionFile{SessionID: sessionID, Name: FileName(sessionID)}
	exists, err := r.store.FileExists(ctx, file)
	if err != nil {
		r.forget(id)
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := r.store.WriteFile(ctx, file, canonical); err != nil {
		r.forget(id)
		return false, err
	}

	r.metrics.ObserveEnvironment()
	r.logger.Info("recorded environment", "session", session.ShortID(sessionID))
	return true, nil
}

// forget lets a later post retry after a storage failure.
func (r *Recorder) forget(id trace.TraceID) {
	r.mu.Lock()
	delete(r.seen, id)
	r.mu.Unlock()
}
