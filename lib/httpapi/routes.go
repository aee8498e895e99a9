// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/finchvox/finchvox/lib/environment"
	"github.com/finchvox/finchvox/lib/metrics"
	"github.com/finchvox/finchvox/lib/session"
	"github.com/finchvox/finchvox/lib/storage"
)

const (
	maxEnvironmentBody = 1 << 20
	maxArchiveBody     = 512 << 20
)

// DigestHeader carries the BLAKE3 digest of an exported archive.
const DigestHeader = "X-Finchvox-Digest"

// API holds the collaborators behind the routes.
type API struct {
	// SessionsDir is the local session tree used for export and import.
	SessionsDir string

	// Backend serves listing and manifests. When it also implements
	// storage.Downloader, sessions missing locally are exported from it.
	Backend storage.Backend

	Environment *environment.Recorder
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Handler returns the route table.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.health)
	mux.Handle("GET /metrics", a.Metrics.Handler())
	mux.HandleFunc("GET /api/sessions", a.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}/manifest", a.manifest)
	mux.HandleFunc("GET /api/sessions/{id}/export", a.export)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.deleteSession)
	mux.HandleFunc("POST /api/sessions/import", a.importArchive)
	mux.HandleFunc("POST /collector/environment/{trace_id}", a.recordEnvironment)
	return mux
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	manifests, err := a.Backend.ListSessions(r.Context(), limit)
	if err != nil {
		a.Logger.Error("listing sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}
	if manifests == nil {
		manifests = []session.Manifest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": manifests})
}

func (a *API) manifest(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	manifest, err := a.Backend.SessionManifest(r.Context(), id)
	if err != nil {
		a.Logger.Error("reading manifest failed", "session", session.ShortID(id), "error", err)
		writeError(w, http.StatusInternalServerError, "reading manifest failed")
		return
	}
	if manifest == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

func (a *API) export(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	dir := session.Open(a.SessionsDir, id)
	if !dir.Exists() {
		fetched, cleanup, err := a.fetchRemote(r.Context(), id)
		if err != nil {
			a.Logger.Error("fetching session for export failed", "session", session.ShortID(id), "error", err)
			writeError(w, http.StatusInternalServerError, "fetching session failed")
			return
		}
		defer cleanup()
		if fetched == nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		dir = *fetched
	}

	// Buffer so a failure mid-walk still produces an error status.
	var archive bytes.Buffer
	digest, err := session.Export(&archive, dir)
	if err != nil {
		a.Logger.Error("exporting session failed", "session", session.ShortID(id), "error", err)
		writeError(w, http.StatusInternalServerError, "exporting session failed")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(archive.Len()))
	w.Header().Set(DigestHeader, digest)
	w.WriteHeader(http.StatusOK)
	archive.WriteTo(w)
}

// fetchRemote downloads id into a temporary directory when the backend
// can. A nil Dir means the session is not stored remotely either.
func (a *API) fetchRemote(ctx context.Context, id string) (*session.Dir, func(), error) {
	noop := func() {}
	downloader, ok := a.Backend.(storage.Downloader)
	if !ok {
		return nil, noop, nil
	}
	temporary, err := os.MkdirTemp("", "finchvox-export-")
	if err != nil {
		return nil, noop, err
	}
	cleanup := func() { os.RemoveAll(temporary) }

	dir := session.Open(temporary, id)
	found, err := downloader.DownloadSession(ctx, id, dir.Path)
	if err != nil || !found {
		cleanup()
		return nil, noop, err
	}
	return &dir, cleanup, nil
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := a.Backend.DeleteSession(r.Context(), id); err != nil {
		a.Logger.Error("deleting session failed", "session", session.ShortID(id), "error", err)
		writeError(w, http.StatusInternalServerError, "deleting session failed")
		return
	}
	local := session.Open(a.SessionsDir, id)
	if err := os.RemoveAll(local.Path); err != nil {
		a.Logger.Warn("removing local session copy failed", "session", session.ShortID(id), "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) importArchive(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArchiveBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "archive too large")
			return
		}
		writeError(w, http.StatusBadRequest, "reading request body failed")
		return
	}

	dir, err := session.Import(data, a.SessionsDir)
	if err != nil {
		var archiveErr *session.ArchiveError
		if errors.As(err, &archiveErr) {
			writeError(w, http.StatusBadRequest, archiveErr.Reason)
			return
		}
		a.Logger.Error("importing archive failed", "error", err)
		writeError(w, http.StatusInternalServerError, "importing archive failed")
		return
	}
	a.Logger.Info("session imported", "session", session.ShortID(dir.ID), "path", filepath.Clean(dir.Path))
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": dir.ID})
}

func (a *API) recordEnvironment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEnvironmentBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "environment document too large")
		return
	}
	written, err := a.Environment.Record(r.Context(), r.PathValue("trace_id"), body)
	switch {
	case errors.Is(err, environment.ErrInvalidTraceID), errors.Is(err, environment.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		a.Logger.Error("recording environment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "recording environment failed")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"written": written})
	}
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := session.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
