// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/finchvox/finchvox/lib/platform"
)

// Snapshot is what a single scan of a session directory could determine.
// Timestamp fields are zero when no span supplied them.
type Snapshot struct {
	SessionID   string
	SpanCount   int
	TurnCount   int
	LogCount    int
	ServiceName string
	Platform    platform.Platform

	// MinStartNano and MaxEndNano are the extrema across all spans.
	MinStartNano Nanos
	MaxEndNano   Nanos

	// RootSpanEnded is true when some span without a parent carries a
	// non-zero end timestamp.
	RootSpanEnded bool

	// HasTrace is false when the trace file does not exist.
	HasTrace bool

	// MalformedLines counts complete lines that failed to decode.
	MalformedLines int

	AudioBytes int64
	HasAudio   bool
}

// StartTime returns the earliest span start in Unix seconds.
func (s Snapshot) StartTime() (float64, bool) {
	if s.MinStartNano == 0 {
		return 0, false
	}
	return s.MinStartNano.Seconds(), true
}

// EndTime returns the latest span end in Unix seconds.
func (s Snapshot) EndTime() (float64, bool) {
	if s.MaxEndNano == 0 {
		return 0, false
	}
	return s.MaxEndNano.Seconds(), true
}

// DurationMS returns the span extent in milliseconds. It requires both
// extrema.
func (s Snapshot) DurationMS() (float64, bool) {
	if s.MinStartNano == 0 || s.MaxEndNano == 0 {
		return 0, false
	}
	return float64(s.MaxEndNano-s.MinStartNano) / 1e6, true
}

// Reader derives snapshots from session directories. The zero value
// logs to slog.Default.
type Reader struct {
	logger *slog.Logger
}

// NewReader returns a Reader that reports malformed lines to logger.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logger}
}

func (r *Reader) log() *slog.Logger {
	if r == nil || r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

// Read scans the session's trace and log files. It never fails: a
// missing file contributes nothing, and undecodable lines are logged
// and skipped.
func (r *Reader) Read(dir Dir) Snapshot {
	snapshot := Snapshot{SessionID: dir.ID}
	logger := r.log().With("session", ShortID(dir.ID))

	r.scanTrace(dir, &snapshot, logger)

	count, err := countLines(dir.LogsPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("counting log lines failed", "error", err)
	}
	snapshot.LogCount = count

	snapshot.AudioBytes, snapshot.HasAudio = dir.AudioBytes()
	return snapshot
}

// RootSpanEnded is a cheaper form of Read for the idle detector: it
// stops at the first ended root span.
func (r *Reader) RootSpanEnded(dir Dir) bool {
	found := false
	err := eachLine(dir.TracePath(), func(line []byte, terminated bool) bool {
		var span Span
		if json.Unmarshal(line, &span) != nil {
			return true
		}
		if span.IsRoot() && span.Ended() {
			found = true
			return false
		}
		return true
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log().Warn("scanning trace for root span failed",
			"session", ShortID(dir.ID), "error", err)
	}
	return found
}

func (r *Reader) scanTrace(dir Dir, snapshot *Snapshot, logger *slog.Logger) {
	var (
		names   []string
		signals []platform.Signals
		lineNo  int
	)

	err := eachLine(dir.TracePath(), func(line []byte, terminated bool) bool {
		lineNo++
		var span Span
		if err := json.Unmarshal(line, &span); err != nil {
			if !terminated {
				// Trailing write still in progress.
				logger.Debug("skipping incomplete trailing span line", "line", lineNo)
				return true
			}
			snapshot.MalformedLines++
			logger.Warn("skipping malformed span line", "line", lineNo, "error", err)
			return true
		}

		snapshot.SpanCount++
		if span.StartTime != nil {
			if snapshot.MinStartNano == 0 || *span.StartTime < snapshot.MinStartNano {
				snapshot.MinStartNano = *span.StartTime
			}
		}
		if span.EndTime != nil && *span.EndTime > snapshot.MaxEndNano {
			snapshot.MaxEndNano = *span.EndTime
		}
		if snapshot.ServiceName == "" {
			if name, ok := span.ServiceName(); ok {
				snapshot.ServiceName = name
			}
		}
		if span.IsRoot() && span.Ended() {
			snapshot.RootSpanEnded = true
		}
		names = append(names, span.Name)
		signals = append(signals, span.Signals())
		return true
	})
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	snapshot.HasTrace = true
	if err != nil {
		logger.Warn("reading trace file failed", "error", err)
	}

	snapshot.Platform = platform.Detect(signals)
	for _, name := range names {
		if snapshot.Platform.IsTurn(name) {
			snapshot.TurnCount++
		}
	}
}

// eachLine calls fn with every non-blank line of path, trimmed of
// surrounding whitespace. terminated is false only for a final line
// with no trailing newline. fn returns false to stop early.
func eachLine(path string, fn func(line []byte, terminated bool) bool) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		line, readErr := reader.ReadBytes('\n')
		terminated := readErr == nil
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if !fn(trimmed, terminated) {
				return nil
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("reading %s: %w", path, readErr)
		}
	}
}

func countLines(path string) (int, error) {
	count := 0
	err := eachLine(path, func([]byte, bool) bool {
		count++
		return true
	})
	return count, err
}
