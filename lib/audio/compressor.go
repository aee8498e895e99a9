// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/finchvox/finchvox/lib/session"
)

// Compressor wraps an Encoder with the file handling around one
// compression: output naming, partial-output cleanup, and sanity checks.
// It holds no lock; independent sessions may compress concurrently.
type Compressor struct {
	encoder Encoder
	logger  *slog.Logger
}

func NewCompressor(encoder Encoder, logger *slog.Logger) *Compressor {
	return &Compressor{encoder: encoder, logger: logger}
}

// Available reports whether the underlying encoder can run.
func (c *Compressor) Available(ctx context.Context) bool {
	return c.encoder != nil && c.encoder.Available(ctx)
}

// Compress transcodes merged into a sibling file named after the
// session artifact. The merged file is never removed. On failure any
// partial output is deleted and ok is false.
func (c *Compressor) Compress(ctx context.Context, merged string) (compressed string, ok bool) {
	if !c.Available(ctx) {
		return "", false
	}

	output := filepath.Join(filepath.Dir(merged), "audio"+c.encoder.Extension())
	if output == merged {
		c.logger.Error("compressed output would overwrite its input", "path", merged)
		return "", false
	}

	if err := c.encoder.Encode(ctx, merged, output); err != nil {
		os.Remove(output)
		c.logger.Warn("audio compression failed, keeping uncompressed audio", "input", merged, "error", err)
		return "", false
	}
	if err := checkOutput(output); err != nil {
		os.Remove(output)
		c.logger.Warn("audio compression produced no usable output", "input", merged, "error", err)
		return "", false
	}
	return output, true
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}

// ArtifactFormat names the durable audio artifact of a session.
type ArtifactFormat string

const (
	FormatNone ArtifactFormat = "none"
	FormatOpus ArtifactFormat = "opus"
	FormatWAV  ArtifactFormat = "wav"
)

// Result describes what the audio step left in the session directory.
type Result struct {
	Format   ArtifactFormat
	Artifact string
	Chunks   int
}

// Pipeline runs the per-session audio step.
type Pipeline struct {
	compressor *Compressor
	logger     *slog.Logger
}

func NewPipeline(compressor *Compressor, logger *slog.Logger) *Pipeline {
	return &Pipeline{compressor: compressor, logger: logger}
}

// Finalize merges dir's chunks, compresses the result when possible,
// and removes the chunk directory. A session without an audio
// directory is left alone. On error the chunks are still in place and
// no artifact exists.
func (p *Pipeline) Finalize(ctx context.Context, dir session.Dir) (Result, error) {
	logger := p.logger.With("session", session.ShortID(dir.ID))

	if _, err := os.Stat(dir.AudioDir()); os.IsNotExist(err) {
		return existingArtifact(dir), nil
	}

	chunks, err := dir.Chunks()
	if err != nil {
		return Result{Format: FormatNone}, err
	}
	if len(chunks) == 0 {
		logger.Debug("audio directory has no chunks, removing it")
		if err := os.RemoveAll(dir.AudioDir()); err != nil {
			return Result{Format: FormatNone}, fmt.Errorf("removing empty audio directory: %w", err)
		}
		return Result{Format: FormatNone}, nil
	}

	// A previous attempt may have been interrupted after producing an
	// artifact but before removing audio/.
	os.Remove(dir.OpusPath())
	os.Remove(dir.WAVPath())

	logger.Info("merging audio chunks", "chunks", len(chunks))
	if _, err := Merge(chunks, dir.MergedPath()); err != nil {
		return Result{Format: FormatNone, Chunks: len(chunks)}, fmt.Errorf("merging audio chunks: %w", err)
	}

	result := Result{Chunks: len(chunks)}
	if compressed, ok := p.compressor.Compress(ctx, dir.MergedPath()); ok {
		if err := os.Remove(dir.MergedPath()); err != nil {
			logger.Warn("removing merged audio failed", "error", err)
		}
		result.Format, result.Artifact = FormatOpus, compressed
	} else {
		if err := os.Rename(dir.MergedPath(), dir.WAVPath()); err != nil {
			os.Remove(dir.MergedPath())
			return Result{Format: FormatNone, Chunks: len(chunks)}, fmt.Errorf("keeping uncompressed audio: %w", err)
		}
		result.Format, result.Artifact = FormatWAV, dir.WAVPath()
	}

	// One rename retires audio/; the recursive delete follows.
	discard := filepath.Join(dir.Path, ".audio.removing")
	os.RemoveAll(discard)
	if err := os.Rename(dir.AudioDir(), discard); err != nil {
		os.Remove(result.Artifact)
		return Result{Format: FormatNone, Chunks: len(chunks)}, fmt.Errorf("removing audio chunks: %w", err)
	}
	if err := os.RemoveAll(discard); err != nil {
		logger.Warn("deleting merged audio chunks failed", "path", discard, "error", err)
	}

	logger.Info("audio finalized", "format", string(result.Format), "chunks", len(chunks))
	return result, nil
}

func existingArtifact(dir session.Dir) Result {
	switch artifact := dir.Artifact(); artifact {
	case "":
		return Result{Format: FormatNone}
	case dir.OpusPath():
		return Result{Format: FormatOpus, Artifact: artifact}
	default:
		return Result{Format: FormatWAV, Artifact: artifact}
	}
}
