// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"github.com/finchvox/finchvox/lib/session"
)

// Format describes the PCM layout of a merged file.
type Format struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// Merge writes the concatenation of chunks to destination as a PCM WAV
// file and returns its format. Chunks are written in slice order; pass
// them as returned by session.Dir.Chunks. The inputs are not modified.
func Merge(chunks []session.Chunk, destination string) (Format, error) {
	if len(chunks) == 0 {
		return Format{}, errors.New("no chunks to merge")
	}

	output, err := os.Create(destination)
	if err != nil {
		return Format{}, fmt.Errorf("creating %s: %w", destination, err)
	}

	format, err := mergeInto(output, chunks)
	if err != nil {
		output.Close()
		os.Remove(destination)
		return Format{}, err
	}
	if err := output.Close(); err != nil {
		os.Remove(destination)
		return Format{}, fmt.Errorf("closing %s: %w", destination, err)
	}
	return format, nil
}

func mergeInto(output *os.File, chunks []session.Chunk) (Format, error) {
	var (
		encoder *wav.Encoder
		format  Format
	)
	for _, chunk := range chunks {
		input, err := os.Open(chunk.Path)
		if err != nil {
			return Format{}, fmt.Errorf("opening chunk %d: %w", chunk.Sequence, err)
		}
		decoder := wav.NewDecoder(input)
		if !decoder.IsValidFile() {
			input.Close()
			return Format{}, fmt.Errorf("chunk %d is not a PCM WAV file", chunk.Sequence)
		}
		buffer, err := decoder.FullPCMBuffer()
		input.Close()
		if err != nil {
			return Format{}, fmt.Errorf("decoding chunk %d: %w", chunk.Sequence, err)
		}
		if buffer == nil {
			return Format{}, fmt.Errorf("chunk %d has no PCM data", chunk.Sequence)
		}

		if encoder == nil {
			format = Format{
				SampleRate: int(decoder.SampleRate),
				BitDepth:   int(decoder.BitDepth),
				Channels:   int(decoder.NumChans),
			}
			encoder = wav.NewEncoder(output, format.SampleRate, format.BitDepth, format.Channels, 1)
		}
		if len(buffer.Data) == 0 {
			continue
		}
		if err := encoder.Write(buffer); err != nil {
			return Format{}, fmt.Errorf("writing chunk %d: %w", chunk.Sequence, err)
		}
	}
	if err := encoder.Close(); err != nil {
		return Format{}, fmt.Errorf("finishing merged file: %w", err)
	}
	return format, nil
}
