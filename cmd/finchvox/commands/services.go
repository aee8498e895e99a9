// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/finchvox/finchvox/cmd/finchvox/cli"
	"github.com/finchvox/finchvox/lib/audio"
	"github.com/finchvox/finchvox/lib/clock"
	"github.com/finchvox/finchvox/lib/config"
	"github.com/finchvox/finchvox/lib/finalizer"
	"github.com/finchvox/finchvox/lib/metrics"
	"github.com/finchvox/finchvox/lib/scheduler"
	"github.com/finchvox/finchvox/lib/session"
	"github.com/finchvox/finchvox/lib/storage"
)

// services is the finalization pipeline assembled from configuration.
type services struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	reader  *session.Reader
	local   *storage.Local

	// backend is remote when configured, otherwise local.
	backend storage.Backend
	remote  *storage.S3

	runner *scheduler.Runner
}

// buildServices wires storage, audio, finalizer, and runner. With
// connectRemote set and S3 configured, the bucket is validated first;
// a validation failure is rendered to stderr and returned as exit 1.
func buildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer, connectRemote bool) (*services, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	svc := &services{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
		reader:  session.NewReader(logger),
	}
	svc.local = storage.NewLocal(cfg.SessionsDir(), svc.reader, logger)
	svc.backend = svc.local

	if connectRemote && cfg.Storage.Type == config.StorageS3 {
		remote, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:   cfg.Storage.S3.Bucket,
			Region:   cfg.Storage.S3.Region,
			Prefix:   cfg.Storage.S3.Prefix,
			Endpoint: cfg.Storage.S3.Endpoint,
		}, clock.Real(), logger)
		if err != nil {
			return nil, err
		}
		if err := remote.Validate(ctx); err != nil {
			var diagnostic *storage.DiagnosticError
			if errors.As(err, &diagnostic) {
				fmt.Fprintln(stderr, cli.NewRenderer(stderr).Troubleshooting(diagnostic))
				return nil, &cli.ExitError{Code: 1}
			}
			return nil, err
		}
		svc.remote = remote
		svc.backend = remote
	}

	encoder := audio.NewFFmpeg(cfg.Audio.EncoderBinary, cfg.Audio.Bitrate, logger)
	options := finalizer.Options{
		SessionsDir:       cfg.SessionsDir(),
		Audio:             audio.NewPipeline(audio.NewCompressor(encoder, logger), logger),
		Reader:            svc.reader,
		DeleteAfterUpload: cfg.Storage.DeleteLocalAfterUpload,
		Metrics:           svc.metrics,
		Logger:            logger,
	}
	if svc.remote != nil {
		options.Uploader = svc.remote
	}

	svc.runner = scheduler.NewRunner(scheduler.RunnerOptions{
		SessionsDir: cfg.SessionsDir(),
		Finalizer:   finalizer.New(options),
		Reader:      svc.reader,
		Thresholds: scheduler.Thresholds{
			MinInactive: cfg.Scheduler.MinInactive(),
			MaxInactive: cfg.Scheduler.MaxInactive(),
		},
		Metrics: svc.metrics,
		Logger:  logger,
	})
	return svc, nil
}

// storageMode is the banner description of where sessions end up.
func (s *services) storageMode() string {
	if s.remote != nil {
		return "S3 (" + s.remote.Location() + ")"
	}
	return "Local"
}
