// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/finchvox/finchvox/cmd/finchvox/cli"
	"github.com/finchvox/finchvox/lib/clock"
	"github.com/finchvox/finchvox/lib/config"
	"github.com/finchvox/finchvox/lib/control"
	"github.com/finchvox/finchvox/lib/environment"
	"github.com/finchvox/finchvox/lib/httpapi"
	"github.com/finchvox/finchvox/lib/scheduler"
	"github.com/finchvox/finchvox/lib/version"
)

type startParams struct {
	configParams
	Host       string `flag:"host" desc:"HTTP listen host (default 0.0.0.0)"`
	Port       int    `flag:"port,p" desc:"HTTP port for the UI, API, and collector (default 3000)" default:"-1"`
	GRPCPort   int    `flag:"grpc-port" desc:"OTLP gRPC port shown in the banner (default 4317)"`
	Storage    string `flag:"storage" desc:"storage backend: local or s3"`
	S3Bucket   string `flag:"s3-bucket" desc:"S3 bucket for finalized sessions"`
	S3Region   string `flag:"s3-region" desc:"S3 region (default us-east-1)"`
	S3Prefix   string `flag:"s3-prefix" desc:"S3 key prefix (default sessions)"`
	S3Endpoint string `flag:"s3-endpoint" desc:"S3-compatible endpoint URL"`
}

// apply layers the start flags over cfg. Port -1 means unset so that
// port 0 can request an ephemeral port.
func (p *startParams) apply(cfg *config.Config) {
	if p.Host != "" {
		cfg.Server.Host = p.Host
	}
	if p.Port >= 0 {
		cfg.Server.Port = p.Port
	}
	if p.GRPCPort != 0 {
		cfg.Server.GRPCPort = p.GRPCPort
	}
	if p.Storage != "" {
		cfg.Storage.Type = p.Storage
	}
	if p.S3Bucket != "" {
		cfg.Storage.S3.Bucket = p.S3Bucket
	}
	if p.S3Region != "" {
		cfg.Storage.S3.Region = p.S3Region
	}
	if p.S3Prefix != "" {
		cfg.Storage.S3.Prefix = p.S3Prefix
	}
	if p.S3Endpoint != "" {
		cfg.Storage.S3.Endpoint = p.S3Endpoint
	}
}

func startCommand(streams Streams) *cli.Command {
	var params startParams
	return &cli.Command{
		Name:    "start",
		Summary: "Run the collector, finalization scheduler, and control socket",
		Description: `Run finchvox in the foreground.

Serves the HTTP API and environment collector, finalizes idle sessions
on a fixed interval, and listens on the control socket for on-demand
finalize requests. When storage is s3 the bucket is validated (and
created if missing) before anything starts; a failure prints a
troubleshooting block and exits 1.`,
		Examples: []cli.Example{
			{Description: "Local storage on the default port", Command: "finchvox start"},
			{Description: "Upload finalized sessions to S3", Command: "finchvox start --storage s3 --s3-bucket voice-sessions"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("start", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runStart(ctx, &params, streams)
		},
	}
}

func runStart(ctx context.Context, params *startParams, streams Streams) error {
	cfg, err := config.Load(params.ConfigPath)
	if err != nil {
		return err
	}
	params.apply(cfg)
	cfg, logger, err := params.configParams.loadOver(cfg, streams.Err)
	if err != nil {
		return err
	}

	svc, err := buildServices(ctx, cfg, logger, streams.Err, true)
	if err != nil {
		return err
	}

	recorder := environment.NewRecorder(svc.local, svc.metrics, logger)
	api := &httpapi.API{
		SessionsDir: cfg.SessionsDir(),
		Backend:     svc.backend,
		Environment: recorder,
		Metrics:     svc.metrics,
		Logger:      logger,
	}
	httpServer := httpapi.NewServer(httpapi.ServerConfig{
		Address: net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler: api.Handler(),
		Logger:  logger,
	})

	loop := scheduler.New(svc.runner, cfg.Scheduler.Interval(), clock.Real(), logger)
	controlServer := control.NewServer(cfg.ControlSocketPath(), logger)
	control.Register(controlServer, svc.runner, loop.Running)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return httpServer.Serve(groupCtx) })
	group.Go(func() error { return controlServer.Serve(groupCtx) })

	select {
	case <-httpServer.Ready():
	case <-groupCtx.Done():
		return group.Wait()
	}
	select {
	case <-controlServer.Ready():
	case <-groupCtx.Done():
		return group.Wait()
	}

	port := cfg.Server.Port
	if tcp, ok := httpServer.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	base := "http://" + net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))
	fmt.Fprintln(streams.Out, cli.NewRenderer(streams.Out).Banner(version.Banner(), []cli.BannerField{
		{Label: "HTTP", Value: base + "  (UI)", Extra: []string{base + "/collector"}},
		{Label: "gRPC", Value: net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))},
		{Label: "Data", Value: cfg.DataDir},
		{Label: "Storage", Value: svc.storageMode()},
		{Label: "Control", Value: cfg.ControlSocketPath()},
		{Label: "Finalize", Value: fmt.Sprintf("every %s, idle %s to %s",
			cfg.Scheduler.Interval(), cfg.Scheduler.MinInactive(), cfg.Scheduler.MaxInactive())},
	}))

	loop.Start(groupCtx)
	<-groupCtx.Done()
	// Stop waits for an in-flight pass; servers drain in parallel.
	loop.Stop()
	return group.Wait()
}
