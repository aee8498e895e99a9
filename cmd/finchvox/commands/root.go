// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the finchvox command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/finchvox/finchvox/cmd/finchvox/cli"
	"github.com/finchvox/finchvox/lib/version"
)

// Streams are the writers commands print to.
type Streams struct {
	Out io.Writer
	Err io.Writer
}

// StandardStreams writes to the process stdout and stderr.
func StandardStreams() Streams {
	return Streams{Out: os.Stdout, Err: os.Stderr}
}

// Root returns the complete command tree.
func Root(streams Streams) *cli.Command {
	return &cli.Command{
		Name: "finchvox",
		Description: `Finchvox: observability collector for voice AI agents.

Collects traces, logs, and audio of agent sessions, finalizes idle
sessions into manifests with compressed audio, and optionally uploads
them to S3.`,
		Subcommands: []*cli.Command{
			startCommand(streams),
			finalizeCommand(streams),
			pendingCommand(streams),
			statusCommand(streams),
			listCommand(streams),
			exportCommand(streams),
			importCommand(streams),
			versionCommand(streams),
		},
	}
}

func versionCommand(streams Streams) *cli.Command {
	var params struct {
		Full bool `flag:"full" desc:"include toolchain, platform, and binary digest"`
	}
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("version", &params)
		},
		Run: func(context.Context, []string) error {
			if params.Full {
				fmt.Fprintf(streams.Out, "finchvox %s\n", version.Full())
				return nil
			}
			fmt.Fprintf(streams.Out, "finchvox %s\n", version.Info())
			return nil
		},
	}
}
