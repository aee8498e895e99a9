// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command finchvox runs and operates the finchvox session collector.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/finchvox/finchvox/cmd/finchvox/commands"
	"github.com/finchvox/finchvox/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that already printed their own output return an
		// ExitError carrying the code.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root(commands.StandardStreams()).Execute(ctx, os.Args[1:])
}
