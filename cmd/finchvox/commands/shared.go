// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/finchvox/finchvox/cmd/finchvox/cli"
	"github.com/finchvox/finchvox/lib/config"
)

// configParams are the flags every command that reads configuration
// accepts. Flags override the file and the environment.
type configParams struct {
	ConfigPath string `flag:"config,c" desc:"configuration file (default $FINCHVOX_CONFIG)"`
	DataDir    string `flag:"data-dir" desc:"data directory (default ~/.finchvox)"`
	LogLevel   string `flag:"log-level" desc:"log level: debug, info, warn, error"`
}

// load resolves the configuration and a logger writing to stderr.
func (p *configParams) load(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(p.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	return p.loadOver(cfg, stderr)
}

// loadOver applies the shared flags to an already loaded cfg.
func (p *configParams) loadOver(cfg *config.Config, stderr io.Writer) (*config.Config, *slog.Logger, error) {
	if p.DataDir != "" {
		cfg.DataDir = config.ExpandPath(p.DataDir)
	}
	if p.LogLevel != "" {
		if _, err := cli.ParseLevel(p.LogLevel); err != nil {
			return nil, nil, err
		}
		cfg.Log.Level = p.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, cli.NewLogger(stderr, cfg.LogLevel()), nil
}
