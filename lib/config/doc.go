// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads finchvox configuration.
//
// Values are layered in a fixed order, each layer overriding the one
// before it:
//
//  1. built-in defaults ([Default])
//  2. a config file named by --config or FINCHVOX_CONFIG
//  3. FINCHVOX_* environment variables
//  4. command-line flags (applied by the CLI after [Load] returns)
//
// Config files are YAML (.yaml, .yml) or JSON with comments (.json,
// .jsonc). Path values support ${VAR} and ${VAR:-default} expansion and
// a leading "~/".
package config
