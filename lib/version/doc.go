// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the finchvox binary.
//
// [Version], [GitCommit], [GitDirty], and [BuildTime] are injected
// with -ldflags -X and default to development values:
//
//	go build -ldflags "-X github.com/finchvox/finchvox/lib/version.Version=0.4.0" ./cmd/finchvox
//
// [Banner] is the one-line startup identity ("Finchvox v0.4.0"),
// [Info] the --version line, and [Full] adds the Go toolchain,
// platform, and a BLAKE3 digest of the running executable so two
// installs can be compared byte for byte.
package version
