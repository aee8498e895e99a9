// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the raw stderr path used by main before the
// structured logger exists or after it can no longer be trusted.
package process
