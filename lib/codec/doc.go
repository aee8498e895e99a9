// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR encoding used on the finchvox control
// socket.
//
// Encoding is Core Deterministic (RFC 8949 §4.2), so the same request
// always produces the same bytes. Decoding into any-typed targets
// yields map[string]any rather than CBOR's default
// map[interface{}]interface{}, which keeps decoded responses usable
// with encoding/json for the CLI's --json output.
//
// Types carry cbor struct tags. Types that also appear in HTTP
// responses carry json tags only and rely on fxamacker's fallback to
// them.
package codec
