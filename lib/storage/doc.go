// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage persists finalized sessions.
//
// [Backend] is the capability set shared by the finalizer and the read
// paths. Two implementations exist:
//
//   - [Local] passes through to the sessions directory on disk. Upload
//     is a no-op because the session already lives there.
//   - [S3] stores each session under a date-partitioned key prefix,
//     prefix/YYYY/MM/DD/<session_id>/, with the date taken from the
//     manifest start time or the clock at upload. Listings walk the
//     date prefixes newest first and fetch manifests in parallel;
//     deletes are batched 1000 keys per request.
//
// [S3.Validate] is a startup check. It confirms the bucket is reachable
// (creating it when missing) and converts failures into a
// [DiagnosticError] carrying probable causes and remediation steps.
package storage
