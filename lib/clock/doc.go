// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the finalization
// pipeline.
//
// The idle detector compares file modification times against Now, and
// the scheduler paces its passes with a Ticker. Both take a Clock so
// tests can drive them deterministically:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	handle := scheduler.New(runner, time.Minute, fake, logger)
//	handle.Start(ctx)
//	fake.WaitForTickers(1)   // loop has registered its ticker
//	fake.Advance(time.Minute) // deliver exactly one tick
//
// Production code uses Real.
package clock
