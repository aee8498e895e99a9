// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1.
func Fatal(err error) {
	Report(os.Stderr, err)
	os.Exit(1)
}

// Report writes the Fatal message to w without exiting.
func Report(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
