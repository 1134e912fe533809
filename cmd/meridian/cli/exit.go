// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError carries a non-zero exit code without an extra error line.
// Run handlers return it when the non-zero exit is the command's
// answer (a failed run's exit code, doctor finding problems) rather
// than an unexpected error; main exits with the code silently.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode is checked by main to distinguish handled non-zero exits
// from errors that still need printing.
func (e *ExitError) ExitCode() int {
	return e.Code
}
