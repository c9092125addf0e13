package cmd

import (
	"errors"
	"fmt"
	"io"
)

const (
	ExitPass       = 0
	ExitFatal      = 1
	ExitPolicyFail = 2
)

// ExitError carries a specific process exit status out of RunE.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitCode writes a one-line diagnostic for err and returns the status to exit with.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return ExitPass
	}
	fmt.Fprintln(w, err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFatal
}
