package errors

import (
	"errors"
	"fmt"
)

// ExitError carries a specific process exit code up through the CLI.
// It renders no diagnostic of its own; commands that want the process
// to exit non-zero without re-printing an already-reported failure
// return one of these.
type ExitError struct {
	Code int
}

// NewExitError creates an ExitError with the given exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// GetExitCode extracts an embedded exit code from an error chain.
// The second return is false when the chain holds no ExitError.
func GetExitCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
