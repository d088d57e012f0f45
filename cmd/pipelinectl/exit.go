package main

import "fmt"

// ExitError is an error that carries a specific process exit code,
// grounded on petal-labs-petalflow/cli's ExitError: main() unwraps it via
// errors.As instead of every subcommand calling os.Exit directly, so RunE
// handlers stay testable.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Message: fmt.Sprintf(format, args...)}
}

const (
	exitSuccess      = 0
	exitValidation   = 1
	exitRuntime      = 2
	exitFileNotFound = 3
	exitInputParse   = 4
	exitConfig       = 5
)
