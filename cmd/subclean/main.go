package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"subclean/internal/pipeline"
	"subclean/internal/services"
)

// exitError carries the process exit status selected by a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to a process status. Configuration errors
// share the internal-error status with aborted runs.
func exitCode(err error) int {
	if err == nil {
		return pipeline.ExitOK
	}
	var coded *exitError
	if errors.As(err, &coded) {
		return coded.code
	}
	if errors.Is(err, services.ErrConfiguration) || errors.Is(err, context.Canceled) {
		return pipeline.ExitInternal
	}
	return pipeline.ExitFailed
}
