package errors

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/julianstephens/habitcoach/internal/logger"
)

// Exit codes returned by the CLI.
const (
	ExitFailure    = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitBackend    = 4
)

// Format renders err for the terminal with an "Error: " prefix and, where the
// error kind has one, a hint on what to do next.
func Format(err error) string {
	if err == nil {
		return ""
	}
	var be *BackendError
	switch {
	case stderrors.As(err, &be) && be.Partial:
		return fmt.Sprintf("Error: %v (partially applied, run the command again to finish)", err)
	case stderrors.Is(err, ErrNotFound):
		return fmt.Sprintf("Error: %v (see `habitcoach habit list`)", err)
	}
	return fmt.Sprintf("Error: %v", err)
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case stderrors.Is(err, ErrValidation):
		return ExitValidation
	case stderrors.Is(err, ErrNotFound):
		return ExitNotFound
	case stderrors.Is(err, ErrBackend):
		return ExitBackend
	}
	return ExitFailure
}

// Fatal logs err, prints it to stderr and exits with ExitCode(err).
// A nil error is a no-op.
func Fatal(err error) {
	if err == nil {
		return
	}
	logger.Error("Command execution failed", "error", err, "exit", ExitCode(err))
	fmt.Fprintln(os.Stderr, Format(err))
	os.Exit(ExitCode(err))
}
