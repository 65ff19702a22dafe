package main

import (
	"errors"
	"fmt"
)

// Launcher exit statuses that do not come from the child.
const (
	exitNoCommand = 98
	exitFatal     = 99
)

var errNoCommand = errors.New("no command provided")

// childExit carries the child's status out of a successful run.
type childExit struct {
	code int
}

func (e *childExit) Error() string {
	return fmt.Sprintf("child exited with status %d", e.code)
}

// exitCode maps a command error onto the launcher's process exit status.
func exitCode(err error) int {
	var exit *childExit
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.code
	case errors.Is(err, errNoCommand):
		return exitNoCommand
	default:
		return exitFatal
	}
}

// statusFromExitCode folds a supervisor exit code into an 8-bit status.
// Signal codes (-128 + signo) become 128 + signo and the unknown sentinel
// becomes 255.
func statusFromExitCode(code int) int {
	return code & 0xff
}
