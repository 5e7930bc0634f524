package main

import (
	"errors"
	"fmt"

	"github.com/gustycube/uplinks/internal/uplinks"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// usageError marks a bad command line; it exits 2 with the usage line
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// exitCode maps a command error to the process exit status. A query that
// yields no tree is not a failure.
func exitCode(err error) int {
	var uerr *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &uerr):
		return exitUsage
	case errors.Is(err, uplinks.ErrInvalidQuery), errors.Is(err, uplinks.ErrUnresolved):
		return exitOK
	default:
		return exitError
	}
}
