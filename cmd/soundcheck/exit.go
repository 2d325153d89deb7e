package main

import (
	"errors"
	"fmt"
)

// Exit codes: 1 means a scenario verdict failed, 2 means the command
// itself could not run (bad flags, config, unreachable backend).
const (
	exitVerdictFailed = 1
	exitCommandError  = 2
)

// exitError carries the process exit code alongside the error.
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *exitError) Unwrap() error { return e.err }

func failf(format string, args ...any) *exitError {
	return &exitError{code: exitVerdictFailed, msg: fmt.Sprintf(format, args...)}
}

func commandErr(msg string, err error) *exitError {
	return &exitError{code: exitCommandError, msg: msg, err: err}
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitCommandError
}
