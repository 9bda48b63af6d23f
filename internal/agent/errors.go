package agent

import (
	"errors"
	"fmt"
)

// recoverableError marks a failure the queue may retry.
type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string { return e.err.Error() }
func (e *recoverableError) Unwrap() error { return e.err }

// Recoverable wraps an error to mark the failure as transient. The
// queue retries recoverable failures while the task's retry budget
// lasts; anything else fails the task permanently.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &recoverableError{err: err}
}

// IsRecoverable reports whether the error was marked with Recoverable.
func IsRecoverable(err error) bool {
	var r *recoverableError
	return errors.As(err, &r)
}

// taskPanicError converts a handler panic into a permanent task failure.
type taskPanicError struct {
	value any
}

func (e *taskPanicError) Error() string {
	return fmt.Sprintf("task handler panicked: %v", e.value)
}
