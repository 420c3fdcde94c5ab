package session

import (
	"errors"
	"fmt"
)

// ErrTerminated is returned by Enqueue once a session has been reaped or
// force-restarted. Callers recreate the session and retry.
var ErrTerminated = errors.New("session terminated")

// TransientError is a single-turn backend failure. It increments the
// session's consecutive error count but leaves the session serviceable.
type TransientError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError means the backend has explicitly signaled an unrecoverable
// state. It terminates the session immediately, regardless of the error
// threshold.
type FatalError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
