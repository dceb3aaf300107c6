package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition  = errors.New("invalid transition: from, to and event are required")
	ErrInvalidEvent       = errors.New("invalid event: event cannot be empty")
	ErrInvalidState       = errors.New("invalid state: initial state cannot be empty")
	ErrNoTransition       = errors.New("no transition defined")
	ErrTransitionRejected = errors.New("transition rejected by guards")
)

// TransitionError reports which state and event a Fire failed on. It wraps
// ErrNoTransition or ErrTransitionRejected.
type TransitionError struct {
	State string
	Event string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: state %q, event %q", e.Err, e.State, e.Event)
}

func (e *TransitionError) Unwrap() error { return e.Err }
