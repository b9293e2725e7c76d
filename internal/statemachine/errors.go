package statemachine

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionTerminated is returned for every intent after the session has
	// ended because the capture permission was denied.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrPermissionPending is returned when recording is requested before a
	// permission result has been delivered.
	ErrPermissionPending = errors.New("capture permission not yet granted")
	// ErrTransitionInProgress is returned when HandleAction is re-entered,
	// typically from an observer.
	ErrTransitionInProgress = errors.New("transition in progress")
	// ErrUnknownIntent is returned for an intent the controller does not
	// recognise. The state is left unchanged.
	ErrUnknownIntent = errors.New("unknown intent")
)

// TransitionError describes a transition attempt whose gateway call failed.
// State is where the controller ended up.
type TransitionError struct {
	From   State
	Intent Intent
	State  State
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s from %s failed (now %s): %v", e.Intent, e.From, e.State, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
