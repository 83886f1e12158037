// Package flow models sign-in and token redemption as explicit state machines.
// Transitions are pure: the service performs I/O and feeds the results back as events.
package flow

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when an event does not apply to the current state.
var ErrIllegalTransition = errors.New("flow: illegal transition")

// Event is an input to a transition function.
type Event interface{ isEvent() }

// CheckInput validates the presented input.
type CheckInput struct{}

func (CheckInput) isEvent() {}

func illegal(s, e any) error {
	return fmt.Errorf("%w: %T on %T", ErrIllegalTransition, e, s)
}
