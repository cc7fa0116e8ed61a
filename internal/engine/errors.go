package engine

import (
	"errors"
	"fmt"
)

// ErrSchedulerStopped is returned when a chain needs to defer work and the
// scheduler refuses it. The chain is left where it stopped.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// ReservedEventNameError is returned by To when a step is named after the
// configured end event. Subscriptions made before the offending step are
// removed before it is returned.
type ReservedEventNameError struct {
	// Index is the position of the offending step.
	Index int

	// Name is the reserved name.
	Name string
}

// Error implements the error interface.
func (e *ReservedEventNameError) Error() string {
	return fmt.Sprintf("step %d: %q is the end event and cannot be a step", e.Index, e.Name)
}

// ListenerError wraps a failure of a chain listener. With error capture on it
// is emitted on the error event as (err, artery, pulse) and the chain
// continues.
type ListenerError struct {
	// Event is the event whose listener failed.
	Event string

	// Index is the step position, or -1 for the end event and out-of-band
	// emissions.
	Index int

	// Chain is the token of the chain the listener was serving.
	Chain string

	// ID is the step's correlation id.
	ID any

	// Panicked is set when the listener panicked instead of returning.
	Panicked bool

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	verb := "failed"
	if e.Panicked {
		verb = "panicked"
	}
	return fmt.Sprintf("listener for %q %s (chain=%s): %v", e.Event, verb, e.Chain, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ListenerError) Unwrap() error {
	return e.Err
}

// ArterySpoofError describes an emission a drip refused because it carried
// another chain's artery, or none. It is logged at debug level and never
// returned: an unrelated chain sharing an event name looks exactly like this.
type ArterySpoofError struct {
	// Event is the event name the drip listens on.
	Event string

	// Chain is the token of the listening chain.
	Chain string

	// Foreign is the token of the artery that arrived, empty if none did.
	Foreign string
}

// Error implements the error interface.
func (e *ArterySpoofError) Error() string {
	if e.Foreign == "" {
		return fmt.Sprintf("emission of %q carries no artery (chain=%s)", e.Event, e.Chain)
	}
	return fmt.Sprintf("emission of %q carries artery of chain %s (chain=%s)", e.Event, e.Foreign, e.Chain)
}

// IsReservedEventNameError returns true if err is or wraps a
// ReservedEventNameError.
func IsReservedEventNameError(err error) bool {
	var re *ReservedEventNameError
	return errors.As(err, &re)
}

// IsListenerError returns true if err is or wraps a ListenerError.
func IsListenerError(err error) bool {
	var le *ListenerError
	return errors.As(err, &le)
}

// IsArterySpoofError returns true if err is or wraps an ArterySpoofError.
func IsArterySpoofError(err error) bool {
	var se *ArterySpoofError
	return errors.As(err, &se)
}

// panicError turns a recovered value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
