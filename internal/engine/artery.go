package engine

import "github.com/roach88/pulse/internal/spec"

// Artery is the state of one chain execution. The same pointer is passed as
// the first argument to every listener the chain invokes, across rinses,
// and listeners may rely on its identity to correlate calls.
//
// Fields are only read and written on the loop goroutine.
type Artery struct {
	// Mode is the chain-wide mode steps inherit.
	Mode spec.Mode

	// Repeat is the number of passes over the step list.
	Repeat int

	// Count is the 1-based number of the pass in progress.
	Count int

	// Data is free-form scratch space for listeners. It survives rinses.
	Data map[string]any

	// Pass holds values queued for the next emission. Listeners append with
	// PassOn; the engine hands the buffer to the next step and clears it.
	Pass []any

	// ID is the chain's correlation id.
	ID any

	// Token identifies this execution in logs and traces.
	Token string

	capture *bool
	cat     *catheter
}

// PassOn appends values to the pass buffer. They are prepended to the
// trailing arguments of the next step the chain emits.
func (a *Artery) PassOn(values ...any) {
	a.Pass = append(a.Pass, values...)
}

// State returns the chain's current state.
func (a *Artery) State() State {
	if a.cat == nil {
		return StateCompleted
	}
	return a.cat.state
}

// Ended reports whether the chain has completed.
func (a *Artery) Ended() bool {
	return a.State() == StateCompleted
}

// takePass empties the pass buffer and returns what it held.
func (a *Artery) takePass() []any {
	pass := a.Pass
	a.Pass = nil
	return pass
}

// arteryFor seeds a fresh artery from cs, or, when existing is non-nil,
// overwrites only the fields cs sets explicitly. Count, Data, Pass, Token and
// the pointer itself are preserved.
func arteryFor(existing *Artery, cs spec.ChainSpec, token string) *Artery {
	if existing == nil {
		return &Artery{
			Mode:    spec.ResolveMode(cs.Mode),
			Repeat:  spec.ClampRepeat(cs.Repeat),
			Count:   1,
			Data:    make(map[string]any),
			ID:      cs.ID,
			Token:   token,
			capture: cs.CaptureErrors,
		}
	}

	if m, ok := spec.ParseMode(string(cs.Mode)); ok {
		existing.Mode = m
	}
	if cs.Repeat > 0 {
		existing.Repeat = cs.Repeat
	}
	if cs.ID != nil {
		existing.ID = cs.ID
	}
	if cs.CaptureErrors != nil {
		existing.capture = cs.CaptureErrors
	}
	if existing.Data == nil {
		existing.Data = make(map[string]any)
	}
	return existing
}
