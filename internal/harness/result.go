package harness

import "github.com/roach88/pulse/internal/trace"

// Result is the outcome of a scenario run.
type Result struct {
	// Name is the scenario name.
	Name string `json:"name"`

	// Pass is true when every assertion and runtime check held.
	Pass bool `json:"pass"`

	// Token is the chain token, empty when the chain failed to start.
	Token string `json:"token,omitempty"`

	// Trace holds every recorded event in order.
	Trace []trace.Event `json:"trace"`

	// Ended reports whether the chain reached its end event.
	Ended bool `json:"ended"`

	// StartError is the error returned by Emitter.To, if any.
	StartError string `json:"start_error,omitempty"`

	// Errors contains assertion and runtime check failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult(name string) *Result {
	return &Result{Name: name, Pass: true}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Emitted returns the emitted event names in order.
func (r *Result) Emitted() []string {
	var out []string
	for _, ev := range r.Trace {
		if ev.Kind == trace.KindEmit {
			out = append(out, ev.Event)
		}
	}
	return out
}
