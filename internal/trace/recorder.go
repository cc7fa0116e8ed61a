// Package trace records what pulse chains do, in order, so runs can be
// compared, stored and replayed as text.
//
// A Recorder is an engine.Observer. Attach it with engine.WithObserver and
// every chain of that emitter appends Events stamped by a logical Clock.
package trace

import (
	"sync"

	"github.com/roach88/pulse/internal/engine"
	"github.com/roach88/pulse/internal/spec"
)

// Kind names a trace event type.
type Kind string

const (
	KindChainStart    Kind = "chain_start"
	KindEmit          Kind = "emit"
	KindDrained       Kind = "drained"
	KindRinse         Kind = "rinse"
	KindChainEnd      Kind = "chain_end"
	KindListenerError Kind = "listener_error"
)

// Event is one recorded step of a chain.
type Event struct {
	Seq   int64  `json:"seq"`
	Kind  Kind   `json:"kind"`
	Chain string `json:"chain"`

	// Event is the event name for emit, drained and listener_error.
	Event string `json:"event,omitempty"`

	// Index is the step position; -1 for the end event.
	Index int `json:"index"`

	// Count is the emission number within the pass (emit) or the pass
	// number (chain_start, rinse, chain_end).
	Count int `json:"count,omitempty"`

	// Args are the listener arguments after artery and pulse, converted
	// with Value.
	Args []any `json:"args,omitempty"`

	// Error is the failure message of a listener_error.
	Error string `json:"error,omitempty"`
}

func (e Event) canonicalMap() map[string]any {
	m := map[string]any{
		"seq":   e.Seq,
		"kind":  string(e.Kind),
		"chain": e.Chain,
		"index": e.Index,
	}
	if e.Event != "" {
		m["event"] = e.Event
	}
	if e.Count != 0 {
		m["count"] = e.Count
	}
	if len(e.Args) > 0 {
		m["args"] = e.Args
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}

// Sequencer issues monotonically increasing sequence numbers. Clock and
// testutil.DeterministicClock implement it.
type Sequencer interface {
	Next() int64
}

// Recorder collects Events from every chain of an emitter.
//
// Thread-safety: callbacks arrive on the loop goroutine; Events and the
// other readers may be called from any goroutine.
type Recorder struct {
	mu     sync.Mutex
	clock  Sequencer
	events []Event
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder stamping events with clock, or with a fresh
// Clock when clock is nil.
func NewRecorder(clock Sequencer) *Recorder {
	if clock == nil {
		clock = NewClock()
	}
	return &Recorder{clock: clock}
}

func (r *Recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Seq = r.clock.Next()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Chain returns the events of one chain.
func (r *Recorder) Chain(token string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Chain == token {
			out = append(out, ev)
		}
	}
	return out
}

// Emitted returns the names of the emitted events, in order.
func (r *Recorder) Emitted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == KindEmit {
			out = append(out, ev.Event)
		}
	}
	return out
}

// Reset discards recorded events. The clock keeps counting.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *Recorder) OnChainStart(a *engine.Artery, steps []spec.Step) {
	r.add(Event{Kind: KindChainStart, Chain: a.Token, Index: -1, Count: a.Count})
}

func (r *Recorder) OnEmit(a *engine.Artery, p *engine.Pulse, args []any) {
	r.add(Event{
		Kind:  KindEmit,
		Chain: a.Token,
		Event: p.Event,
		Index: p.Index,
		Count: p.Count,
		Args:  Values(args),
	})
}

func (r *Recorder) OnStepDrained(a *engine.Artery, step spec.Step) {
	r.add(Event{Kind: KindDrained, Chain: a.Token, Event: step.Name, Index: step.Index})
}

func (r *Recorder) OnRinse(a *engine.Artery) {
	r.add(Event{Kind: KindRinse, Chain: a.Token, Index: -1, Count: a.Count})
}

func (r *Recorder) OnChainEnd(a *engine.Artery) {
	r.add(Event{Kind: KindChainEnd, Chain: a.Token, Index: -1, Count: a.Count})
}

func (r *Recorder) OnListenerError(a *engine.Artery, err *engine.ListenerError) {
	r.add(Event{
		Kind:  KindListenerError,
		Chain: a.Token,
		Event: err.Event,
		Index: err.Index,
		Error: err.Err.Error(),
	})
}
