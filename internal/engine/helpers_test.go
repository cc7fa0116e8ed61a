package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pulse/internal/loop"
	"github.com/roach88/pulse/internal/spec"
)

func newTestEmitter(t *testing.T, opts ...Option) (*Emitter, *loop.Loop) {
	t.Helper()
	l := loop.New()
	gen := NewFixedGenerator("chain-1", "chain-2", "chain-3", "chain-4")
	e := New(l, append([]Option{WithTokenGenerator(gen)}, opts...)...)
	return e, l
}

// call is one listener invocation seen by a recorder.
type call struct {
	event  string
	artery *Artery
	pulse  *Pulse
	args   []any
}

type recorder struct {
	calls []call
}

// listen registers a chain listener on each name that records the call.
func (r *recorder) listen(e *Emitter, names ...string) {
	for _, name := range names {
		e.At(name, func(a *Artery, p *Pulse, args ...any) error {
			r.calls = append(r.calls, call{event: name, artery: a, pulse: p, args: args})
			return nil
		})
	}
}

func (r *recorder) events() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.event
	}
	return out
}

func (r *recorder) eventsFor(a *Artery) []string {
	var out []string
	for _, c := range r.calls {
		if c.artery == a {
			out = append(out, c.event)
		}
	}
	return out
}

func (r *recorder) count(event string) int {
	n := 0
	for _, c := range r.calls {
		if c.event == event {
			n++
		}
	}
	return n
}

// countingObserver counts lifecycle callbacks.
type countingObserver struct {
	NoopObserver
	starts  int
	emits   int
	drained []string
	rinses  int
	ends    int
	errors  []*ListenerError
}

func (o *countingObserver) OnChainStart(*Artery, []spec.Step)       { o.starts++ }
func (o *countingObserver) OnEmit(*Artery, *Pulse, []any)           { o.emits++ }
func (o *countingObserver) OnStepDrained(_ *Artery, s spec.Step)    { o.drained = append(o.drained, s.Name) }
func (o *countingObserver) OnRinse(*Artery)                         { o.rinses++ }
func (o *countingObserver) OnChainEnd(*Artery)                      { o.ends++ }
func (o *countingObserver) OnListenerError(_ *Artery, err *ListenerError) {
	o.errors = append(o.errors, err)
}

func run(t *testing.T, l *loop.Loop) {
	t.Helper()
	require.NoError(t, l.RunUntilIdle())
}

func boolPtr(b bool) *bool { return &b }

// permutations returns every ordering of 0..n-1.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			perm := make([]int, 0, n)
			perm = append(perm, p[:i]...)
			perm = append(perm, n-1)
			perm = append(perm, p[i:]...)
			out = append(out, perm)
		}
	}
	return out
}
