package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pulse/internal/engine"
	"github.com/roach88/pulse/internal/trace"
)

func emits(names ...string) []trace.Event {
	out := make([]trace.Event, len(names))
	for i, n := range names {
		out[i] = trace.Event{Seq: int64(i + 1), Kind: trace.KindEmit, Chain: "c", Event: n}
	}
	return out
}

func TestAssertTraceOrder_RepeatedNames(t *testing.T) {
	r := &Result{Trace: emits("a", "b", "a", "b", "end")}

	assert.NoError(t, assertTraceOrder(r, Assertion{Events: []string{"a", "a", "end"}}))
	assert.NoError(t, assertTraceOrder(r, Assertion{Events: []string{"b", "b"}}))

	err := assertTraceOrder(r, Assertion{Type: AssertTraceOrder, Events: []string{"a", "a", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `stuck at "a"`)
}

func TestAssertArgs_NumberTypes(t *testing.T) {
	r := &Result{Trace: []trace.Event{
		{Kind: trace.KindEmit, Event: "one", Args: []any{int64(1), 2.5, "x"}},
		{Kind: trace.KindEmit, Event: "one"},
	}}

	assert.NoError(t, assertArgs(r, Assertion{Event: "one", Args: []any{1, 2.5, "x"}}))
	assert.NoError(t, assertArgs(r, Assertion{Event: "one", Occurrence: 2}))
	assert.Error(t, assertArgs(r, Assertion{Event: "one", Args: []any{1}}))
	assert.Error(t, assertArgs(r, Assertion{Event: "one", Occurrence: 3}))
}

func TestAssertEndedOnce(t *testing.T) {
	cfg := engine.DefaultConfig()

	r := &Result{
		Ended: true,
		Trace: append(emits("one", "end"), trace.Event{Kind: trace.KindChainEnd, Count: 1}),
	}
	assert.NoError(t, assertEndedOnce(r, cfg))

	r.Trace = append(r.Trace, emits("end")...)
	assert.Error(t, assertEndedOnce(r, cfg))

	assert.Error(t, assertEndedOnce(&Result{}, cfg))
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "2 emissions of one",
		Actual:   "1 emissions",
		Emitted:  []string{"one", "end"},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 2 emissions of one")
	assert.Contains(t, msg, "Emitted: one, end")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	msgs := EvaluateAssertions(&Result{}, []Assertion{{Type: "nope"}}, engine.DefaultConfig())
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "unknown assertion type")
}
