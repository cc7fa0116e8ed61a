package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/pulse/internal/engine"
	"github.com/roach88/pulse/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Emitted  []string // Emitted events for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Emitted) > 0 {
		fmt.Fprintf(&buf, "  Emitted: %s\n", strings.Join(e.Emitted, ", "))
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. cfg supplies the end and error event names.
func EvaluateAssertions(r *Result, assertions []Assertion, cfg engine.Config) []string {
	var msgs []string
	for _, a := range assertions {
		if err := evaluate(r, a, cfg); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

func evaluate(r *Result, a Assertion, cfg engine.Config) error {
	switch a.Type {
	case AssertTraceOrder:
		return assertTraceOrder(r, a)
	case AssertTraceExact:
		return assertTraceExact(r, a)
	case AssertTraceCount:
		return assertTraceCount(r, a)
	case AssertArgs:
		return assertArgs(r, a)
	case AssertEndedOnce:
		return assertEndedOnce(r, cfg)
	case AssertStalled:
		return assertStalled(r)
	case AssertPasses:
		return assertPasses(r, a)
	case AssertListenerErrors:
		return assertListenerErrors(r, a)
	case AssertStartError:
		return assertStartError(r, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertTraceOrder checks that the events appear in the given order.
// Other events may appear in between; repeated names match successive
// emissions.
func assertTraceOrder(r *Result, a Assertion) error {
	emitted := r.Emitted()
	next := 0
	for _, name := range emitted {
		if next < len(a.Events) && name == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("events in order: %v", a.Events),
		Actual:   fmt.Sprintf("matched %d of %d, stuck at %q", next, len(a.Events), a.Events[next]),
		Emitted:  emitted,
	}
}

func assertTraceExact(r *Result, a Assertion) error {
	emitted := r.Emitted()
	if len(emitted) == len(a.Events) {
		same := true
		for i := range emitted {
			if emitted[i] != a.Events[i] {
				same = false
				break
			}
		}
		if same {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceExact,
		Expected: fmt.Sprintf("%v", a.Events),
		Actual:   fmt.Sprintf("%v", emitted),
	}
}

func assertTraceCount(r *Result, a Assertion) error {
	count := 0
	for _, name := range r.Emitted() {
		if name == a.Event {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d emissions of %s", a.Count, a.Event),
		Actual:   fmt.Sprintf("%d emissions", count),
		Emitted:  r.Emitted(),
	}
}

// assertArgs compares the trailing arguments of one emission. Both sides
// are compared as canonical JSON so YAML and runtime number types agree.
func assertArgs(r *Result, a Assertion) error {
	occurrence := a.Occurrence
	if occurrence == 0 {
		occurrence = 1
	}

	seen := 0
	for _, ev := range r.Trace {
		if ev.Kind != trace.KindEmit || ev.Event != a.Event {
			continue
		}
		seen++
		if seen != occurrence {
			continue
		}

		want, err := canonicalArgs(a.Args)
		if err != nil {
			return fmt.Errorf("args assertion for %s: %w", a.Event, err)
		}
		got, err := canonicalArgs(ev.Args)
		if err != nil {
			return fmt.Errorf("args of %s: %w", a.Event, err)
		}
		if want == got {
			return nil
		}
		return &AssertionError{
			Type:     AssertArgs,
			Expected: fmt.Sprintf("%s #%d with args %s", a.Event, occurrence, want),
			Actual:   fmt.Sprintf("args %s", got),
		}
	}

	return &AssertionError{
		Type:     AssertArgs,
		Expected: fmt.Sprintf("%s emitted at least %d times", a.Event, occurrence),
		Actual:   fmt.Sprintf("%d emissions", seen),
		Emitted:  r.Emitted(),
	}
}

func canonicalArgs(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	data, err := trace.MarshalCanonical(trace.Values(args))
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "[]", nil
	}
	return string(data), nil
}

func assertEndedOnce(r *Result, cfg engine.Config) error {
	ends, emitted := 0, 0
	for _, ev := range r.Trace {
		switch {
		case ev.Kind == trace.KindChainEnd:
			ends++
		case ev.Kind == trace.KindEmit && ev.Event == cfg.EndEvent:
			emitted++
		}
	}
	if ends == 1 && emitted <= 1 && r.Ended {
		return nil
	}
	return &AssertionError{
		Type:     AssertEndedOnce,
		Expected: "chain ends exactly once",
		Actual:   fmt.Sprintf("%d chain ends, %d %s emissions", ends, emitted, cfg.EndEvent),
		Emitted:  r.Emitted(),
	}
}

func assertStalled(r *Result) error {
	if !r.Ended {
		return nil
	}
	return &AssertionError{
		Type:     AssertStalled,
		Expected: "chain never ends",
		Actual:   "chain ended",
		Emitted:  r.Emitted(),
	}
}

func assertPasses(r *Result, a Assertion) error {
	for _, ev := range r.Trace {
		if ev.Kind == trace.KindChainEnd {
			if ev.Count == a.Count {
				return nil
			}
			return &AssertionError{
				Type:     AssertPasses,
				Expected: fmt.Sprintf("chain ends after %d passes", a.Count),
				Actual:   fmt.Sprintf("ended after %d passes", ev.Count),
			}
		}
	}
	return &AssertionError{
		Type:     AssertPasses,
		Expected: fmt.Sprintf("chain ends after %d passes", a.Count),
		Actual:   "chain did not end",
		Emitted:  r.Emitted(),
	}
}

func assertListenerErrors(r *Result, a Assertion) error {
	count := 0
	var messages []string
	for _, ev := range r.Trace {
		if ev.Kind != trace.KindListenerError {
			continue
		}
		if a.Event != "" && ev.Event != a.Event {
			continue
		}
		count++
		messages = append(messages, ev.Event+": "+ev.Error)
	}
	if count == a.Count {
		return nil
	}
	what := "listener errors"
	if a.Event != "" {
		what += " on " + a.Event
	}
	return &AssertionError{
		Type:     AssertListenerErrors,
		Expected: fmt.Sprintf("%d %s", a.Count, what),
		Actual:   fmt.Sprintf("%d %v", count, messages),
	}
}

func assertStartError(r *Result, a Assertion) error {
	if r.StartError != "" && strings.Contains(r.StartError, a.Message) {
		return nil
	}
	actual := "chain started"
	if r.StartError != "" {
		actual = r.StartError
	}
	return &AssertionError{
		Type:     AssertStartError,
		Expected: fmt.Sprintf("start error containing %q", a.Message),
		Actual:   actual,
	}
}
