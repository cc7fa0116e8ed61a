// Package harness runs pulse chains described in YAML scenario files and
// checks the recorded trace.
//
// # Scenario Format
//
//	name: two_steps
//	description: "one passes a value on to two"
//	token: seq            # chain token prefix (default: name)
//	timeout: 2s           # how long to wait for the end event
//	config:
//	  end_event: end
//	  capture_errors: true
//	chain:
//	  mode: sequential
//	  repeat: 1
//	  steps:
//	    - one
//	    - { name: two, mode: concurrent, repeat: 2 }
//	args: ["A"]
//	listeners:
//	  - event: one
//	    pass: [1]
//	  - event: two
//	    delay: 10ms
//	    script: "return [pulse.count * 10]"
//	assertions:
//	  - type: trace_order
//	    events: [one, two, end]
//	  - type: ended_once
//
// Files are checked against an embedded CUE schema before they are decoded,
// so typos and wrong types are reported with their path.
//
// # Listeners
//
// Each listener is registered with Emitter.At. In order it runs its script
// (JavaScript, via goja), passes its values on, then fails or panics when
// asked to. A listener with a delay holds the pulse and releases it from a
// timer goroutine.
//
// Every invocation also checks that the artery belongs to the scenario's chain
// and that neither the artery nor the pulse exceeded its repeat count.
//
// # Assertion Types
//
//   - trace_order: events appear in this order (others may interleave)
//   - trace_exact: the emitted events are exactly this list
//   - trace_count: event was emitted exactly count times
//   - args: the nth emission (occurrence, default 1) of event carried args
//   - ended_once: the chain ended exactly once
//   - stalled: the chain never ended (the run waits for timeout)
//   - passes: the chain ended after count passes
//   - listener_errors: count listener errors (of event, when set)
//   - start_error: starting the chain failed with message
//
// # Determinism
//
// Scenarios run with a testutil.DeterministicClock and
// testutil.SequentialTokens, so the same scenario always produces the same
// trace and golden files compare byte for byte.
package harness
