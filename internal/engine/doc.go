// Package engine implements pulse chains: declared sequences of named events
// driven over a bus.Bus one wave at a time.
//
// An Emitter wraps a bus and a scheduler. Calling To with a chain description
// creates one Artery (the chain state shared by every listener of that
// execution) and a catheter, the state machine that owns one drip per step.
//
// Each drip is an internal bus subscription under its step's event name.
// Internal subscriptions run after every application listener, so when a
// drip fires every listener registered with On or At has returned. A
// listener that finishes later calls Pulse.Hold and releases the pulse when
// done; the drip fires on release.
//
// Lifecycle of a chain:
//
//	Building -> Emitting -> Draining -> (Rinsing -> Emitting -> Draining)* -> Completed
//
// Waves: a wave starts at the next undrained step. A concurrent step pulls
// the consecutive concurrent steps after it into the same wave; sequential
// and immediate steps are waves of one. The next wave is launched only when
// every step of the current one has drained, so at most one wave is in
// flight.
//
// The terminal event (Config.EndEvent) always wins: when it is observed with
// a chain's artery, every remaining drip of that chain is detached and the
// chain is Completed, whether the chain emitted it or somebody else did.
//
// Threading: the engine has no locks. To, Emit and every listener must run on
// the goroutine that drives the scheduler (loop.Loop.Run or RunUntilIdle).
// Release functions returned by Pulse.Hold are the exception: they may be
// called from any goroutine and hop back onto the loop.
package engine
