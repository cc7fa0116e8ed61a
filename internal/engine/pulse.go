package engine

import (
	"log/slog"
	"sync"

	"github.com/roach88/pulse/internal/spec"
)

// Pulse describes one emission of a chain step. It is passed to listeners
// right after the artery.
type Pulse struct {
	// Event is the emitted event name.
	Event string

	// Mode is the step's resolved mode.
	Mode spec.Mode

	// Repeat is the step's repeat quota.
	Repeat int

	// Count is the 1-based number of this emission of the step within the
	// current pass.
	Count int

	// ID is the step's correlation id.
	ID any

	// Index is the step's position, -1 for the end event.
	Index int

	d       *drip
	holds   int
	pending []func() error
}

// Release acknowledges a held pulse. A non-nil err is surfaced on the error
// event as a *ListenerError; pass values are appended to the artery's pass
// buffer. Safe to call from any goroutine; only the first call counts.
type Release func(err error, pass ...any)

// Hold tells the chain that the calling listener finishes later. The step
// does not count this emission until every Release returned by Hold has been
// called. Hold must be called before the listener returns.
//
// Hold on a nil pulse (an emission from outside any chain) returns a no-op.
func (p *Pulse) Hold() Release {
	if p == nil || p.d == nil {
		return func(error, ...any) {}
	}
	p.holds++

	var once sync.Once
	return func(err error, pass ...any) {
		once.Do(func() {
			c := p.d.cat
			if !c.em.sched.Defer(func() error { return p.release(err, pass) }) {
				slog.Warn("pulse release dropped",
					"chain", c.artery.Token,
					"event", p.Event,
					"error", ErrSchedulerStopped,
				)
			}
		})
	}
}

// Held reports whether the pulse has unreleased holds.
func (p *Pulse) Held() bool {
	return p != nil && p.holds > 0
}

func (p *Pulse) release(err error, pass []any) error {
	c := p.d.cat
	if err != nil {
		c.em.surface(c.artery, p, p.Event, p.Index, err, false)
	}
	if len(pass) > 0 {
		c.artery.PassOn(pass...)
	}

	p.holds--
	if p.holds > 0 {
		return nil
	}

	pending := p.pending
	p.pending = nil
	for _, fire := range pending {
		if err := fire(); err != nil {
			return err
		}
	}
	return nil
}
