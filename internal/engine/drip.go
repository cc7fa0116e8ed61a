package engine

import (
	"log/slog"

	"github.com/roach88/pulse/internal/bus"
	"github.com/roach88/pulse/internal/spec"
)

// drip is the runtime of one step for one pass of one chain: an internal
// bus subscription plus the number of times the step has completed.
type drip struct {
	step     spec.Step
	fired    int
	emitted  int
	terminal bool

	cat       *catheter
	sub       *bus.Subscription
	onDrained func(*drip) error
}

func newDrip(c *catheter, step spec.Step) *drip {
	return &drip{step: step, cat: c}
}

// attach subscribes the drip under its step name. onDrained runs after every
// counted fire.
func (d *drip) attach(b *bus.Bus, onDrained func(*drip) error) {
	d.onDrained = onDrained
	d.sub = b.SubscribeInternal(d.step.Name, d.handle)
}

// detach unsubscribes the drip. Safe to call repeatedly.
func (d *drip) detach() {
	if d.sub == nil {
		return
	}
	d.sub.Unsubscribe()
	d.sub = nil
}

func (d *drip) attached() bool {
	return d.sub != nil
}

func (d *drip) drained() bool {
	return d.fired >= d.step.Repeat
}

func (d *drip) remaining() int {
	return d.step.Repeat - d.fired
}

// handle is the bus handler. It runs after every application listener of the
// emission has returned.
func (d *drip) handle(args ...any) error {
	a, p, _ := splitChainArgs(args)

	c := d.cat
	if a == nil || a != c.artery {
		err := &ArterySpoofError{Event: d.step.Name, Chain: c.artery.Token}
		if a != nil {
			err.Foreign = a.Token
		}
		slog.Debug("ignoring emission", "error", err)
		return nil
	}

	// A pulse of this event is correlated by identity: it belongs to exactly
	// one drip. Anything else is an out-of-band emission, which only the
	// first undrained drip of this name may claim. The end drip takes both.
	if !d.terminal {
		if p != nil && p.Event == d.step.Name {
			if p.d != d {
				return nil
			}
		} else {
			p = nil
			if c.claimant(d.step.Name) != d {
				return nil
			}
		}
	}

	if p != nil && p.holds > 0 {
		p.pending = append(p.pending, d.fire)
		return nil
	}
	return d.fire()
}

// fire counts one completion and hands over to the catheter. Fires that
// arrive after the drip was detached are dropped.
func (d *drip) fire() error {
	if !d.attached() {
		return nil
	}
	if d.fired < d.step.Repeat {
		d.fired++
	}
	return d.onDrained(d)
}

// splitChainArgs separates the (artery, pulse) prefix of a chain emission
// from the remaining arguments. Either may be nil.
func splitChainArgs(args []any) (*Artery, *Pulse, []any) {
	if len(args) == 0 {
		return nil, nil, args
	}
	a, ok := args[0].(*Artery)
	if !ok {
		return nil, nil, args
	}
	if len(args) > 1 {
		if p, ok := args[1].(*Pulse); ok {
			return a, p, args[2:]
		}
	}
	return a, nil, args[1:]
}
