package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/pulse/internal/spec"
)

// State is the lifecycle state of a chain.
type State int

const (
	// StateBuilding: steps are being normalized and subscribed.
	StateBuilding State = iota

	// StateEmitting: a wave is being emitted.
	StateEmitting

	// StateDraining: waiting for the in-flight wave to complete.
	StateDraining

	// StateRinsing: the step list is being rebuilt for another pass.
	StateRinsing

	// StateCompleted: the end event was observed. Terminal.
	StateCompleted
)

var stateNames = [...]string{
	StateBuilding:  "building",
	StateEmitting:  "emitting",
	StateDraining:  "draining",
	StateRinsing:   "rinsing",
	StateCompleted: "completed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// catheter drives one chain execution.
//
// INVARIANTS:
//   - drips is in declaration order; drips[i].step.Index == i
//   - inflight only holds indices of attached, undrained drips
//   - a wave is launched only when inflight is empty
//   - once state is StateCompleted no drip is attached
type catheter struct {
	em     *Emitter
	chain  spec.ChainSpec
	artery *Artery
	args   []any

	drips    []*drip
	end      *drip
	cursor   int
	inflight map[int]struct{}

	state State
	ended bool
}

// build attaches one drip per step plus the end drip. On error every drip
// attached so far is detached again.
func (c *catheter) build() error {
	c.state = StateBuilding

	if err := c.attachSteps(); err != nil {
		return err
	}

	end := spec.Step{
		Name:   c.em.cfg.EndEvent,
		Mode:   c.artery.Mode,
		Repeat: 1,
		ID:     c.artery.ID,
		Index:  -1,
	}
	c.end = newDrip(c, end)
	c.end.terminal = true
	c.end.attach(c.em.bus, c.terminate)
	return nil
}

// attachSteps normalizes the step list and subscribes a fresh drip for each
// step. Used by build and by every rinse.
func (c *catheter) attachSteps() error {
	defaults := c.chain.Defaults()
	drips := make([]*drip, 0, len(c.chain.Steps))

	unwind := func() {
		for _, d := range drips {
			d.detach()
		}
	}

	for i, raw := range c.chain.Steps {
		step, err := spec.Normalize(raw, defaults, i)
		if err != nil {
			unwind()
			return fmt.Errorf("build chain %s: %w", c.artery.Token, err)
		}
		if step.Name == c.em.cfg.EndEvent {
			unwind()
			return fmt.Errorf("build chain %s: %w", c.artery.Token,
				&ReservedEventNameError{Index: i, Name: step.Name})
		}

		d := newDrip(c, step)
		d.attach(c.em.bus, c.drain)
		drips = append(drips, d)
	}

	c.drips = drips
	c.cursor = 0
	c.inflight = make(map[int]struct{})
	return nil
}

func (c *catheter) steps() []spec.Step {
	out := make([]spec.Step, len(c.drips))
	for i, d := range c.drips {
		out[i] = d.step
	}
	return out
}

// nextPending returns the index of the next undrained step, scanning forward
// from the cursor and then from the start. -1 if every step is drained.
func (c *catheter) nextPending() int {
	for i := c.cursor; i < len(c.drips); i++ {
		if !c.drips[i].drained() {
			return i
		}
	}
	for i := 0; i < c.cursor && i < len(c.drips); i++ {
		if !c.drips[i].drained() {
			return i
		}
	}
	return -1
}

// claimant returns the drip that an out-of-band emission of name counts
// for: the first attached, undrained drip with that name.
func (c *catheter) claimant(name string) *drip {
	for _, d := range c.drips {
		if d.step.Name == name && d.attached() && !d.drained() {
			return d
		}
	}
	return nil
}

func (c *catheter) allDrained() bool {
	for _, d := range c.drips {
		if !d.drained() {
			return false
		}
	}
	return true
}

// immediate reports whether every step of the chain is immediate, in which
// case the whole chain, end event included, runs synchronously.
func (c *catheter) immediate() bool {
	for _, d := range c.drips {
		if d.step.Mode.Deferred() {
			return false
		}
	}
	return true
}

// wave selects the steps of the next wave, starting at start.
func (c *catheter) wave(start int) []*drip {
	first := c.drips[start]
	wave := []*drip{first}
	if first.step.Mode != spec.ModeConcurrent {
		return wave
	}
	for i := start + 1; i < len(c.drips); i++ {
		d := c.drips[i]
		if d.step.Mode != spec.ModeConcurrent {
			break
		}
		if d.drained() {
			continue
		}
		wave = append(wave, d)
	}
	return wave
}

// launchNext emits the next wave. It is a no-op while a wave is in flight.
func (c *catheter) launchNext() error {
	if len(c.inflight) > 0 || c.state == StateCompleted {
		return nil
	}
	start := c.nextPending()
	if start < 0 {
		return nil
	}

	wave := c.wave(start)
	last := wave[len(wave)-1]
	c.cursor = last.step.Index + 1
	for _, d := range wave {
		c.inflight[d.step.Index] = struct{}{}
	}

	c.state = StateEmitting
	err := c.emitWave(wave)
	if c.state == StateEmitting {
		c.state = StateDraining
	}
	return err
}

func (c *catheter) emitWave(wave []*drip) error {
	if len(wave) == 1 && !wave[0].step.Mode.Deferred() {
		return c.emitImmediate(wave[0])
	}

	// Deferred waves share one snapshot of the pass buffer.
	pass := c.artery.takePass()
	for _, d := range wave {
		for k := d.remaining(); k > 0; k-- {
			if !c.em.sched.Defer(func() error { return c.emitDeferred(d, pass) }) {
				slog.Warn("chain emission dropped",
					"chain", c.artery.Token,
					"event", d.step.Name,
					"error", ErrSchedulerStopped,
				)
				return fmt.Errorf("chain %s: emit %q: %w", c.artery.Token, d.step.Name, ErrSchedulerStopped)
			}
		}
	}
	return nil
}

// emitImmediate emits d back to back until its quota is met, each emission
// with a fresh pass buffer snapshot. Completion of the step may launch the
// following waves before this returns.
func (c *catheter) emitImmediate(d *drip) error {
	remaining := d.remaining()
	for k := 0; k < remaining && d.attached(); k++ {
		if err := c.emit(d, c.artery.takePass()); err != nil {
			return err
		}
	}
	return nil
}

func (c *catheter) emitDeferred(d *drip, pass []any) error {
	if !d.attached() || c.state == StateCompleted {
		return nil
	}
	return c.emit(d, pass)
}

func (c *catheter) emit(d *drip, pass []any) error {
	d.emitted++
	p := &Pulse{
		Event:  d.step.Name,
		Mode:   d.step.Mode,
		Repeat: d.step.Repeat,
		Count:  d.emitted,
		ID:     d.step.ID,
		Index:  d.step.Index,
		d:      d,
	}
	return c.emitPulse(p, pass)
}

func (c *catheter) emitPulse(p *Pulse, pass []any) error {
	args := c.listenerArgs(p, pass)
	c.em.observer.OnEmit(c.artery, p, args[2:])
	return c.em.bus.Emit(p.Event, args...)
}

// listenerArgs builds (artery, pulse, pass..., trailing...).
func (c *catheter) listenerArgs(p *Pulse, pass []any) []any {
	args := make([]any, 0, 2+len(pass)+len(c.args))
	args = append(args, c.artery, p)
	args = append(args, pass...)
	return append(args, c.args...)
}

// drain runs after every counted fire of a step drip.
func (c *catheter) drain(d *drip) error {
	if c.state == StateCompleted || !d.drained() {
		return nil
	}

	d.detach()
	delete(c.inflight, d.step.Index)
	c.em.observer.OnStepDrained(c.artery, d.step)

	if c.allDrained() {
		return c.finishPass()
	}
	return c.launchNext()
}

// finishPass starts another pass or ends the chain.
func (c *catheter) finishPass() error {
	if c.artery.Count < c.artery.Repeat {
		return c.rinse()
	}
	return c.emitEnd()
}

// rinse rebuilds the step drips for the next pass. The artery is kept.
func (c *catheter) rinse() error {
	c.state = StateRinsing
	c.artery.Count++
	arteryFor(c.artery, c.chain, "")

	for _, d := range c.drips {
		d.detach()
	}
	if err := c.attachSteps(); err != nil {
		return err
	}

	slog.Debug("chain rinsed",
		"chain", c.artery.Token,
		"pass", c.artery.Count,
		"repeat", c.artery.Repeat,
	)
	c.em.observer.OnRinse(c.artery)
	return c.launchNext()
}

// emitEnd emits the end event once per chain.
func (c *catheter) emitEnd() error {
	if c.ended {
		return nil
	}
	c.ended = true

	p := &Pulse{
		Event:  c.end.step.Name,
		Mode:   c.end.step.Mode,
		Repeat: 1,
		Count:  1,
		ID:     c.artery.ID,
		Index:  -1,
		d:      c.end,
	}
	pass := c.artery.takePass()

	if c.immediate() {
		return c.emitPulse(p, pass)
	}

	ok := c.em.sched.Defer(func() error {
		if c.state == StateCompleted {
			return nil
		}
		return c.emitPulse(p, pass)
	})
	if !ok {
		return fmt.Errorf("chain %s: emit %q: %w", c.artery.Token, p.Event, ErrSchedulerStopped)
	}
	return nil
}

// terminate runs when the end drip fires. It wins over any other state: every
// remaining drip is detached and the chain is completed.
func (c *catheter) terminate(*drip) error {
	if c.state == StateCompleted {
		return nil
	}
	c.ended = true

	for _, d := range c.drips {
		d.detach()
	}
	c.end.detach()
	clear(c.inflight)
	c.state = StateCompleted

	slog.Debug("chain completed",
		"chain", c.artery.Token,
		"passes", c.artery.Count,
	)
	c.em.observer.OnChainEnd(c.artery)
	return nil
}
