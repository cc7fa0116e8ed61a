package engine

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/roach88/pulse/internal/bus"
	"github.com/roach88/pulse/internal/spec"
)

// Listener is a chain-aware listener registered with At. a and p identify
// the chain and the emission; args are the pass values followed by the
// chain's trailing arguments.
type Listener func(a *Artery, p *Pulse, args ...any) error

// ErrorOptions controls EmitError.
type ErrorOptions struct {
	// Deferred emits on a later turn of the loop instead of synchronously.
	Deferred bool

	// End emits the end event with Args right after the error event. With an
	// artery as the first of Args this terminates that chain early.
	End bool

	// Ignore lists errors (matched with errors.Is) that are dropped.
	Ignore []error

	// Args follow the error in the error event's arguments.
	Args []any
}

// Emitter runs pulse chains over a bus.
//
// Thread-safety model:
//   - To, Emit, EmitError: call from the loop goroutine (or before the loop
//     runs)
//   - On, At, Listeners, RemoveAll, EmitDeferred: safe from any goroutine
type Emitter struct {
	bus       *bus.Bus
	sched     bus.Scheduler
	cfg       Config
	observers []Observer
	observer  Observer
	tokens    TokenGenerator
}

// New creates an emitter whose deferred work runs on sched.
func New(sched bus.Scheduler, opts ...Option) *Emitter {
	e := &Emitter{
		bus:    bus.New(sched),
		sched:  sched,
		cfg:    DefaultConfig(),
		tokens: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.cfg = e.cfg.normalized()
	e.observer = NewCompositeObserver(e.observers...)
	return e
}

// Config returns the effective configuration.
func (e *Emitter) Config() Config {
	return e.cfg
}

// Bus returns the underlying bus.
func (e *Emitter) Bus() *bus.Bus {
	return e.bus
}

// On registers a raw listener that receives every emission of name.
func (e *Emitter) On(name string, h bus.Handler) *bus.Subscription {
	return e.bus.Subscribe(spec.EventName(name), h)
}

// At registers a chain listener for name. Emissions that do not carry an
// artery are ignored. When error capture applies, a returned error or a panic
// is emitted on the error event as a *ListenerError and swallowed; otherwise
// the error is returned to the emitter and a panic propagates.
func (e *Emitter) At(name string, l Listener) *bus.Subscription {
	name = spec.EventName(name)
	return e.bus.Subscribe(name, func(args ...any) (err error) {
		a, p, rest := splitChainArgs(args)
		if a == nil {
			return nil
		}

		if !e.captures(a, p) {
			return l(a, p, rest...)
		}

		defer func() {
			if r := recover(); r != nil {
				e.surface(a, p, name, pulseIndex(p), panicError(r), true)
				err = nil
			}
		}()
		if lerr := l(a, p, rest...); lerr != nil {
			e.surface(a, p, name, pulseIndex(p), lerr, false)
		}
		return nil
	})
}

// Emit dispatches args to the listeners of name on the current goroutine.
func (e *Emitter) Emit(name string, args ...any) error {
	return e.bus.Emit(spec.EventName(name), args...)
}

// EmitDeferred schedules an emission on a later turn of the loop.
func (e *Emitter) EmitDeferred(name string, args ...any) bool {
	return e.bus.EmitDeferred(spec.EventName(name), args...)
}

// Listeners returns the number of application listeners of name. Chain
// drips are not counted.
func (e *Emitter) Listeners(name string) int {
	return e.bus.Count(spec.EventName(name))
}

// RemoveAll removes every application listener of name. Running chains are
// not affected.
func (e *Emitter) RemoveAll(name string) {
	e.bus.RemoveAll(spec.EventName(name))
}

// To starts a chain and returns its artery without waiting for it to
// complete. Chains made only of immediate steps complete before To returns.
//
// Build errors (*spec.MissingEventNameError, *ReservedEventNameError) are
// returned after every subscription the build made is removed. An empty chain
// emits the end event synchronously and returns an already completed artery.
func (e *Emitter) To(cs spec.ChainSpec, args ...any) (*Artery, error) {
	cs.Steps = slices.Clone(cs.Steps)

	a := arteryFor(nil, cs, e.tokens.Generate())
	c := &catheter{
		em:     e,
		chain:  cs,
		artery: a,
		args:   slices.Clone(args),
	}
	a.cat = c

	if len(cs.Steps) == 0 {
		return a, e.completeEmpty(c)
	}

	if err := c.build(); err != nil {
		slog.Debug("chain build failed", "chain", a.Token, "error", err)
		return nil, err
	}

	slog.Debug("chain started",
		"chain", a.Token,
		"steps", len(c.drips),
		"mode", a.Mode,
		"repeat", a.Repeat,
	)
	e.observer.OnChainStart(a, c.steps())
	return a, c.launchNext()
}

// completeEmpty finishes a chain without steps: nothing is subscribed and the
// end event is emitted once, synchronously.
func (e *Emitter) completeEmpty(c *catheter) error {
	a := c.artery
	c.state = StateCompleted
	c.ended = true

	e.observer.OnChainStart(a, nil)
	p := &Pulse{
		Event:  e.cfg.EndEvent,
		Mode:   a.Mode,
		Repeat: 1,
		Count:  1,
		ID:     a.ID,
		Index:  -1,
	}
	args := c.listenerArgs(p, a.takePass())
	e.observer.OnEmit(a, p, args[2:])
	e.observer.OnChainEnd(a)
	return e.bus.Emit(p.Event, args...)
}

// EmitError surfaces err on the error event, followed by the end event when
// opts.End is set. A nil err or one matching opts.Ignore is dropped.
func (e *Emitter) EmitError(err error, opts ErrorOptions) error {
	if err == nil {
		return nil
	}
	for _, ignored := range opts.Ignore {
		if errors.Is(err, ignored) {
			return nil
		}
	}

	args := append([]any{err}, opts.Args...)
	if opts.Deferred {
		ok := e.bus.EmitDeferred(e.cfg.ErrorEvent, args...)
		if opts.End {
			ok = e.bus.EmitDeferred(e.cfg.EndEvent, opts.Args...) && ok
		}
		if !ok {
			return ErrSchedulerStopped
		}
		return nil
	}

	if emitErr := e.bus.Emit(e.cfg.ErrorEvent, args...); emitErr != nil {
		return emitErr
	}
	if opts.End {
		return e.bus.Emit(e.cfg.EndEvent, opts.Args...)
	}
	return nil
}

// captures resolves the capture flag: step, then chain, then emitter.
func (e *Emitter) captures(a *Artery, p *Pulse) bool {
	if p != nil && p.d != nil && p.d.step.CaptureErrors != nil {
		return *p.d.step.CaptureErrors
	}
	if a.capture != nil {
		return *a.capture
	}
	return e.cfg.CaptureErrors
}

// surface emits a listener failure on the error event as (err, artery,
// pulse). Failures of the error listeners themselves are logged.
func (e *Emitter) surface(a *Artery, p *Pulse, event string, index int, cause error, panicked bool) {
	lerr := &ListenerError{
		Event:    event,
		Index:    index,
		Chain:    a.Token,
		Panicked: panicked,
		Err:      cause,
	}
	if p != nil {
		lerr.ID = p.ID
	}

	e.observer.OnListenerError(a, lerr)
	if err := e.bus.Emit(e.cfg.ErrorEvent, lerr, a, p); err != nil {
		slog.Error("error listener failed",
			"chain", a.Token,
			"event", event,
			"error", err,
		)
	}
}

func pulseIndex(p *Pulse) int {
	if p == nil {
		return -1
	}
	return p.Index
}
