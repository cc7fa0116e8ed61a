// Package pulse chains named events over an emitter.
//
// A chain is an ordered list of steps. Each step names an event that is
// emitted once per pass, sequentially, concurrently with its neighbours or
// synchronously. Listeners see the chain's Artery and the emission's Pulse,
// pass values forward with Artery.PassOn and finish asynchronously with
// Pulse.Hold. When every pass has drained the chain emits the end event
// exactly once.
//
//	l := pulse.NewLoop()
//	e := pulse.New(l)
//	e.At("fetch", func(a *pulse.Artery, p *pulse.Pulse, args ...any) error {
//		release := p.Hold()
//		go func() { release(nil, fetch()) }()
//		return nil
//	})
//	e.On("end", func(args ...any) error { l.Stop(); return nil })
//	if _, err := e.To(pulse.Names("fetch", "store")); err != nil {
//		return err
//	}
//	return l.Run(ctx)
package pulse

import (
	"github.com/roach88/pulse/internal/bus"
	"github.com/roach88/pulse/internal/engine"
	"github.com/roach88/pulse/internal/loop"
	"github.com/roach88/pulse/internal/spec"
)

type (
	Emitter        = engine.Emitter
	Artery         = engine.Artery
	Pulse          = engine.Pulse
	Listener       = engine.Listener
	Release        = engine.Release
	State          = engine.State
	Config         = engine.Config
	Option         = engine.Option
	ErrorOptions   = engine.ErrorOptions
	Observer       = engine.Observer
	NoopObserver   = engine.NoopObserver
	TokenGenerator = engine.TokenGenerator

	ListenerError          = engine.ListenerError
	ReservedEventNameError = engine.ReservedEventNameError
	ArterySpoofError       = engine.ArterySpoofError

	StepSpec  = spec.StepSpec
	ChainSpec = spec.ChainSpec
	Step      = spec.Step
	Mode      = spec.Mode

	Handler      = bus.Handler
	Scheduler    = bus.Scheduler
	Subscription = bus.Subscription

	Loop = loop.Loop
)

const (
	Sequential = spec.ModeSequential
	Concurrent = spec.ModeConcurrent
	Immediate  = spec.ModeImmediate
)

const (
	StateBuilding  = engine.StateBuilding
	StateEmitting  = engine.StateEmitting
	StateDraining  = engine.StateDraining
	StateRinsing   = engine.StateRinsing
	StateCompleted = engine.StateCompleted
)

var ErrSchedulerStopped = engine.ErrSchedulerStopped

// New creates an emitter whose deferred work runs on sched.
func New(sched Scheduler, opts ...Option) *Emitter { return engine.New(sched, opts...) }

// NewLoop creates the default single-goroutine scheduler.
func NewLoop() *Loop { return loop.New() }

// Name returns the bare-name form of a step.
func Name(name string) StepSpec {
	return spec.Name(name)
}

// List builds a chain from steps with no chain-wide overrides.
func List(steps ...StepSpec) ChainSpec {
	return spec.List(steps...)
}

// Names builds a chain of bare-name steps.
func Names(names ...string) ChainSpec {
	return spec.Names(names...)
}

// ParseMode resolves a mode name or alias, case-insensitively.
func ParseMode(s string) (Mode, bool) {
	return spec.ParseMode(s)
}

func DefaultConfig() Config {
	return engine.DefaultConfig()
}

func WithConfig(cfg Config) Option {
	return engine.WithConfig(cfg)
}

func WithEndEvent(name string) Option {
	return engine.WithEndEvent(name)
}

func WithErrorEvent(name string) Option {
	return engine.WithErrorEvent(name)
}

func WithCaptureErrors(capture bool) Option {
	return engine.WithCaptureErrors(capture)
}

// WithObserver adds an observer; observers are called in the order added.
func WithObserver(o Observer) Option {
	return engine.WithObserver(o)
}

func WithTokenGenerator(g TokenGenerator) Option {
	return engine.WithTokenGenerator(g)
}

func IsListenerError(err error) bool {
	return engine.IsListenerError(err)
}

func IsReservedEventNameError(err error) bool {
	return engine.IsReservedEventNameError(err)
}

func IsArterySpoofError(err error) bool {
	return engine.IsArterySpoofError(err)
}
