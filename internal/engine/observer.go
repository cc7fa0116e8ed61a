package engine

import (
	"log/slog"

	"github.com/roach88/pulse/internal/spec"
)

// Observer receives chain lifecycle callbacks from the engine, on the loop
// goroutine. Implementations must not block and must not emit.
type Observer interface {
	// OnChainStart is called once per chain, after its steps are subscribed
	// and before the first wave is emitted.
	OnChainStart(a *Artery, steps []spec.Step)

	// OnEmit is called right before a step or the end event is emitted by
	// the chain itself. args are the listener arguments after the artery and
	// pulse.
	OnEmit(a *Artery, p *Pulse, args []any)

	// OnStepDrained is called when a step has completed its repeat quota
	// within the current pass.
	OnStepDrained(a *Artery, step spec.Step)

	// OnRinse is called when another pass starts; a.Count is already the
	// new pass number.
	OnRinse(a *Artery)

	// OnChainEnd is called once, when the chain completes.
	OnChainEnd(a *Artery)

	// OnListenerError is called for every captured listener failure and
	// every failed Release, before the error event is emitted.
	OnListenerError(a *Artery, err *ListenerError)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnChainStart(*Artery, []spec.Step)       {}
func (NoopObserver) OnEmit(*Artery, *Pulse, []any)           {}
func (NoopObserver) OnStepDrained(*Artery, spec.Step)        {}
func (NoopObserver) OnRinse(*Artery)                         {}
func (NoopObserver) OnChainEnd(*Artery)                      {}
func (NoopObserver) OnListenerError(*Artery, *ListenerError) {}

// CompositeObserver fans out callbacks to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards callbacks to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	switch len(filtered) {
	case 0:
		return NoopObserver{}
	case 1:
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnChainStart(a *Artery, steps []spec.Step) {
	for _, o := range c.observers {
		o.OnChainStart(a, steps)
	}
}

func (c *CompositeObserver) OnEmit(a *Artery, p *Pulse, args []any) {
	for _, o := range c.observers {
		o.OnEmit(a, p, args)
	}
}

func (c *CompositeObserver) OnStepDrained(a *Artery, step spec.Step) {
	for _, o := range c.observers {
		o.OnStepDrained(a, step)
	}
}

func (c *CompositeObserver) OnRinse(a *Artery) {
	for _, o := range c.observers {
		o.OnRinse(a)
	}
}

func (c *CompositeObserver) OnChainEnd(a *Artery) {
	for _, o := range c.observers {
		o.OnChainEnd(a)
	}
}

func (c *CompositeObserver) OnListenerError(a *Artery, err *ListenerError) {
	for _, o := range c.observers {
		o.OnListenerError(a, err)
	}
}

// LoggingObserver writes chain lifecycle events with log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs to logger, or to
// slog.Default() when logger is nil.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnChainStart(a *Artery, steps []spec.Step) {
	o.Logger.Info("chain_start",
		slog.String("chain", a.Token),
		slog.Int("steps", len(steps)),
		slog.String("mode", a.Mode.String()),
		slog.Int("repeat", a.Repeat),
	)
}

func (o *LoggingObserver) OnEmit(a *Artery, p *Pulse, args []any) {
	o.Logger.Debug("emit",
		slog.String("chain", a.Token),
		slog.String("event", p.Event),
		slog.Int("step_index", p.Index),
		slog.Int("count", p.Count),
		slog.Int("args", len(args)),
	)
}

func (o *LoggingObserver) OnStepDrained(a *Artery, step spec.Step) {
	o.Logger.Debug("step_drained",
		slog.String("chain", a.Token),
		slog.String("event", step.Name),
		slog.Int("step_index", step.Index),
	)
}

func (o *LoggingObserver) OnRinse(a *Artery) {
	o.Logger.Debug("chain_rinse",
		slog.String("chain", a.Token),
		slog.Int("pass", a.Count),
	)
}

func (o *LoggingObserver) OnChainEnd(a *Artery) {
	o.Logger.Info("chain_end",
		slog.String("chain", a.Token),
		slog.Int("passes", a.Count),
	)
}

func (o *LoggingObserver) OnListenerError(a *Artery, err *ListenerError) {
	o.Logger.Error("listener_error",
		slog.String("chain", a.Token),
		slog.String("event", err.Event),
		slog.Any("error", err.Err),
	)
}
