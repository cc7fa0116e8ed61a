package engine

import "github.com/roach88/pulse/internal/spec"

// Default event names.
const (
	DefaultEndEvent   = "end"
	DefaultErrorEvent = "error"
)

// Config holds the emitter-wide settings.
type Config struct {
	// EndEvent is emitted once when a chain completes. Steps may not use it.
	EndEvent string `yaml:"end_event"`

	// ErrorEvent carries captured listener failures and EmitError calls.
	ErrorEvent string `yaml:"error_event"`

	// CaptureErrors turns listener failures into error events for chains and
	// steps that do not set their own capture flag.
	CaptureErrors bool `yaml:"capture_errors"`
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		EndEvent:   DefaultEndEvent,
		ErrorEvent: DefaultErrorEvent,
	}
}

// normalized fills empty event names with the defaults and canonicalizes
// the rest the same way step names are.
func (c Config) normalized() Config {
	c.EndEvent = spec.EventName(c.EndEvent)
	if c.EndEvent == "" {
		c.EndEvent = DefaultEndEvent
	}
	c.ErrorEvent = spec.EventName(c.ErrorEvent)
	if c.ErrorEvent == "" {
		c.ErrorEvent = DefaultErrorEvent
	}
	return c
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(e *Emitter) {
		e.cfg = cfg
	}
}

// WithEndEvent sets the terminal event name.
func WithEndEvent(name string) Option {
	return func(e *Emitter) {
		e.cfg.EndEvent = name
	}
}

// WithErrorEvent sets the event captured failures are emitted on.
func WithErrorEvent(name string) Option {
	return func(e *Emitter) {
		e.cfg.ErrorEvent = name
	}
}

// WithCaptureErrors sets the emitter-wide capture default.
func WithCaptureErrors(capture bool) Option {
	return func(e *Emitter) {
		e.cfg.CaptureErrors = capture
	}
}

// WithObserver adds an observer. Multiple observers are notified in the
// order they were added.
func WithObserver(o Observer) Option {
	return func(e *Emitter) {
		e.observers = append(e.observers, o)
	}
}

// WithTokenGenerator sets the generator used for chain tokens.
// Default: UUIDv7Generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Emitter) {
		e.tokens = g
	}
}
