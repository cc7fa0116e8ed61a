package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pulse/internal/engine"
	"github.com/roach88/pulse/internal/spec"
)

// DefaultTimeout bounds how long Run waits for a chain to end.
const DefaultTimeout = 5 * time.Second

// Scenario describes one chain to run and what its trace must look like.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Token is the chain token prefix. Defaults to Name.
	Token string `yaml:"token,omitempty"`

	// Timeout is a time.ParseDuration string. Defaults to DefaultTimeout.
	Timeout string `yaml:"timeout,omitempty"`

	// Config overrides the emitter configuration.
	Config *engine.Config `yaml:"config,omitempty"`

	// Chain is the chain handed to Emitter.To.
	Chain spec.ChainSpec `yaml:"chain"`

	// Args are the trailing arguments of every emission.
	Args []any `yaml:"args,omitempty"`

	Listeners  []ListenerSpec `yaml:"listeners,omitempty"`
	Assertions []Assertion    `yaml:"assertions"`
}

// ListenerSpec is a scripted chain listener.
type ListenerSpec struct {
	// Event the listener is registered for.
	Event string `yaml:"event"`

	// Pass values are appended to the artery's pass buffer.
	Pass []any `yaml:"pass,omitempty"`

	// Script is a JavaScript function body. It sees artery, pulse and args;
	// an array result is passed on, any other non-null result is passed on as
	// one value, and a throw fails the listener.
	Script string `yaml:"script,omitempty"`

	// Delay holds the pulse and releases it after this duration.
	Delay string `yaml:"delay,omitempty"`

	// Fail makes the listener return an error with this message.
	Fail string `yaml:"fail,omitempty"`

	// Panic makes the listener panic with this message.
	Panic string `yaml:"panic,omitempty"`
}

// Assertion validates the recorded trace.
type Assertion struct {
	Type string `yaml:"type"`

	// Event is used by trace_count, args and listener_errors.
	Event string `yaml:"event,omitempty"`

	// Events is used by trace_order and trace_exact.
	Events []string `yaml:"events,omitempty"`

	// Count is used by trace_count, passes and listener_errors.
	Count int `yaml:"count,omitempty"`

	// Args and Occurrence are used by args.
	Args       []any `yaml:"args,omitempty"`
	Occurrence int   `yaml:"occurrence,omitempty"`

	// Message is used by start_error.
	Message string `yaml:"message,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceOrder     = "trace_order"
	AssertTraceExact     = "trace_exact"
	AssertTraceCount     = "trace_count"
	AssertArgs           = "args"
	AssertEndedOnce      = "ended_once"
	AssertStalled        = "stalled"
	AssertPasses         = "passes"
	AssertListenerErrors = "listener_errors"
	AssertStartError     = "start_error"
)

// LoadScenario reads a scenario file, checks it against the schema and
// decodes it. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario is LoadScenario for in-memory YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	if err := ValidateScenario(data); err != nil {
		return nil, err
	}

	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// timeout returns the parsed Timeout, or DefaultTimeout.
func (s *Scenario) timeout() (time.Duration, error) {
	if s.Timeout == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	return d, nil
}

func (s *Scenario) tokenPrefix() string {
	if s.Token != "" {
		return s.Token
	}
	return s.Name
}

// capturesFor reports whether a listener on event runs with error capture
// on. Capture resolves as the engine does: step, then chain, then config.
// Every step named event must capture; an event no step names falls back to
// the chain and config.
func (s *Scenario) capturesFor(event string) bool {
	chain := s.Config != nil && s.Config.CaptureErrors
	if c := s.Chain.CaptureErrors; c != nil {
		chain = *c
	}

	name := spec.EventName(event)
	matched := false
	for _, st := range s.Chain.Steps {
		if spec.EventName(st.Name) != name {
			continue
		}
		matched = true
		resolved := chain
		if c := st.CaptureErrors; c != nil {
			resolved = *c
		}
		if !resolved {
			return false
		}
	}
	return matched || chain
}

// validateScenario checks what the schema cannot: durations and the fields
// each assertion type needs.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if _, err := s.timeout(); err != nil {
		return err
	}

	for i, l := range s.Listeners {
		if l.Event == "" {
			return fmt.Errorf("listeners[%d]: event is required", i)
		}
		if l.Panic != "" && !s.capturesFor(l.Event) {
			return fmt.Errorf("listeners[%d]: panic requires capture_errors", i)
		}
		if l.Delay != "" {
			if _, err := time.ParseDuration(l.Delay); err != nil {
				return fmt.Errorf("listeners[%d]: delay: %w", i, err)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceOrder, AssertTraceExact:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for %s", index, a.Type)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertArgs:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for args", index)
		}
		if a.Occurrence < 0 {
			return fmt.Errorf("assertions[%d]: occurrence must be positive for args", index)
		}
	case AssertPasses:
		if a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be at least 1 for passes", index)
		}
	case AssertListenerErrors:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for listener_errors", index)
		}
	case AssertStartError:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for start_error", index)
		}
	case AssertEndedOnce, AssertStalled:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
