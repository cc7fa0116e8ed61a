// Package spec defines how callers describe a pulse chain and resolves those
// descriptions into canonical step records.
//
// A step is authored either as a bare event name or as a partial record; a
// chain is either a plain ordered list of steps or a record carrying
// chain-wide defaults. Both forms decode from YAML. Normalize turns one step
// into a Step, filling unset fields from the chain.
package spec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StepSpec is an author-supplied step: a name plus optional overrides.
// Zero values mean "inherit from the chain" (mode, id, capture) or
// "use the default" (repeat).
type StepSpec struct {
	Name          string
	Mode          Mode
	Repeat        int
	ID            any
	CaptureErrors *bool
}

// Name returns the bare-name form of a step.
func Name(name string) StepSpec {
	return StepSpec{Name: name}
}

// stepRecord is the YAML mapping form of a step. "event" and "type" are the
// field names used by earlier pulse chain files.
type stepRecord struct {
	Name          string `yaml:"name"`
	Event         string `yaml:"event"`
	Mode          string `yaml:"mode"`
	Type          string `yaml:"type"`
	Repeat        int    `yaml:"repeat"`
	ID            any    `yaml:"id"`
	CaptureErrors *bool  `yaml:"capture_errors"`
}

// UnmarshalYAML accepts a scalar (bare name) or a mapping.
func (s *StepSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		*s = StepSpec{Name: name}
		return nil

	case yaml.MappingNode:
		var rec stepRecord
		if err := node.Decode(&rec); err != nil {
			return err
		}
		name := rec.Name
		if name == "" {
			name = rec.Event
		}
		mode := rec.Mode
		if mode == "" {
			mode = rec.Type
		}
		*s = StepSpec{
			Name:          name,
			Mode:          Mode(mode),
			Repeat:        rec.Repeat,
			ID:            rec.ID,
			CaptureErrors: rec.CaptureErrors,
		}
		return nil

	default:
		return fmt.Errorf("line %d: step must be a name or a mapping", node.Line)
	}
}

// ChainSpec is the list of steps plus chain-wide defaults.
//
// Repeat is the number of passes over the whole step list (rinses + 1).
type ChainSpec struct {
	ID            any
	Mode          Mode
	Repeat        int
	CaptureErrors *bool
	Steps         []StepSpec
}

// List builds a chain from steps with no chain-wide overrides.
func List(steps ...StepSpec) ChainSpec {
	return ChainSpec{Steps: steps}
}

// Names builds a chain of bare-name steps.
func Names(names ...string) ChainSpec {
	steps := make([]StepSpec, len(names))
	for i, n := range names {
		steps[i] = Name(n)
	}
	return ChainSpec{Steps: steps}
}

// Defaults returns the fields a step inherits from this chain.
func (c ChainSpec) Defaults() Defaults {
	return Defaults{
		Mode:          c.Mode,
		ID:            c.ID,
		CaptureErrors: c.CaptureErrors,
	}
}

type chainRecord struct {
	ID            any        `yaml:"id"`
	Mode          string     `yaml:"mode"`
	Type          string     `yaml:"type"`
	Repeat        int        `yaml:"repeat"`
	CaptureErrors *bool      `yaml:"capture_errors"`
	Steps         []StepSpec `yaml:"steps"`
	Events        []StepSpec `yaml:"events"`
}

// UnmarshalYAML accepts a sequence (plain step list) or a mapping.
func (c *ChainSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var steps []StepSpec
		if err := node.Decode(&steps); err != nil {
			return err
		}
		*c = ChainSpec{Steps: steps}
		return nil

	case yaml.MappingNode:
		var rec chainRecord
		if err := node.Decode(&rec); err != nil {
			return err
		}
		steps := rec.Steps
		if len(steps) == 0 {
			steps = rec.Events
		}
		mode := rec.Mode
		if mode == "" {
			mode = rec.Type
		}
		*c = ChainSpec{
			ID:            rec.ID,
			Mode:          Mode(mode),
			Repeat:        rec.Repeat,
			CaptureErrors: rec.CaptureErrors,
			Steps:         steps,
		}
		return nil

	default:
		return fmt.Errorf("line %d: chain must be a step list or a mapping", node.Line)
	}
}
