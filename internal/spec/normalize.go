package spec

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Defaults are the chain-level values a step inherits when it leaves the
// corresponding field unset.
type Defaults struct {
	Mode          Mode
	ID            any
	CaptureErrors *bool
}

// Step is a normalized step record. Every field is resolved.
type Step struct {
	Name          string
	Mode          Mode
	Repeat        int
	ID            any
	CaptureErrors *bool

	// Index is the step's position in its chain.
	Index int
}

// Normalize resolves raw against inherited into a canonical Step.
//
//   - Name is trimmed and NFC-normalized; an empty name fails with
//     *MissingEventNameError.
//   - Mode comes from the step, then the chain, then DefaultMode. Unknown
//     spellings resolve to DefaultMode.
//   - Repeat defaults to 1 and is clamped to a minimum of 1.
//   - ID and CaptureErrors fall back to the chain's values.
//
// Normalize has no side effects and never modifies raw.
func Normalize(raw StepSpec, inherited Defaults, index int) (Step, error) {
	name := EventName(raw.Name)
	if name == "" {
		return Step{}, &MissingEventNameError{Index: index}
	}

	step := Step{
		Name:          name,
		Mode:          resolveMode(raw.Mode, inherited.Mode),
		Repeat:        ClampRepeat(raw.Repeat),
		ID:            raw.ID,
		CaptureErrors: raw.CaptureErrors,
		Index:         index,
	}
	if step.ID == nil {
		step.ID = inherited.ID
	}
	if step.CaptureErrors == nil {
		step.CaptureErrors = inherited.CaptureErrors
	}
	return step, nil
}

// NormalizeAll normalizes every step of c in order, stopping at the first
// error.
func NormalizeAll(c ChainSpec) ([]Step, error) {
	defaults := c.Defaults()
	steps := make([]Step, 0, len(c.Steps))
	for i, raw := range c.Steps {
		step, err := Normalize(raw, defaults, i)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// EventName canonicalizes an event name: surrounding space is dropped and
// the rest is NFC-normalized so visually identical names subscribe to the
// same channel.
func EventName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ResolveMode returns the canonical mode for a chain-level setting.
func ResolveMode(m Mode) Mode {
	return resolveMode(m, "")
}

// ClampRepeat applies the repeat floor of 1.
func ClampRepeat(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func resolveMode(own, inherited Mode) Mode {
	if own.Valid() {
		return own
	}
	if m, ok := ParseMode(string(own)); ok {
		return m
	}
	if m, ok := ParseMode(string(inherited)); ok {
		return m
	}
	return DefaultMode
}
