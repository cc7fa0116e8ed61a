package spec

import "strings"

// Mode is the execution mode of a step or chain.
type Mode string

const (
	// ModeSequential emits one step and waits for its listeners before the next.
	ModeSequential Mode = "sequential"

	// ModeConcurrent emits a run of consecutive concurrent steps as one wave
	// before any of their completions is awaited.
	ModeConcurrent Mode = "concurrent"

	// ModeImmediate emits synchronously; listeners complete in the same call
	// stack unless they hold the pulse.
	ModeImmediate Mode = "immediate"
)

// DefaultMode is applied when neither the step nor the chain sets a mode.
const DefaultMode = ModeSequential

// modeAliases maps accepted spellings to canonical modes. The short names
// are the emission types understood by earlier pulse emitters.
var modeAliases = map[string]Mode{
	"sequential": ModeSequential,
	"series":     ModeSequential,
	"concurrent": ModeConcurrent,
	"parallel":   ModeConcurrent,
	"async":      ModeConcurrent,
	"fork":       ModeConcurrent,
	"spawn":      ModeConcurrent,
	"exec":       ModeConcurrent,
	"immediate":  ModeImmediate,
	"sync":       ModeImmediate,
}

// ParseMode resolves s (case-insensitive, aliases allowed) to a canonical
// mode. ok is false for unknown or empty input.
func ParseMode(s string) (m Mode, ok bool) {
	m, ok = modeAliases[strings.ToLower(strings.TrimSpace(s))]
	return m, ok
}

// Valid reports whether m is one of the canonical modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeSequential, ModeConcurrent, ModeImmediate:
		return true
	}
	return false
}

// Deferred reports whether steps in this mode are emitted on a later turn of
// the loop rather than synchronously.
func (m Mode) Deferred() bool {
	return m != ModeImmediate
}

func (m Mode) String() string {
	return string(m)
}
