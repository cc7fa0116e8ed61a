package harness

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/roach88/pulse/internal/engine"
)

// scripted is the runtime form of a ListenerSpec.
type scripted struct {
	spec    ListenerSpec
	program *goja.Program
	delay   time.Duration
	checks  *invariants
}

func newScripted(ls ListenerSpec, checks *invariants) (*scripted, error) {
	s := &scripted{spec: ls, checks: checks}

	if ls.Script != "" {
		// Wrap the body so scripts can use return.
		wrapped := "(function() {\n" + ls.Script + "\n})()"
		prog, err := goja.Compile(ls.Event+".js", wrapped, false)
		if err != nil {
			return nil, fmt.Errorf("listener %s: compile script: %w", ls.Event, err)
		}
		s.program = prog
	}

	if ls.Delay != "" {
		d, err := time.ParseDuration(ls.Delay)
		if err != nil {
			return nil, fmt.Errorf("listener %s: delay: %w", ls.Event, err)
		}
		s.delay = d
	}
	return s, nil
}

// listen implements engine.Listener.
func (s *scripted) listen(a *engine.Artery, p *engine.Pulse, args ...any) error {
	s.checks.observe(a, p)

	var pass []any
	if s.program != nil {
		out, err := s.run(a, p, args)
		if err != nil {
			return err
		}
		pass = append(pass, out...)
	}
	pass = append(pass, s.spec.Pass...)

	if s.spec.Panic != "" {
		panic(s.spec.Panic)
	}

	var failure error
	if s.spec.Fail != "" {
		failure = errors.New(s.spec.Fail)
	}

	if s.delay > 0 {
		release := p.Hold()
		time.AfterFunc(s.delay, func() { release(failure, pass...) })
		return nil
	}

	a.PassOn(pass...)
	return failure
}

// run executes the script in a fresh runtime and converts its result into
// pass values.
func (s *scripted) run(a *engine.Artery, p *engine.Pulse, args []any) ([]any, error) {
	vm := goja.New()

	artery := map[string]any{
		"token":  a.Token,
		"count":  a.Count,
		"repeat": a.Repeat,
		"mode":   string(a.Mode),
		"id":     a.ID,
		"data":   a.Data,
	}
	pulse := map[string]any{}
	if p != nil {
		pulse = map[string]any{
			"event":  p.Event,
			"count":  p.Count,
			"repeat": p.Repeat,
			"index":  p.Index,
			"mode":   string(p.Mode),
			"id":     p.ID,
		}
	}
	if args == nil {
		args = []any{}
	}

	for name, v := range map[string]any{"artery": artery, "pulse": pulse, "args": args} {
		if err := vm.Set(name, v); err != nil {
			return nil, fmt.Errorf("listener %s: set %s: %w", s.spec.Event, name, err)
		}
	}

	result, err := vm.RunProgram(s.program)
	if err != nil {
		return nil, fmt.Errorf("listener %s: script: %w", s.spec.Event, err)
	}

	if goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}
	switch v := result.Export().(type) {
	case []any:
		return v, nil
	default:
		return []any{v}, nil
	}
}
