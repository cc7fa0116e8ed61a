package harness

import (
	"fmt"
	"sync"

	"github.com/roach88/pulse/internal/engine"
	"github.com/roach88/pulse/internal/spec"
)

// invariants checks every listener invocation against the chain it belongs
// to: the artery must be the scenario's own, and neither the artery nor the
// pulse may run past its repeat count.
//
// It is also an engine.Observer so it learns the chain's artery before the
// first emission, including for immediate chains that run inside Emitter.To.
// Arteries are compared by identity; tokens are only used in messages.
type invariants struct {
	engine.NoopObserver

	mu         sync.Mutex
	artery     *engine.Artery
	violations []string
}

var _ engine.Observer = (*invariants)(nil)

func (c *invariants) OnChainStart(a *engine.Artery, _ []spec.Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.artery == nil {
		c.artery = a
	}
}

func (c *invariants) observe(a *engine.Artery, p *engine.Pulse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.artery == nil:
		c.violations = append(c.violations,
			fmt.Sprintf("listener saw artery %q before the chain started", a.Token))
	case a != c.artery:
		c.violations = append(c.violations,
			fmt.Sprintf("listener saw artery %q, expected the chain's artery %q", a.Token, c.artery.Token))
	}
	if a.Count > a.Repeat {
		c.violations = append(c.violations,
			fmt.Sprintf("artery ran pass %d of %d", a.Count, a.Repeat))
	}
	if p != nil && p.Index >= 0 && p.Count > p.Repeat {
		c.violations = append(c.violations,
			fmt.Sprintf("%s emitted %d times, repeat is %d", p.Event, p.Count, p.Repeat))
	}
}

func (c *invariants) results() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.violations...)
}
