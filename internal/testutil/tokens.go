package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialTokens generates chain tokens "<prefix>-1", "<prefix>-2", ...
//
// Unlike engine.FixedGenerator it never runs out, which suits scenarios that
// start an unknown number of chains. The same prefix always yields the same
// token sequence, so traces compare byte for byte across runs.
//
// Thread-safety: safe for concurrent use.
type SequentialTokens struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialTokens creates a generator. An empty prefix becomes "chain".
func NewSequentialTokens(prefix string) *SequentialTokens {
	if prefix == "" {
		prefix = "chain"
	}
	return &SequentialTokens{prefix: prefix}
}

// Generate returns the next token. Implements engine.TokenGenerator.
func (g *SequentialTokens) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
