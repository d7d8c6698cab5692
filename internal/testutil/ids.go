package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator produces propagation IDs of the form "<prefix>-0001",
// "<prefix>-0002", and so on.
//
// The prefix is typically the scenario name, so traces from different
// scenarios never collide in a shared store. An empty prefix becomes "p".
//
// Thread-safety: SequenceGenerator is safe for concurrent use via internal
// mutex. IDs are unique but, under concurrency, their assignment order
// follows whichever goroutine asks first.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator for prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "p"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next ID. Implements trace.Generator.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *SequenceGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
