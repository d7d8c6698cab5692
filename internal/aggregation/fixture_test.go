package aggregation

import (
	"sync"
	"sync/atomic"
)

// testContext is a minimal Context over int64 counters. It records every
// merge per node and the maximum number of guards held at once.
type testContext struct {
	nodes map[string]*testEntry
	merge func(data, change *int64) (int64, bool)

	held    atomic.Int32
	maxHeld atomic.Int32
	lookups atomic.Int32

	mu     sync.Mutex
	merged map[*int64][]int64
}

type testEntry struct {
	mu   sync.Mutex
	node *Node[string, int64]
}

type testGuard struct {
	ctx      *testContext
	ref      string
	entry    *testEntry
	released bool
}

func (g *testGuard) Ref() string                { return g.ref }
func (g *testGuard) Node() *Node[string, int64] { return g.entry.node }

func (g *testGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.ctx.held.Add(-1)
	g.entry.mu.Unlock()
}

func newTestContext(merge func(data, change *int64) (int64, bool)) *testContext {
	return &testContext{
		nodes:  make(map[string]*testEntry),
		merge:  merge,
		merged: make(map[*int64][]int64),
	}
}

func (c *testContext) leaf(ref string, uppers ...string) {
	n := NewLeaf[string, int64]()
	for _, u := range uppers {
		n.Uppers().Add(u)
	}
	c.nodes[ref] = &testEntry{node: n}
}

func (c *testContext) aggregating(ref string, data int64, uppers ...string) {
	n := NewAggregating[string](data)
	for _, u := range uppers {
		n.Uppers().Add(u)
	}
	c.nodes[ref] = &testEntry{node: n}
}

func (c *testContext) Node(ref string) Guard[string, int64] {
	e, ok := c.nodes[ref]
	if !ok {
		panic("unknown node " + ref)
	}
	e.mu.Lock()
	c.lookups.Add(1)
	n := c.held.Add(1)
	for {
		m := c.maxHeld.Load()
		if n <= m || c.maxHeld.CompareAndSwap(m, n) {
			break
		}
	}
	return &testGuard{ctx: c, ref: ref, entry: e}
}

func (c *testContext) ApplyChange(data *int64, change *int64) (int64, bool) {
	forward, ok := c.merge(data, change)
	c.mu.Lock()
	c.merged[data] = append(c.merged[data], *change)
	c.mu.Unlock()
	return forward, ok
}

func (c *testContext) mergesOf(ref string) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.merged[&c.nodes[ref].node.data]
}

func (c *testContext) data(ref string) int64 {
	d, _ := c.nodes[ref].node.Data()
	return d
}

// observedContext adds step observation to testContext.
type observedContext struct {
	*testContext

	stepsMu sync.Mutex
	steps   []Step[string, int64]
}

func (c *observedContext) ObserveStep(s Step[string, int64]) {
	c.stepsMu.Lock()
	defer c.stepsMu.Unlock()
	c.steps = append(c.steps, s)
}

func sumMerge(data, change *int64) (int64, bool) {
	*data += *change
	return *change, *change != 0
}

// firstCrossingMerge forwards the delta only when data leaves zero.
func firstCrossingMerge(data, change *int64) (int64, bool) {
	before := *data
	*data += *change
	if before == 0 && *data != 0 {
		return *change, true
	}
	return 0, false
}

func absorbAllMerge(data, change *int64) (int64, bool) {
	*data += *change
	return 0, false
}
