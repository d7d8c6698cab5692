package hierarchy

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/rollup/internal/aggregation"
)

// MergeFunc folds change into data and returns the delta to forward upward,
// or false when the change was fully absorbed. See aggregation.Context.
type MergeFunc[D, C any] func(data *D, change *C) (C, bool)

// Graph is an in-memory aggregation hierarchy. It implements
// aggregation.Context and aggregation.StepObserver.
//
// Thread-safety: all methods are safe for concurrent use.
type Graph[R comparable, D, C any] struct {
	merge    MergeFunc[D, C]
	nodes    *xsync.MapOf[R, *entry[R, D]]
	observer aggregation.StepObserver[R, C]
	clone    func(D) D
	metrics  bool
	logger   *slog.Logger
}

type entry[R comparable, D any] struct {
	mu   sync.Mutex
	node *aggregation.Node[R, D]
}

// Option configures a Graph.
type Option[R comparable, D, C any] func(*options[R, D, C])

type options[R comparable, D, C any] struct {
	observer aggregation.StepObserver[R, C]
	clone    func(D) D
	metrics  bool
	logger   *slog.Logger
}

// WithObserver forwards every propagation step to obs.
func WithObserver[R comparable, D, C any](obs aggregation.StepObserver[R, C]) Option[R, D, C] {
	return func(o *options[R, D, C]) {
		o.observer = obs
	}
}

// WithClone sets the function Data uses to copy a node's aggregate while the
// node is locked. Data holding maps, slices or pointers needs one, or the
// value returned by Data keeps changing with later updates.
//
// Default: none; Data returns the aggregate as is.
func WithClone[R comparable, D, C any](clone func(D) D) Option[R, D, C] {
	return func(o *options[R, D, C]) {
		o.clone = clone
	}
}

// WithMetrics enables or disables Prometheus step metrics.
//
// Default: enabled.
func WithMetrics[R comparable, D, C any](enabled bool) Option[R, D, C] {
	return func(o *options[R, D, C]) {
		o.metrics = enabled
	}
}

// WithLogger sets the logger used for debug step logs.
//
// Default: slog.Default().
func WithLogger[R comparable, D, C any](logger *slog.Logger) Option[R, D, C] {
	return func(o *options[R, D, C]) {
		o.logger = logger
	}
}

// New creates an empty Graph that merges changes with merge.
func New[R comparable, D, C any](merge MergeFunc[D, C], opts ...Option[R, D, C]) *Graph[R, D, C] {
	o := options[R, D, C]{metrics: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	return &Graph[R, D, C]{
		merge:    merge,
		nodes:    xsync.NewMapOf[R, *entry[R, D]](),
		observer: o.observer,
		clone:    o.clone,
		metrics:  o.metrics,
		logger:   o.logger,
	}
}

// AddLeaf registers a leaf node.
func (g *Graph[R, D, C]) AddLeaf(ref R) error {
	return g.add(ref, aggregation.NewLeaf[R, D]())
}

// AddAggregating registers an aggregating node holding data.
func (g *Graph[R, D, C]) AddAggregating(ref R, data D) error {
	return g.add(ref, aggregation.NewAggregating[R](data))
}

func (g *Graph[R, D, C]) add(ref R, n *aggregation.Node[R, D]) error {
	if _, loaded := g.nodes.LoadOrStore(ref, &entry[R, D]{node: n}); loaded {
		return fmt.Errorf("add %v: %w", ref, ErrDuplicateNode)
	}
	if g.metrics {
		nodesRegistered.Inc()
	}
	g.logger.Debug("node registered", "ref", ref, "kind", n.Kind())
	return nil
}

// Link adds upper to lower's uppers. Only lower's guard is taken; upper is
// merely checked for existence.
func (g *Graph[R, D, C]) Link(lower, upper R) error {
	if lower == upper {
		return g.linkError(lower, upper, ErrSelfLink)
	}
	if _, ok := g.nodes.Load(upper); !ok {
		return g.linkError(lower, upper, ErrUnknownNode)
	}
	e, ok := g.nodes.Load(lower)
	if !ok {
		return g.linkError(lower, upper, ErrUnknownNode)
	}

	e.mu.Lock()
	added := e.node.Uppers().Add(upper)
	e.mu.Unlock()

	if !added {
		return g.linkError(lower, upper, ErrAlreadyLinked)
	}
	return nil
}

// Unlink removes upper from lower's uppers. A change already prepared from
// lower may still reach upper.
func (g *Graph[R, D, C]) Unlink(lower, upper R) error {
	e, ok := g.nodes.Load(lower)
	if !ok {
		return g.linkError(lower, upper, ErrUnknownNode)
	}

	e.mu.Lock()
	removed := e.node.Uppers().Remove(upper)
	e.mu.Unlock()

	if !removed {
		return g.linkError(lower, upper, ErrNotLinked)
	}
	return nil
}

func (g *Graph[R, D, C]) linkError(lower, upper R, err error) error {
	return &LinkError{Lower: fmt.Sprint(lower), Upper: fmt.Sprint(upper), Err: err}
}

// Node implements aggregation.Context. It blocks until the node's mutex is
// free and panics with *UnknownNodeError if ref is not registered.
func (g *Graph[R, D, C]) Node(ref R) aggregation.Guard[R, D] {
	e, ok := g.nodes.Load(ref)
	if !ok {
		panic(&UnknownNodeError{Ref: fmt.Sprint(ref)})
	}
	e.mu.Lock()
	if g.metrics {
		guardsAcquired.Inc()
	}
	return &guard[R, D]{ref: ref, entry: e}
}

// ApplyChange implements aggregation.Context.
func (g *Graph[R, D, C]) ApplyChange(data *D, change *C) (C, bool) {
	return g.merge(data, change)
}

// ObserveStep implements aggregation.StepObserver.
func (g *Graph[R, D, C]) ObserveStep(s aggregation.Step[R, C]) {
	if g.metrics {
		stepsApplied.WithLabelValues(s.Kind.String(), s.Outcome.String()).Inc()
		if s.Outcome == aggregation.OutcomeForwarded {
			fanOut.Observe(float64(s.Uppers))
		}
	}
	g.logger.Debug("propagation step",
		"node", s.Node,
		"kind", s.Kind,
		"outcome", s.Outcome,
		"uppers", s.Uppers,
	)
	if g.observer != nil {
		g.observer.ObserveStep(s)
	}
}

// Update locks ref and propagates change from it.
func (g *Graph[R, D, C]) Update(ref R, change C) {
	aggregation.ApplyChange[R, D, C](g, g.Node(ref), change)
}

// UpdateRef is Update for a borrowed change.
func (g *Graph[R, D, C]) UpdateRef(ref R, change *C) {
	aggregation.ApplyChangeRef[R, D, C](g, g.Node(ref), change)
}

// Data returns a snapshot of an aggregating node's data. Returns false for
// leaves and unknown references.
//
// Without WithClone the snapshot shares any maps or slices inside D with the
// node, and reading them races with Update.
func (g *Graph[R, D, C]) Data(ref R) (D, bool) {
	e, ok := g.nodes.Load(ref)
	if !ok {
		var zero D
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.node.Data()
	if ok && g.clone != nil {
		d = g.clone(d)
	}
	return d, ok
}

// Kind returns the variant of ref.
func (g *Graph[R, D, C]) Kind(ref R) (aggregation.NodeKind, bool) {
	e, ok := g.nodes.Load(ref)
	if !ok {
		return 0, false
	}
	// kind is immutable after construction
	return e.node.Kind(), true
}

// Uppers returns a snapshot of ref's uppers in link order.
func (g *Graph[R, D, C]) Uppers(ref R) ([]R, bool) {
	e, ok := g.nodes.Load(ref)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.node.Uppers().Slice(), true
}

// Refs returns every registered reference in unspecified order.
func (g *Graph[R, D, C]) Refs() []R {
	refs := make([]R, 0, g.nodes.Size())
	g.nodes.Range(func(ref R, _ *entry[R, D]) bool {
		refs = append(refs, ref)
		return true
	})
	return refs
}

// Len returns the number of registered nodes.
func (g *Graph[R, D, C]) Len() int {
	return g.nodes.Size()
}

type guard[R comparable, D any] struct {
	ref      R
	entry    *entry[R, D]
	released bool
}

func (g *guard[R, D]) Ref() R {
	return g.ref
}

func (g *guard[R, D]) Node() *aggregation.Node[R, D] {
	if g.released {
		panic(fmt.Sprintf("hierarchy: guard for %v used after release", g.ref))
	}
	return g.entry.node
}

func (g *guard[R, D]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.entry.mu.Unlock()
}
