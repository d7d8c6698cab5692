package trace

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/rollup/internal/aggregation"
	"github.com/roach88/rollup/internal/canonical"
)

// Event is one recorded change-application step.
type Event[R comparable, C any] struct {
	// ID is content addressed over (propagation, seq, node).
	ID          string
	Propagation string
	Seq         int64
	Node        R
	Kind        aggregation.NodeKind
	Outcome     aggregation.StepOutcome
	Change      C
	Forwarded   C
	Uppers      int
}

// Recorder collects events from any number of concurrent propagations.
//
// Thread-safety: all methods are safe for concurrent use.
type Recorder[R comparable, C any] struct {
	mu     sync.Mutex
	clock  Sequencer
	gen    Generator
	logger *slog.Logger
	events []Event[R, C]
	starts []string
}

// Option configures a Recorder.
type Option func(*config)

type config struct {
	clock  Sequencer
	gen    Generator
	logger *slog.Logger
}

// WithClock sets the sequencer used to stamp events.
//
// Default: NewClock().
func WithClock(clock Sequencer) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithGenerator sets the propagation ID generator.
//
// Default: UUIDv7Generator{}.
func WithGenerator(gen Generator) Option {
	return func(c *config) {
		c.gen = gen
	}
}

// WithLogger sets the logger used when propagations start.
//
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// NewRecorder creates an empty Recorder.
func NewRecorder[R comparable, C any](opts ...Option) *Recorder[R, C] {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}
	if cfg.gen == nil {
		cfg.gen = UUIDv7Generator{}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Recorder[R, C]{clock: cfg.clock, gen: cfg.gen, logger: cfg.logger}
}

func (r *Recorder[R, C]) begin() string {
	id := r.gen.Generate()
	r.mu.Lock()
	r.starts = append(r.starts, id)
	r.mu.Unlock()
	r.logger.Debug("propagation started", "propagation", id)
	return id
}

func (r *Recorder[R, C]) record(propagation string, s aggregation.Step[R, C]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.clock.Next()
	r.events = append(r.events, Event[R, C]{
		ID: canonical.MustHash(canonical.DomainStep, map[string]any{
			"propagation": propagation,
			"seq":         seq,
			"node":        fmt.Sprint(s.Node),
		}),
		Propagation: propagation,
		Seq:         seq,
		Node:        s.Node,
		Kind:        s.Kind,
		Outcome:     s.Outcome,
		Change:      s.Change,
		Forwarded:   s.Forwarded,
		Uppers:      s.Uppers,
	})
}

// Events returns a copy of every event in seq order.
func (r *Recorder[R, C]) Events() []Event[R, C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Propagations returns the IDs of every tracked propagation in start order.
func (r *Recorder[R, C]) Propagations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.starts)
}

// ForPropagation returns the events of one propagation in seq order.
func (r *Recorder[R, C]) ForPropagation(id string) []Event[R, C] {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event[R, C]
	for _, e := range r.events {
		if e.Propagation == id {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many steps ran at node.
func (r *Recorder[R, C]) Count(node R) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Node == node {
			n++
		}
	}
	return n
}

// Merges returns how many times node's data was merged, i.e. steps at node
// while it was aggregating.
func (r *Recorder[R, C]) Merges(node R) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Node == node && e.Kind == aggregation.KindAggregating {
			n++
		}
	}
	return n
}

// Reset discards all events and propagation IDs.
func (r *Recorder[R, C]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.starts = nil
}

// Propagation is a Context scoped to one recorded propagation. It delegates
// Node and ApplyChange to the wrapped Context and records every step under
// its own ID. If the wrapped Context is itself a StepObserver, steps are
// forwarded to it first.
type Propagation[R comparable, D, C any] struct {
	aggregation.Context[R, D, C]

	id  string
	rec *Recorder[R, C]
}

// Track starts a new propagation on rec over ctx. Use the returned value as
// the Context of exactly one aggregation.ApplyChange call.
func Track[R comparable, D, C any](rec *Recorder[R, C], ctx aggregation.Context[R, D, C]) *Propagation[R, D, C] {
	return &Propagation[R, D, C]{Context: ctx, id: rec.begin(), rec: rec}
}

// ID returns the propagation ID.
func (p *Propagation[R, D, C]) ID() string {
	return p.id
}

// ObserveStep implements aggregation.StepObserver.
func (p *Propagation[R, D, C]) ObserveStep(s aggregation.Step[R, C]) {
	if obs, ok := p.Context.(aggregation.StepObserver[R, C]); ok {
		obs.ObserveStep(s)
	}
	p.rec.record(p.id, s)
}
