package scenario

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/rollup/internal/aggregation"
	"github.com/roach88/rollup/internal/canonical"
	"github.com/roach88/rollup/internal/hierarchy"
	"github.com/roach88/rollup/internal/merge"
	"github.com/roach88/rollup/internal/testutil"
	"github.com/roach88/rollup/internal/trace"
)

// Option configures Run.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	metrics bool
	clock   trace.Sequencer
	gen     trace.Generator
	start   int64
}

// WithLogger sets the logger passed to the hierarchy and the recorder.
//
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics enables the hierarchy's Prometheus metrics.
//
// Default: false.
func WithMetrics(enabled bool) Option {
	return func(c *config) {
		c.metrics = enabled
	}
}

// WithIDs replaces the deterministic clock and propagation ID generator,
// e.g. to give every run unique IDs before saving it next to earlier runs.
func WithIDs(clock trace.Sequencer, gen trace.Generator) Option {
	return func(c *config) {
		c.clock = clock
		c.gen = gen
	}
}

// WithStartSeq makes the first seq of a deterministic run after+1, e.g. to
// continue a trace database. See ResumeSeq. Ignored when WithIDs supplies a
// clock.
func WithStartSeq(after int64) Option {
	return func(c *config) {
		c.start = after
	}
}

// Run executes a validated scenario and evaluates its expectations.
//
// A non-nil error means the scenario could not be run at all; failed
// expectations are reported through Result.Pass and Result.Errors.
func Run(s *Scenario, opts ...Option) (*Result, error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		clock := testutil.NewDeterministicClock()
		clock.Rewind(cfg.start)
		cfg.clock = clock
	}
	if cfg.gen == nil {
		cfg.gen = testutil.NewSequenceGenerator(s.Name)
	}

	switch s.Merge {
	case MergeSum:
		return run[int64, int64](s, merge.Sum[int64], counter{}, cfg)
	case MergePresence:
		return run[int64, int64](s, merge.Presence[int64], counter{}, cfg)
	case MergeFirstCrossing:
		return run[int64, int64](s, merge.FirstCrossing[int64], counter{}, cfg)
	case MergeUnion:
		return run[merge.Set, merge.Set](s, merge.Union, keyset{}, cfg)
	default:
		return nil, fmt.Errorf("run %s: unknown merge %q", s.Name, s.Merge)
	}
}

type origin struct {
	node   string
	change any
}

func run[D, C any](s *Scenario, mergeFn hierarchy.MergeFunc[D, C], c codec[D, C], cfg config) (*Result, error) {
	graph, err := build(s, mergeFn, c, cfg)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", s.Name, err)
	}

	rec := trace.NewRecorder[string, C](
		trace.WithClock(cfg.clock),
		trace.WithGenerator(cfg.gen),
		trace.WithLogger(cfg.logger),
	)

	var mu sync.Mutex
	origins := make(map[string]origin)
	apply := func(node string, change C) error {
		if _, ok := graph.Kind(node); !ok {
			return &hierarchy.UnknownNodeError{Ref: node}
		}
		p := trace.Track[string, D, C](rec, graph)
		mu.Lock()
		origins[p.ID()] = origin{node: node, change: c.renderChange(change)}
		mu.Unlock()
		aggregation.ApplyChange[string, D, C](p, graph.Node(node), change)
		return nil
	}

	for i, st := range s.Steps {
		if len(st.Parallel) == 0 {
			change, err := c.change(st.Change)
			if err != nil {
				return nil, fmt.Errorf("run %s: steps[%d]: %w", s.Name, i, err)
			}
			if err := apply(st.Node, change); err != nil {
				return nil, fmt.Errorf("run %s: steps[%d]: %w", s.Name, i, err)
			}
			continue
		}

		changes := make([]C, len(st.Parallel))
		for j, p := range st.Parallel {
			if changes[j], err = c.change(p.Change); err != nil {
				return nil, fmt.Errorf("run %s: steps[%d].parallel[%d]: %w", s.Name, i, j, err)
			}
		}
		var g errgroup.Group
		for j, p := range st.Parallel {
			g.Go(func() error {
				if err := apply(p.Node, changes[j]); err != nil {
					return fmt.Errorf("parallel[%d]: %w", j, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("run %s: steps[%d]: %w", s.Name, i, err)
		}
	}

	result := NewResult()
	for _, n := range s.Nodes {
		if n.Kind != KindAggregating {
			continue
		}
		d, _ := graph.Data(n.Ref)
		result.Data[n.Ref] = c.renderData(d)
	}

	first := make(map[string]int64)
	for _, e := range rec.Events() {
		if _, ok := first[e.Propagation]; !ok {
			first[e.Propagation] = e.Seq
		}
		ev := TraceEvent{
			ID:          e.ID,
			Propagation: e.Propagation,
			Seq:         e.Seq,
			Node:        e.Node,
			Kind:        e.Kind.String(),
			Outcome:     e.Outcome.String(),
			Change:      c.renderChange(e.Change),
			Uppers:      e.Uppers,
		}
		if e.Outcome == aggregation.OutcomeForwarded {
			ev.Forwarded = c.renderChange(e.Forwarded)
		}
		result.Trace = append(result.Trace, ev)
	}
	for _, id := range rec.Propagations() {
		o := origins[id]
		result.Propagations = append(result.Propagations, PropagationRecord{
			ID: id, Origin: o.node, Change: o.change, Seq: first[id],
		})
	}

	if s.Expect != nil {
		if err := evaluate(s.Expect, result, rec, c); err != nil {
			return nil, fmt.Errorf("run %s: %w", s.Name, err)
		}
	}

	cfg.logger.Debug("scenario finished",
		"scenario", s.Name,
		"propagations", len(result.Propagations),
		"steps", len(result.Trace),
		"pass", result.Pass,
	)
	return result, nil
}

func build[D, C any](s *Scenario, mergeFn hierarchy.MergeFunc[D, C], c codec[D, C], cfg config) (*hierarchy.Graph[string, D, C], error) {
	graph := hierarchy.New[string](mergeFn,
		hierarchy.WithMetrics[string, D, C](cfg.metrics),
		hierarchy.WithLogger[string, D, C](cfg.logger),
		hierarchy.WithClone[string, D, C](c.clone),
	)

	for _, n := range s.Nodes {
		switch n.Kind {
		case KindLeaf:
			if err := graph.AddLeaf(n.Ref); err != nil {
				return nil, err
			}
		case KindAggregating:
			d, err := c.data(n.Data)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", n.Ref, err)
			}
			if err := graph.AddAggregating(n.Ref, d); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("node %q: unknown kind %q", n.Ref, n.Kind)
		}
	}

	for _, l := range s.Links {
		if err := graph.Link(l.Lower, l.Upper); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

func evaluate[D, C any](want *Expect, result *Result, rec *trace.Recorder[string, C], c codec[D, C]) error {
	for _, ref := range sortedKeys(want.Data) {
		expected, err := c.data(want.Data[ref])
		if err != nil {
			return fmt.Errorf("expect.data.%s: %w", ref, err)
		}
		equal, err := sameValue(c.renderData(expected), result.Data[ref])
		if err != nil {
			return fmt.Errorf("expect.data.%s: %w", ref, err)
		}
		if !equal {
			result.AddError("data of %s: expected %s, got %s", ref, render(c.renderData(expected)), render(result.Data[ref]))
		}
	}

	for _, ref := range sortedKeys(want.Merges) {
		if got := rec.Merges(ref); got != want.Merges[ref] {
			result.AddError("merges at %s: expected %d, got %d", ref, want.Merges[ref], got)
		}
	}

	for _, ref := range want.Untouched {
		if got := rec.Count(ref); got != 0 {
			result.AddError("%s: expected untouched, reached by %d steps", ref, got)
		}
	}

	if want.MaxSteps > 0 {
		for _, id := range rec.Propagations() {
			if err := checkQuota(id, len(rec.ForPropagation(id)), want.MaxSteps); err != nil {
				result.AddError("%v", err)
			}
		}
	}
	return nil
}

func sameValue(a, b any) (bool, error) {
	if b == nil {
		return false, nil
	}
	ab, err := canonical.Marshal(a)
	if err != nil {
		return false, err
	}
	bb, err := canonical.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

func render(v any) string {
	if v == nil {
		return "nothing"
	}
	b, err := canonical.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
