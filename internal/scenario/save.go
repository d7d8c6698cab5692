package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rollup/internal/canonical"
	"github.com/roach88/rollup/internal/store"
	"github.com/roach88/rollup/internal/testutil"
)

// Save writes a run's propagations and trace to st in one transaction.
//
// Every propagation carries a digest of its origin, change and steps.
// Saving the same deterministic run twice stores it once; saving a run whose
// propagation IDs are already stored with other content, such as a
// deterministic run of an edited scenario, fails with store.ErrConflict and
// writes nothing.
func Save(ctx context.Context, st *store.Store, name string, r *Result) error {
	steps := make([]store.Step, 0, len(r.Trace))
	byProp := make(map[string][]any, len(r.Propagations))
	for _, e := range r.Trace {
		change, err := canonical.Marshal(e.Change)
		if err != nil {
			return fmt.Errorf("save %s: step %s: %w", name, e.ID, err)
		}
		var forwarded []byte
		if e.Forwarded != nil {
			if forwarded, err = canonical.Marshal(e.Forwarded); err != nil {
				return fmt.Errorf("save %s: step %s: %w", name, e.ID, err)
			}
		}
		s := store.Step{
			ID:          e.ID,
			Propagation: e.Propagation,
			Seq:         e.Seq,
			Node:        e.Node,
			Kind:        e.Kind,
			Outcome:     e.Outcome,
			Change:      string(change),
			Forwarded:   string(forwarded),
			Uppers:      e.Uppers,
		}
		steps = append(steps, s)
		byProp[e.Propagation] = append(byProp[e.Propagation], map[string]any{
			"seq":       s.Seq,
			"node":      s.Node,
			"kind":      s.Kind,
			"outcome":   s.Outcome,
			"change":    s.Change,
			"forwarded": s.Forwarded,
			"uppers":    s.Uppers,
		})
	}

	props := make([]store.Propagation, 0, len(r.Propagations))
	for _, p := range r.Propagations {
		change, err := canonical.Marshal(p.Change)
		if err != nil {
			return fmt.Errorf("save %s: propagation %s: %w", name, p.ID, err)
		}
		trail := byProp[p.ID]
		if trail == nil {
			trail = []any{}
		}
		digest, err := canonical.Hash(canonical.DomainPropagation, map[string]any{
			"scenario": name,
			"origin":   p.Origin,
			"change":   string(change),
			"steps":    trail,
		})
		if err != nil {
			return fmt.Errorf("save %s: propagation %s: %w", name, p.ID, err)
		}
		props = append(props, store.Propagation{
			ID:       p.ID,
			Scenario: name,
			Origin:   p.Origin,
			Change:   string(change),
			Seq:      p.Seq,
			Digest:   digest,
		})
	}

	if err := st.WriteTrace(ctx, props, steps); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// ResumeSeq returns the seq a deterministic run of s should start after
// (see WithStartSeq) before it is saved to st. A scenario saved before
// replays its stored seqs, so an unchanged rerun is a no-op. Any other
// scenario continues after the last seq in st, so the log stays ordered
// across scenarios.
func ResumeSeq(ctx context.Context, st *store.Store, s *Scenario) (int64, error) {
	first := testutil.NewSequenceGenerator(s.Name).Generate()
	p, err := st.ReadPropagation(ctx, first)
	switch {
	case err == nil:
		return p.Seq - 1, nil
	case !errors.Is(err, store.ErrNotFound):
		return 0, fmt.Errorf("resume %s: %w", s.Name, err)
	}

	last, err := st.LastSeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("resume %s: %w", s.Name, err)
	}
	return last, nil
}
