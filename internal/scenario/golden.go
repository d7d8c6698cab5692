package scenario

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rollup/internal/canonical"
)

// Snapshot returns the canonical JSON of a run: its propagations, its
// trace and the final data. Step IDs are left out; they are derived from
// fields the snapshot already holds.
func Snapshot(name string, r *Result) ([]byte, error) {
	props := make([]any, len(r.Propagations))
	for i, p := range r.Propagations {
		props[i] = map[string]any{
			"id":     p.ID,
			"origin": p.Origin,
			"change": p.Change,
			"seq":    p.Seq,
		}
	}

	steps := make([]any, len(r.Trace))
	for i, e := range r.Trace {
		step := map[string]any{
			"propagation": e.Propagation,
			"seq":         e.Seq,
			"node":        e.Node,
			"kind":        e.Kind,
			"outcome":     e.Outcome,
			"change":      e.Change,
			"uppers":      e.Uppers,
		}
		if e.Forwarded != nil {
			step["forwarded"] = e.Forwarded
		}
		steps[i] = step
	}

	data := make(map[string]any, len(r.Data))
	for ref, d := range r.Data {
		data[ref] = d
	}

	return canonical.Marshal(map[string]any{
		"scenario":     name,
		"propagations": props,
		"trace":        steps,
		"data":         data,
	})
}

// RunWithGolden runs a scenario and compares its snapshot against
// testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/scenario -update
//
// Only scenarios without parallel steps produce stable snapshots.
func RunWithGolden(t *testing.T, s *Scenario, opts ...Option) *Result {
	t.Helper()

	result, err := Run(s, opts...)
	if err != nil {
		t.Fatalf("run %s: %v", s.Name, err)
	}

	snapshot, err := Snapshot(s.Name, result)
	if err != nil {
		t.Fatalf("snapshot %s: %v", s.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, snapshot)
	return result
}
