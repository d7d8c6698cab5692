package hierarchy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollup/internal/aggregation"
	"github.com/roach88/rollup/internal/merge"
)

func sum(data, change *int64) (int64, bool) {
	*data += *change
	return *change, *change != 0
}

func firstCrossing(data, change *int64) (int64, bool) {
	before := *data
	*data += *change
	if before == 0 && *data != 0 {
		return *change, true
	}
	return 0, false
}

func quiet() Option[string, int64, int64] {
	return WithLogger[string, int64, int64](slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type stepLog struct {
	mu    sync.Mutex
	steps []aggregation.Step[string, int64]
}

func (l *stepLog) ObserveStep(s aggregation.Step[string, int64]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, s)
}

func mustBuild(t *testing.T, g *Graph[string, int64, int64], leaves []string, aggs []string, links [][2]string) {
	t.Helper()
	for _, ref := range leaves {
		require.NoError(t, g.AddLeaf(ref))
	}
	for _, ref := range aggs {
		require.NoError(t, g.AddAggregating(ref, 0))
	}
	for _, l := range links {
		require.NoError(t, g.Link(l[0], l[1]))
	}
}

func TestGraph_FirstCrossingChain(t *testing.T) {
	g := New[string](firstCrossing, quiet())
	mustBuild(t, g, []string{"leaf"}, []string{"A", "R"}, [][2]string{{"leaf", "A"}, {"A", "R"}})

	g.Update("leaf", 1)
	a, _ := g.Data("A")
	r, _ := g.Data("R")
	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(1), r)

	g.Update("leaf", 1)
	a, _ = g.Data("A")
	r, _ = g.Data("R")
	assert.Equal(t, int64(2), a)
	assert.Equal(t, int64(1), r)
}

func TestGraph_UpdateRefMatchesUpdate(t *testing.T) {
	g := New[string](sum, quiet())
	mustBuild(t, g, []string{"leaf"}, []string{"A", "B"}, [][2]string{{"leaf", "A"}, {"leaf", "B"}})

	change := int64(6)
	g.UpdateRef("leaf", &change)
	g.Update("leaf", 6)

	for _, ref := range []string{"A", "B"} {
		d, ok := g.Data(ref)
		require.True(t, ok)
		assert.Equal(t, int64(12), d, ref)
	}
}

func TestGraph_AddDuplicate(t *testing.T) {
	g := New[string](sum, quiet())
	require.NoError(t, g.AddLeaf("x"))

	err := g.AddAggregating("x", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateNode)
	assert.Equal(t, 1, g.Len())
}

func TestGraph_LinkErrors(t *testing.T) {
	g := New[string](sum, quiet())
	mustBuild(t, g, []string{"leaf"}, []string{"A"}, [][2]string{{"leaf", "A"}})

	tests := []struct {
		name  string
		run   func() error
		want  error
		lower string
	}{
		{"self", func() error { return g.Link("A", "A") }, ErrSelfLink, "A"},
		{"unknown upper", func() error { return g.Link("leaf", "missing") }, ErrUnknownNode, "leaf"},
		{"unknown lower", func() error { return g.Link("missing", "A") }, ErrUnknownNode, "missing"},
		{"duplicate", func() error { return g.Link("leaf", "A") }, ErrAlreadyLinked, "leaf"},
		{"unlink unknown", func() error { return g.Unlink("missing", "A") }, ErrUnknownNode, "missing"},
		{"unlink absent", func() error { return g.Unlink("A", "leaf") }, ErrNotLinked, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsLinkError(err))

			var le *LinkError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.lower, le.Lower)
		})
	}
}

func TestGraph_UnlinkStopsPropagation(t *testing.T) {
	g := New[string](sum, quiet())
	mustBuild(t, g, []string{"leaf"}, []string{"A"}, [][2]string{{"leaf", "A"}})

	g.Update("leaf", 1)
	require.NoError(t, g.Unlink("leaf", "A"))
	g.Update("leaf", 1)

	a, _ := g.Data("A")
	assert.Equal(t, int64(1), a)
	uppers, ok := g.Uppers("leaf")
	require.True(t, ok)
	assert.Empty(t, uppers)
}

func TestGraph_NodeUnknownPanics(t *testing.T) {
	g := New[string](sum, quiet())

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok, "panic value should be an error")
		assert.ErrorIs(t, err, ErrUnknownNode)

		var une *UnknownNodeError
		require.True(t, errors.As(err, &une))
		assert.Equal(t, "ghost", une.Ref)
		assert.Equal(t, `hierarchy: unknown node "ghost"`, err.Error())
	}()

	g.Update("ghost", 1)
}

func TestGraph_GuardReleaseIsIdempotent(t *testing.T) {
	g := New[string](sum, quiet())
	require.NoError(t, g.AddAggregating("R", 3))

	gd := g.Node("R")
	assert.Equal(t, "R", gd.Ref())
	d, ok := gd.Node().Data()
	require.True(t, ok)
	assert.Equal(t, int64(3), d)

	gd.Release()
	gd.Release()
	assert.Panics(t, func() { gd.Node() })

	// A second guard must be obtainable after release.
	g.Node("R").Release()
}

func TestGraph_Introspection(t *testing.T) {
	g := New[string](sum, quiet())
	mustBuild(t, g, []string{"leaf"}, []string{"A", "B"}, [][2]string{{"leaf", "B"}, {"leaf", "A"}})

	refs := g.Refs()
	sort.Strings(refs)
	assert.Equal(t, []string{"A", "B", "leaf"}, refs)
	assert.Equal(t, 3, g.Len())

	kind, ok := g.Kind("leaf")
	require.True(t, ok)
	assert.Equal(t, aggregation.KindLeaf, kind)
	_, ok = g.Kind("nope")
	assert.False(t, ok)

	uppers, ok := g.Uppers("leaf")
	require.True(t, ok)
	assert.Equal(t, []string{"B", "A"}, uppers, "link order")
	_, ok = g.Uppers("nope")
	assert.False(t, ok)

	_, ok = g.Data("leaf")
	assert.False(t, ok, "leaf has no data")
	_, ok = g.Data("nope")
	assert.False(t, ok)
}

func TestGraph_DataSnapshot(t *testing.T) {
	tests := []struct {
		name string
		opts []Option[string, merge.Set, merge.Set]
		want []string
	}{
		{
			name: "cloned",
			opts: []Option[string, merge.Set, merge.Set]{WithClone[string, merge.Set, merge.Set](merge.Set.Clone)},
			want: []string{"a"},
		},
		{
			name: "shared",
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option[string, merge.Set, merge.Set]{
				WithLogger[string, merge.Set, merge.Set](slog.New(slog.NewTextHandler(io.Discard, nil))),
			}, tt.opts...)
			g := New[string](merge.Union, opts...)
			require.NoError(t, g.AddAggregating("R", merge.Set{}))

			g.Update("R", merge.Set{"a": 1})
			snap, ok := g.Data("R")
			require.True(t, ok)
			g.Update("R", merge.Set{"b": 1})

			assert.Equal(t, tt.want, snap.Keys())
			now, _ := g.Data("R")
			assert.Equal(t, []string{"a", "b"}, now.Keys())
		})
	}
}

func TestGraph_ObserverReceivesSteps(t *testing.T) {
	log := &stepLog{}
	g := New[string](firstCrossing, quiet(), WithObserver[string, int64, int64](log))
	mustBuild(t, g, []string{"leaf", "orphan"}, []string{"A", "R"}, [][2]string{{"leaf", "A"}, {"A", "R"}})

	g.Update("leaf", 1)
	g.Update("leaf", 1)
	g.Update("orphan", 1)

	outcomes := make([]string, 0, len(log.steps))
	for _, s := range log.steps {
		outcomes = append(outcomes, s.Node+":"+s.Outcome.String())
	}
	assert.Equal(t, []string{
		"leaf:forwarded", "A:forwarded", "R:root",
		"leaf:forwarded", "A:absorbed",
		"orphan:dropped",
	}, outcomes)
}

func TestGraph_Metrics(t *testing.T) {
	g := New[string](sum, quiet())
	mustBuild(t, g, []string{"leaf"}, []string{"R"}, [][2]string{{"leaf", "R"}})

	forwarded := stepsApplied.WithLabelValues("leaf", "forwarded")
	root := stepsApplied.WithLabelValues("aggregating", "root")
	beforeForwarded := testutil.ToFloat64(forwarded)
	beforeRoot := testutil.ToFloat64(root)
	beforeGuards := testutil.ToFloat64(guardsAcquired)
	beforeNodes := testutil.ToFloat64(nodesRegistered)
	require.NoError(t, g.AddLeaf("late"))
	assert.Equal(t, beforeNodes+1, testutil.ToFloat64(nodesRegistered))

	g.Update("leaf", 2)

	assert.Equal(t, beforeForwarded+1, testutil.ToFloat64(forwarded))
	assert.Equal(t, beforeRoot+1, testutil.ToFloat64(root))
	assert.GreaterOrEqual(t, testutil.ToFloat64(guardsAcquired), beforeGuards+2)
}

func TestGraph_MetricsDisabled(t *testing.T) {
	g := New[string](sum, quiet(), WithMetrics[string, int64, int64](false))
	require.NoError(t, g.AddLeaf("solo-disabled"))

	dropped := stepsApplied.WithLabelValues("leaf", "dropped")
	before := testutil.ToFloat64(dropped)
	g.Update("solo-disabled", 1)

	assert.Equal(t, before, testutil.ToFloat64(dropped))
}

func TestGraph_ConcurrentUpdatesAndLinks(t *testing.T) {
	g := New[string](sum, quiet(), WithMetrics[string, int64, int64](false))

	const leaves = 8
	require.NoError(t, g.AddAggregating("root", 0))
	require.NoError(t, g.AddAggregating("mid", 0))
	require.NoError(t, g.Link("mid", "root"))
	require.NoError(t, g.AddAggregating("spare", 0))
	for i := 0; i < leaves; i++ {
		ref := fmt.Sprintf("leaf-%d", i)
		require.NoError(t, g.AddLeaf(ref))
		require.NoError(t, g.Link(ref, "mid"))
	}

	const perLeaf = 200
	var wg sync.WaitGroup
	for i := 0; i < leaves; i++ {
		wg.Add(1)
		go func(ref string) {
			defer wg.Done()
			for j := 0; j < perLeaf; j++ {
				g.Update(ref, 1)
			}
		}(fmt.Sprintf("leaf-%d", i))
	}

	// Structural churn on an unrelated node while propagation runs.
	require.NoError(t, g.AddLeaf("churn"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < perLeaf; j++ {
			_ = g.Link("churn", "spare")
			_ = g.Unlink("churn", "spare")
		}
	}()
	wg.Wait()

	root, _ := g.Data("root")
	mid, _ := g.Data("mid")
	assert.Equal(t, int64(leaves*perLeaf), root)
	assert.Equal(t, int64(leaves*perLeaf), mid)
}
