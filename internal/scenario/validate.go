package scenario

import (
	"fmt"
	"slices"
	"strings"
)

// Validation error codes (E200-E299)
const (
	ErrNameRequired  = "E201" // name is required
	ErrUnknownMerge  = "E202" // merge is not a stock merge
	ErrNoNodes       = "E203" // at least one node required
	ErrInvalidNode   = "E204" // empty ref or unknown kind
	ErrDuplicateNode = "E205" // ref declared twice
	ErrLeafData      = "E206" // leaves carry no data
	ErrUnknownRef    = "E207" // reference to an undeclared node
	ErrInvalidLink   = "E208" // self link or duplicate link
	ErrCycle         = "E209" // links form a cycle
	ErrNoSteps       = "E210" // at least one step required
	ErrInvalidStep   = "E211" // step sets both or neither of node and parallel
	ErrInvalidValue  = "E212" // data or change does not fit the merge
	ErrInvalidExpect = "E213" // expectation on a leaf or negative count
)

// ValidationError describes one problem in a scenario.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a scenario and returns every problem found (it does not
// stop at the first one). A nil result means the scenario can be run.
func Validate(s *Scenario) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if s.Name == "" {
		add("name", ErrNameRequired, "name is required")
	}

	switch s.Merge {
	case MergeSum, MergePresence, MergeFirstCrossing, MergeUnion:
	default:
		add("merge", ErrUnknownMerge, "unknown merge %q (want sum, presence, first_crossing or union)", s.Merge)
	}

	if len(s.Nodes) == 0 {
		add("nodes", ErrNoNodes, "nodes list is required and must be non-empty")
	}

	kinds := make(map[string]string, len(s.Nodes))
	for i, n := range s.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if n.Ref == "" {
			add(field+".ref", ErrInvalidNode, "ref is required")
			continue
		}
		if _, dup := kinds[n.Ref]; dup {
			add(field+".ref", ErrDuplicateNode, "node %q declared twice", n.Ref)
			continue
		}
		switch n.Kind {
		case KindLeaf:
			if n.Data != nil {
				add(field+".data", ErrLeafData, "leaf %q cannot have data", n.Ref)
			}
		case KindAggregating:
		default:
			add(field+".kind", ErrInvalidNode, "unknown kind %q (want leaf or aggregating)", n.Kind)
			continue
		}
		kinds[n.Ref] = n.Kind
	}

	known := func(field, ref string) bool {
		if _, ok := kinds[ref]; !ok {
			add(field, ErrUnknownRef, "unknown node %q", ref)
			return false
		}
		return true
	}

	seen := make(map[LinkSpec]bool, len(s.Links))
	for i, l := range s.Links {
		field := fmt.Sprintf("links[%d]", i)
		okLower := known(field+".lower", l.Lower)
		okUpper := known(field+".upper", l.Upper)
		if !okLower || !okUpper {
			continue
		}
		if l.Lower == l.Upper {
			add(field, ErrInvalidLink, "node %q cannot be its own upper", l.Lower)
			continue
		}
		if seen[l] {
			add(field, ErrInvalidLink, "%q is already linked to %q", l.Lower, l.Upper)
			continue
		}
		seen[l] = true
	}
	for _, cycle := range findCycles(seen) {
		add("links", ErrCycle, "links form a cycle through %s", strings.Join(cycle, ", "))
	}

	if len(s.Steps) == 0 {
		add("steps", ErrNoSteps, "steps list is required and must be non-empty")
	}
	for i, st := range s.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		switch {
		case st.Node != "" && len(st.Parallel) > 0:
			add(field, ErrInvalidStep, "set either node or parallel, not both")
		case st.Node == "" && len(st.Parallel) == 0:
			add(field, ErrInvalidStep, "node or parallel is required")
		case st.Node != "":
			known(field+".node", st.Node)
		default:
			for j, p := range st.Parallel {
				pfield := fmt.Sprintf("%s.parallel[%d]", field, j)
				if len(p.Parallel) > 0 {
					add(pfield, ErrInvalidStep, "parallel groups cannot nest")
					continue
				}
				if p.Node == "" {
					add(pfield, ErrInvalidStep, "node is required")
					continue
				}
				known(pfield+".node", p.Node)
			}
		}
	}

	if s.Expect != nil {
		for _, ref := range sortedKeys(s.Expect.Data) {
			field := "expect.data." + ref
			if known(field, ref) && kinds[ref] == KindLeaf {
				add(field, ErrInvalidExpect, "leaf %q has no data", ref)
			}
		}
		for _, ref := range sortedKeys(s.Expect.Merges) {
			field := "expect.merges." + ref
			known(field, ref)
			if s.Expect.Merges[ref] < 0 {
				add(field, ErrInvalidExpect, "merge count must be non-negative")
			}
		}
		for i, ref := range s.Expect.Untouched {
			known(fmt.Sprintf("expect.untouched[%d]", i), ref)
		}
		if s.Expect.MaxSteps < 0 {
			add("expect.max_steps", ErrInvalidExpect, "step cap must be non-negative")
		}
	}

	return append(errs, checkValues(s)...)
}

// findCycles returns the members of every cycle in the lower -> upper link
// graph, each sorted. It uses Tarjan's strongly connected components; self
// links are rejected earlier, so only components with more than one node
// are cycles.
func findCycles(links map[LinkSpec]bool) [][]string {
	graph := make(map[string][]string)
	for l := range links {
		graph[l.Lower] = append(graph[l.Lower], l.Upper)
		if _, ok := graph[l.Upper]; !ok {
			graph[l.Upper] = nil
		}
	}
	for ref := range graph {
		slices.Sort(graph[ref])
	}

	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		cycles  [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var scc []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if len(scc) > 1 {
			slices.Sort(scc)
			cycles = append(cycles, scc)
		}
	}

	for _, v := range sortedKeys(graph) {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return cycles
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
