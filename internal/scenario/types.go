package scenario

import "fmt"

// Merge names a stock merge function from internal/merge.
type Merge string

const (
	MergeSum           Merge = "sum"
	MergePresence      Merge = "presence"
	MergeFirstCrossing Merge = "first_crossing"
	MergeUnion         Merge = "union"
)

// Node kinds as written in scenario files.
const (
	KindLeaf        = "leaf"
	KindAggregating = "aggregating"
)

// Scenario is a propagation scenario.
//
// yaml tags drive the YAML loader and json tags drive CUE decoding.
type Scenario struct {
	// Name identifies the scenario and prefixes its propagation IDs.
	Name string `yaml:"name" json:"name"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Merge selects the merge function used by every aggregating node.
	Merge Merge `yaml:"merge" json:"merge"`

	Nodes []NodeSpec `yaml:"nodes" json:"nodes"`
	Links []LinkSpec `yaml:"links,omitempty" json:"links,omitempty"`
	Steps []Step     `yaml:"steps" json:"steps"`

	Expect *Expect `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// NodeSpec declares one node. Data is the initial aggregate of an
// aggregating node (zero when omitted) and must be absent for leaves.
type NodeSpec struct {
	Ref  string `yaml:"ref" json:"ref"`
	Kind string `yaml:"kind" json:"kind"`
	Data any    `yaml:"data,omitempty" json:"data,omitempty"`
}

// LinkSpec makes Upper an upper of Lower.
type LinkSpec struct {
	Lower string `yaml:"lower" json:"lower"`
	Upper string `yaml:"upper" json:"upper"`
}

// Step applies Change at Node, or runs every step of Parallel concurrently.
// Exactly one of Node and Parallel is set. Parallel groups do not nest.
type Step struct {
	Node     string `yaml:"node,omitempty" json:"node,omitempty"`
	Change   any    `yaml:"change,omitempty" json:"change,omitempty"`
	Parallel []Step `yaml:"parallel,omitempty" json:"parallel,omitempty"`
}

// Expect holds the expected outcome of a run.
type Expect struct {
	// Data is the expected final aggregate per aggregating node.
	Data map[string]any `yaml:"data,omitempty" json:"data,omitempty"`

	// Merges is how many times each node's data was merged.
	Merges map[string]int `yaml:"merges,omitempty" json:"merges,omitempty"`

	// Untouched lists nodes no propagation may reach.
	Untouched []string `yaml:"untouched,omitempty" json:"untouched,omitempty"`

	// MaxSteps caps the steps of any single propagation. Zero means no cap.
	MaxSteps int `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
}

// TraceEvent is one recorded step in a form that serializes canonically.
type TraceEvent struct {
	ID          string
	Propagation string
	Seq         int64
	Node        string
	Kind        string
	Outcome     string
	Change      any
	// Forwarded is nil unless Outcome is "forwarded".
	Forwarded any
	Uppers    int
}

// PropagationRecord describes one propagation started by a step.
type PropagationRecord struct {
	ID     string
	Origin string
	Change any
	// Seq is the seq of the propagation's first step.
	Seq int64
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expectation held.
	Pass bool

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string

	// Data is the final aggregate of every aggregating node.
	Data map[string]any

	Propagations []PropagationRecord
	Trace        []TraceEvent
}

// NewResult creates a passing, empty result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Data:   make(map[string]any),
		Trace:  []TraceEvent{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}
