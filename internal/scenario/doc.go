// Package scenario loads, validates and runs propagation scenarios.
//
// A scenario declares a hierarchy (nodes and links), a merge function, the
// changes to apply and the expected outcome. Run builds a hierarchy.Graph,
// applies every step through the aggregation engine while recording a
// trace, and evaluates the expectations against the final data and the
// trace.
//
// Scenarios are YAML or CUE:
//
//	name: counter
//	merge: first_crossing
//	nodes:
//	  - {ref: leaf, kind: leaf}
//	  - {ref: A, kind: aggregating}
//	  - {ref: R, kind: aggregating}
//	links:
//	  - {lower: leaf, upper: A}
//	  - {lower: A, upper: R}
//	steps:
//	  - {node: leaf, change: 1}
//	  - parallel:
//	      - {node: leaf, change: 1}
//	      - {node: leaf, change: 1}
//	expect:
//	  data: {A: 3, R: 1}
//	  merges: {A: 3, R: 1}
//	  max_steps: 3
//
// max_steps caps the steps any single propagation may take; a longer
// propagation fails the run with a StepsExceededError message.
//
// Runs are deterministic: propagation IDs are "<name>-0001", "<name>-0002"
// and so on, and seq values start at 1 unless WithStartSeq moves them. Save
// refuses to store a run under IDs already holding a different trace. Steps
// inside a parallel group run concurrently, so their relative order in the
// trace is not fixed; the final data is.
package scenario
