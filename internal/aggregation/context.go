package aggregation

// Context is the capability the engine runs against. It resolves node
// references to guards and owns the merge semantics of D and C.
//
// R is the node reference type, D the aggregate held by aggregating nodes
// and C the incremental change type.
type Context[R comparable, D, C any] interface {
	// Node acquires exclusive access to the referenced node, blocking while
	// another goroutine holds it. An unknown ref is a contract violation
	// and the implementation is expected to panic.
	Node(ref R) Guard[R, D]

	// ApplyChange merges change into data in place and returns the delta to
	// forward to data's uppers. It returns false when the merge absorbed
	// the change completely. change may be shared with sibling uppers and
	// must not be mutated.
	//
	// The merge must be associative and commutative with respect to
	// concurrent changes; the engine cannot check this.
	ApplyChange(data *D, change *C) (C, bool)
}

// Guard is a scoped exclusive handle on one node.
//
// Release must be safe to call more than once; only the first call unlocks.
// Node must not be called after Release.
type Guard[R comparable, D any] interface {
	Ref() R
	Node() *Node[R, D]
	Release()
}

// StepOutcome classifies what a change-application step did.
type StepOutcome int

const (
	// OutcomeForwarded means the step queued a change for one or more uppers.
	OutcomeForwarded StepOutcome = iota + 1
	// OutcomeDropped means a leaf with no uppers discarded the change.
	OutcomeDropped
	// OutcomeAbsorbed means the merge reported nothing to forward.
	OutcomeAbsorbed
	// OutcomeRoot means an aggregating node with no uppers merged the
	// change and stopped, whatever the merge returned.
	OutcomeRoot
)

// String implements fmt.Stringer.
func (o StepOutcome) String() string {
	switch o {
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeDropped:
		return "dropped"
	case OutcomeAbsorbed:
		return "absorbed"
	case OutcomeRoot:
		return "root"
	default:
		return "unknown"
	}
}

// Step describes one change-application step as seen by a StepObserver.
type Step[R comparable, C any] struct {
	Node    R
	Kind    NodeKind
	Outcome StepOutcome

	// Change is the change the node received.
	Change C

	// Forwarded is the change queued for the uppers. Only meaningful when
	// Outcome is OutcomeForwarded.
	Forwarded C

	// Uppers is the number of uppers the change was queued for.
	Uppers int
}

// StepObserver is an optional extension of Context. When the Context passed
// to the engine implements it, ObserveStep is called once per step, after
// the node's guard has been released and before any upper is visited.
//
// ObserveStep may be called concurrently by independent propagations and
// must not acquire node guards.
type StepObserver[R comparable, C any] interface {
	ObserveStep(step Step[R, C])
}
