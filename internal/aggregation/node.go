package aggregation

import (
	"fmt"
	"iter"
	"slices"
)

// NodeKind distinguishes the two node variants.
type NodeKind int

const (
	// KindLeaf nodes hold no data and forward changes verbatim.
	KindLeaf NodeKind = iota + 1
	// KindAggregating nodes merge changes into their own data.
	KindAggregating
)

// String implements fmt.Stringer.
func (k NodeKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindAggregating:
		return "aggregating"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// Node is a vertex of the aggregation hierarchy.
//
// A Node is either a leaf or an aggregating node; the variant is fixed at
// construction. All fields are mutable state owned by the node's Guard and
// must only be touched while that guard is held.
type Node[R comparable, D any] struct {
	kind   NodeKind
	uppers Uppers[R]
	data   D
}

// NewLeaf creates a leaf node with no uppers.
func NewLeaf[R comparable, D any]() *Node[R, D] {
	return &Node[R, D]{kind: KindLeaf}
}

// NewAggregating creates an aggregating node holding data and no uppers.
func NewAggregating[R comparable, D any](data D) *Node[R, D] {
	return &Node[R, D]{kind: KindAggregating, data: data}
}

// Kind returns the node variant.
func (n *Node[R, D]) Kind() NodeKind {
	return n.kind
}

// Uppers returns the node's upper set for reading or structural mutation.
// The caller must hold the node's guard.
func (n *Node[R, D]) Uppers() *Uppers[R] {
	return &n.uppers
}

// Data returns a copy of the aggregate held by an aggregating node.
// Returns false for leaves. The copy is shallow: maps and slices inside D
// are shared with the node.
func (n *Node[R, D]) Data() (D, bool) {
	if n.kind != KindAggregating {
		var zero D
		return zero, false
	}
	return n.data, true
}

// Uppers is an insertion-ordered set of upper node references.
//
// The zero value is an empty set ready for use. Most nodes have zero to two
// uppers, so removal shifts the backing slice instead of swapping to keep
// iteration order stable.
type Uppers[R comparable] struct {
	refs  []R
	index map[R]int
}

// Add inserts ref. Returns false if it was already present.
func (u *Uppers[R]) Add(ref R) bool {
	if _, ok := u.index[ref]; ok {
		return false
	}
	if u.index == nil {
		u.index = make(map[R]int)
	}
	u.index[ref] = len(u.refs)
	u.refs = append(u.refs, ref)
	return true
}

// Remove deletes ref. Returns false if it was not present.
func (u *Uppers[R]) Remove(ref R) bool {
	i, ok := u.index[ref]
	if !ok {
		return false
	}
	delete(u.index, ref)
	u.refs = slices.Delete(u.refs, i, i+1)
	for j := i; j < len(u.refs); j++ {
		u.index[u.refs[j]] = j
	}
	return true
}

// Contains reports whether ref is in the set.
func (u *Uppers[R]) Contains(ref R) bool {
	_, ok := u.index[ref]
	return ok
}

// Len returns the number of uppers.
func (u *Uppers[R]) Len() int {
	return len(u.refs)
}

// IsEmpty reports whether the set has no uppers.
func (u *Uppers[R]) IsEmpty() bool {
	return len(u.refs) == 0
}

// All iterates the uppers in insertion order.
func (u *Uppers[R]) All() iter.Seq[R] {
	return slices.Values(u.refs)
}

// Slice returns a copy of the uppers in insertion order.
func (u *Uppers[R]) Slice() []R {
	return slices.Clone(u.refs)
}
