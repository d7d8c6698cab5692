package aggregation

// inlineUppers is the number of upper refs a prepared change stores without
// allocating. Nodes rarely have more than two uppers.
const inlineUppers = 4

// smallVec is an append-only sequence that keeps up to inlineUppers entries
// in an inline array and spills to a heap slice beyond that. Spilling
// preserves insertion order.
//
// The zero value is empty and ready for use.
type smallVec[T any] struct {
	n      int
	inline [inlineUppers]T
	spill  []T
}

func (v *smallVec[T]) push(x T) {
	if v.spill != nil {
		v.spill = append(v.spill, x)
		return
	}
	if v.n < inlineUppers {
		v.inline[v.n] = x
		v.n++
		return
	}
	v.spill = make([]T, 0, 2*inlineUppers)
	v.spill = append(v.spill, v.inline[:v.n]...)
	v.spill = append(v.spill, x)
	clear(v.inline[:])
	v.n = 0
}

func (v *smallVec[T]) len() int {
	if v.spill != nil {
		return len(v.spill)
	}
	return v.n
}

// items returns the entries in insertion order. The result aliases v and is
// only valid until the next push.
func (v *smallVec[T]) items() []T {
	if v.spill != nil {
		return v.spill
	}
	return v.inline[:v.n]
}

func (v *smallVec[T]) spilled() bool {
	return v.spill != nil
}

// collectUppers snapshots u into a smallVec. The caller must hold the
// owning node's guard.
func collectUppers[R comparable](u *Uppers[R]) smallVec[R] {
	var v smallVec[R]
	for ref := range u.All() {
		v.push(ref)
	}
	return v
}
