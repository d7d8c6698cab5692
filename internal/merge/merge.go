// Package merge provides stock merge functions for aggregation contexts.
//
// Every function here has the shape func(data *D, change *C) (C, bool) and
// can be passed directly to hierarchy.New. All of them are commutative and
// associative over concurrent changes, so the final aggregate does not depend
// on the order in which converging changes reach a node.
package merge

// Integer is the set of types the counting merges operate on.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Sum adds change to data and forwards the same delta. A zero delta is
// absorbed.
func Sum[T Integer](data *T, change *T) (T, bool) {
	*data += *change
	return *change, *change != 0
}

// Presence counts how many descendants are in some state (dirty, pending,
// failing) and reports only whether the count is non-zero. It forwards +1
// when data leaves zero and -1 when it returns to zero; anything else is
// absorbed. Uppers therefore count children with a non-zero count.
func Presence[T Integer](data *T, change *T) (T, bool) {
	before := *data
	*data += *change
	after := *data

	switch {
	case before == 0 && after != 0:
		return 1, true
	case before != 0 && after == 0:
		return -1, true
	default:
		return 0, false
	}
}

// FirstCrossing adds change to data and forwards the delta only when data
// crosses from zero to non-zero. A node that is already non-zero absorbs
// further changes, including those that bring it back to zero.
func FirstCrossing[T Integer](data *T, change *T) (T, bool) {
	before := *data
	*data += *change
	if before == 0 && *data != 0 {
		return *change, true
	}
	return 0, false
}
