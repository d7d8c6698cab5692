package merge

import (
	"maps"
	"slices"
)

// Set is a reference-counted set of keys. A key is a member while its count
// is non-zero; keys with a zero count are never stored.
type Set map[string]int64

// Keys returns the members in sorted order.
func (s Set) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// Clone returns a copy of s that shares no storage with it.
func (s Set) Clone() Set {
	return maps.Clone(s)
}

// Has reports whether key is a member.
func (s Set) Has(key string) bool {
	return s[key] != 0
}

// Union merges per-key count deltas into a Set. The forwarded change holds
// +1 for every key that became a member and -1 for every key that stopped
// being one, so uppers see each child's contribution exactly once. A change
// that flips no membership is absorbed.
//
// The change is not modified.
func Union(data *Set, change *Set) (Set, bool) {
	if *data == nil {
		*data = make(Set, len(*change))
	}

	var forward Set
	for key, delta := range *change {
		if delta == 0 {
			continue
		}
		before := (*data)[key]
		after := before + delta
		if after == 0 {
			delete(*data, key)
		} else {
			(*data)[key] = after
		}

		var flip int64
		switch {
		case before == 0 && after != 0:
			flip = 1
		case before != 0 && after == 0:
			flip = -1
		default:
			continue
		}
		if forward == nil {
			forward = make(Set)
		}
		forward[key] = flip
	}

	return forward, len(forward) > 0
}
