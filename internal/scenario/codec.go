package scenario

import (
	"fmt"
	"math"

	"github.com/roach88/rollup/internal/merge"
)

// codec converts scenario values to typed data and changes and back into
// values internal/canonical can serialize.
type codec[D, C any] interface {
	data(v any) (D, error)
	change(v any) (C, error)
	renderData(d D) any
	renderChange(c C) any
	clone(d D) D
}

// counter is the codec of the integer merges.
type counter struct{}

func (counter) data(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	return toInt64(v)
}

func (counter) change(v any) (int64, error) {
	if v == nil {
		return 0, fmt.Errorf("change is required")
	}
	return toInt64(v)
}

func (counter) renderData(d int64) any   { return d }
func (counter) renderChange(c int64) any { return c }
func (counter) clone(d int64) int64      { return d }

// keyset is the codec of merge.Union. A set is written either as a map of
// key to count delta or as a list of keys, each counting 1.
type keyset struct{}

func (keyset) data(v any) (merge.Set, error) {
	if v == nil {
		return merge.Set{}, nil
	}
	s, err := toSet(v)
	if err != nil {
		return nil, err
	}
	for key, n := range s {
		if n < 0 {
			return nil, fmt.Errorf("key %q: initial count must not be negative", key)
		}
	}
	return s, nil
}

func (keyset) change(v any) (merge.Set, error) {
	if v == nil {
		return nil, fmt.Errorf("change is required")
	}
	return toSet(v)
}

func (keyset) renderData(d merge.Set) any   { return renderSet(d) }
func (keyset) renderChange(c merge.Set) any { return renderSet(c) }
func (keyset) clone(d merge.Set) merge.Set  { return d.Clone() }

func renderSet(s merge.Set) any {
	out := make(map[string]any, len(s))
	for key, n := range s {
		if n != 0 {
			out[key] = n
		}
	}
	return out
}

func toSet(v any) (merge.Set, error) {
	switch v := v.(type) {
	case map[string]any:
		s := make(merge.Set, len(v))
		for key, raw := range v {
			n, err := toInt64(raw)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			if n != 0 {
				s[key] = n
			}
		}
		return s, nil
	case []any:
		s := make(merge.Set, len(v))
		for i, raw := range v {
			key, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected string key, got %T", i, raw)
			}
			s[key]++
		}
		return s, nil
	default:
		return nil, fmt.Errorf("expected map of key counts or list of keys, got %T", v)
	}
}

// bigInt is satisfied by *big.Int, which CUE produces for integers that do
// not fit in an int.
type bigInt interface {
	IsInt64() bool
	Int64() int64
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int64(n), nil
	case bigInt:
		if !n.IsInt64() {
			return 0, fmt.Errorf("integer %v overflows int64", n)
		}
		return n.Int64(), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// checkValues reports every node data, step change and expected data that
// does not convert under the scenario's merge.
func checkValues(s *Scenario) []ValidationError {
	switch s.Merge {
	case MergeSum, MergePresence, MergeFirstCrossing:
		return checkWith[int64, int64](s, counter{})
	case MergeUnion:
		return checkWith[merge.Set, merge.Set](s, keyset{})
	default:
		return nil
	}
}

func checkWith[D, C any](s *Scenario, c codec[D, C]) []ValidationError {
	var errs []ValidationError
	for i, n := range s.Nodes {
		if n.Kind != KindAggregating {
			continue
		}
		if _, err := c.data(n.Data); err != nil {
			errs = append(errs, ValidationError{
				Field: fmt.Sprintf("nodes[%d].data", i), Message: err.Error(), Code: ErrInvalidValue,
			})
		}
	}
	for i, st := range s.Steps {
		if len(st.Parallel) == 0 {
			if _, err := c.change(st.Change); err != nil {
				errs = append(errs, ValidationError{
					Field: fmt.Sprintf("steps[%d].change", i), Message: err.Error(), Code: ErrInvalidValue,
				})
			}
			continue
		}
		for j, p := range st.Parallel {
			if _, err := c.change(p.Change); err != nil {
				errs = append(errs, ValidationError{
					Field: fmt.Sprintf("steps[%d].parallel[%d].change", i, j), Message: err.Error(), Code: ErrInvalidValue,
				})
			}
		}
	}
	if s.Expect != nil {
		for _, ref := range sortedKeys(s.Expect.Data) {
			if _, err := c.data(s.Expect.Data[ref]); err != nil {
				errs = append(errs, ValidationError{
					Field: fmt.Sprintf("expect.data.%s", ref), Message: err.Error(), Code: ErrInvalidValue,
				})
			}
		}
	}
	return errs
}
