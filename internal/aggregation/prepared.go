package aggregation

// PreparedOperation is work computed while a node was locked and executed
// after the lock is gone. X is whatever the work needs to run, typically a
// Context. Apply consumes the operation; calling it twice repeats the work.
type PreparedOperation[X any] interface {
	Apply(ctx X)
}

var (
	_ PreparedOperation[Context[string, int, int]] = (*PreparedChange[string, int, int])(nil)
	_ PreparedOperation[Context[string, int, int]] = (*PreparedChangeRef[string, int, int])(nil)
)

// Prepare runs fn on the node held by guard and releases the guard on every
// exit path, including a panic inside fn. Whatever fn returns must capture
// all remaining work, because the node may not be touched afterwards.
func Prepare[R comparable, D any, P any](guard Guard[R, D], fn func(n *Node[R, D]) P) P {
	defer guard.Release()
	return fn(guard.Node())
}

// ApplyChange propagates an owned change from the node held by guard.
//
// The caller has already locked the origin node. ApplyChange runs one
// prepare step under that guard, releases it, then applies the prepared work
// to the uppers without holding any other lock. It returns once the whole
// propagation chain has completed.
func ApplyChange[R comparable, D, C any](ctx Context[R, D, C], guard Guard[R, D], change C) {
	ref := guard.Ref()
	var kind NodeKind
	var outcome StepOutcome
	p := Prepare(guard, func(n *Node[R, D]) *PreparedChange[R, D, C] {
		var p *PreparedChange[R, D, C]
		kind = n.Kind()
		p, outcome = prepareChange(ctx, n, change)
		return p
	})

	if obs, ok := ctx.(StepObserver[R, C]); ok {
		s := Step[R, C]{Node: ref, Kind: kind, Outcome: outcome, Change: change}
		if p != nil {
			s.Forwarded = p.change
			s.Uppers = p.uppers.len()
		}
		obs.ObserveStep(s)
	}

	p.Apply(ctx)
}

// ApplyChangeRef is ApplyChange for a borrowed change. *change must stay
// valid until ApplyChangeRef returns.
func ApplyChangeRef[R comparable, D, C any](ctx Context[R, D, C], guard Guard[R, D], change *C) {
	ref := guard.Ref()
	var kind NodeKind
	var outcome StepOutcome
	p := Prepare(guard, func(n *Node[R, D]) *PreparedChangeRef[R, D, C] {
		var p *PreparedChangeRef[R, D, C]
		kind = n.Kind()
		p, outcome = prepareChangeRef(ctx, n, change)
		return p
	})

	if obs, ok := ctx.(StepObserver[R, C]); ok {
		obs.ObserveStep(p.step(ref, kind, outcome, change))
	}

	p.Apply(ctx)
}
