package aggregation

import (
	"fmt"
	"slices"
)

// PreparedChange is the deferred half of a change-application step: apply
// change to every node in uppers. It owns its change.
type PreparedChange[R comparable, D, C any] struct {
	uppers smallVec[R]
	change C
}

// Uppers returns a copy of the uppers the change is queued for.
func (p *PreparedChange[R, D, C]) Uppers() []R {
	return slices.Clone(p.uppers.items())
}

// Change returns the change queued for the uppers.
func (p *PreparedChange[R, D, C]) Change() C {
	return p.change
}

// Apply propagates the change to the uppers and beyond. No guard may be held
// by the caller. Apply on a nil PreparedChange does nothing.
func (p *PreparedChange[R, D, C]) Apply(ctx Context[R, D, C]) {
	if p == nil {
		return
	}
	ref := &PreparedChangeRef[R, D, C]{uppers: p.uppers, change: &p.change}
	ref.Apply(ctx)
}

// PreparedChangeRef is the borrowing form of PreparedChange. change points
// either at a change owned by the caller (a leaf forwarding verbatim) or at
// the delta produced by a merge; in both cases it is shared, not copied,
// across the sibling uppers.
type PreparedChangeRef[R comparable, D, C any] struct {
	uppers smallVec[R]
	change *C
}

// Uppers returns a copy of the uppers the change is queued for.
func (p *PreparedChangeRef[R, D, C]) Uppers() []R {
	return slices.Clone(p.uppers.items())
}

// Change returns the change queued for the uppers.
func (p *PreparedChangeRef[R, D, C]) Change() C {
	return *p.change
}

// Apply visits the uppers level by level. Each upper is locked on its own,
// runs the change-application step and is released before the next one is
// touched; the prepared changes produced at one level form the next level.
// Apply on a nil PreparedChangeRef does nothing.
func (p *PreparedChangeRef[R, D, C]) Apply(ctx Context[R, D, C]) {
	if p == nil {
		return
	}
	obs, _ := ctx.(StepObserver[R, C])

	level := []*PreparedChangeRef[R, D, C]{p}
	for len(level) > 0 {
		var next []*PreparedChangeRef[R, D, C]
		for _, item := range level {
			for _, upper := range item.uppers.items() {
				var kind NodeKind
				var outcome StepOutcome
				q := Prepare(ctx.Node(upper), func(n *Node[R, D]) *PreparedChangeRef[R, D, C] {
					var q *PreparedChangeRef[R, D, C]
					kind = n.Kind()
					q, outcome = prepareChangeRef(ctx, n, item.change)
					return q
				})
				if obs != nil {
					obs.ObserveStep(q.step(upper, kind, outcome, item.change))
				}
				if q != nil {
					next = append(next, q)
				}
			}
		}
		level = next
	}
}

func (p *PreparedChangeRef[R, D, C]) step(ref R, kind NodeKind, outcome StepOutcome, change *C) Step[R, C] {
	s := Step[R, C]{Node: ref, Kind: kind, Outcome: outcome, Change: *change}
	if p != nil {
		s.Forwarded = *p.change
		s.Uppers = p.uppers.len()
	}
	return s
}

// PrepareChange runs the change-application step for an owned change. The
// caller must hold n's guard. It returns nil when nothing is left to do.
func PrepareChange[R comparable, D, C any](ctx Context[R, D, C], n *Node[R, D], change C) *PreparedChange[R, D, C] {
	p, _ := prepareChange(ctx, n, change)
	return p
}

// PrepareChangeRef runs the change-application step for a borrowed change.
// The caller must hold n's guard and keep *change alive until the result has
// been applied. It returns nil when nothing is left to do.
func PrepareChangeRef[R comparable, D, C any](ctx Context[R, D, C], n *Node[R, D], change *C) *PreparedChangeRef[R, D, C] {
	p, _ := prepareChangeRef(ctx, n, change)
	return p
}

func prepareChange[R comparable, D, C any](ctx Context[R, D, C], n *Node[R, D], change C) (*PreparedChange[R, D, C], StepOutcome) {
	switch n.kind {
	case KindLeaf:
		if n.uppers.IsEmpty() {
			return nil, OutcomeDropped
		}
		return &PreparedChange[R, D, C]{uppers: collectUppers(&n.uppers), change: change}, OutcomeForwarded

	case KindAggregating:
		forward, ok := ctx.ApplyChange(&n.data, &change)
		if n.uppers.IsEmpty() {
			return nil, OutcomeRoot
		}
		if !ok {
			return nil, OutcomeAbsorbed
		}
		return &PreparedChange[R, D, C]{uppers: collectUppers(&n.uppers), change: forward}, OutcomeForwarded

	default:
		panic(fmt.Sprintf("aggregation: unknown node kind %v", n.kind))
	}
}

func prepareChangeRef[R comparable, D, C any](ctx Context[R, D, C], n *Node[R, D], change *C) (*PreparedChangeRef[R, D, C], StepOutcome) {
	switch n.kind {
	case KindLeaf:
		if n.uppers.IsEmpty() {
			return nil, OutcomeDropped
		}
		return &PreparedChangeRef[R, D, C]{uppers: collectUppers(&n.uppers), change: change}, OutcomeForwarded

	case KindAggregating:
		forward, ok := ctx.ApplyChange(&n.data, change)
		if n.uppers.IsEmpty() {
			return nil, OutcomeRoot
		}
		if !ok {
			return nil, OutcomeAbsorbed
		}
		return &PreparedChangeRef[R, D, C]{uppers: collectUppers(&n.uppers), change: &forward}, OutcomeForwarded

	default:
		panic(fmt.Sprintf("aggregation: unknown node kind %v", n.kind))
	}
}
