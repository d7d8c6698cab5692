// Package aggregation propagates incremental changes upward through a
// hierarchy of aggregating nodes.
//
// A hierarchy is made of two kinds of nodes. Leaf nodes hold no data and
// forward every change they receive to their uppers. Aggregating nodes fold
// a change into their own data through the Context's merge function and
// forward whatever delta the merge reports to their own uppers.
//
// LOCKING:
//
// Every node is reached through a Guard obtained from Context.Node. The
// engine never holds two guards at once and never calls into another node
// while a guard is held. Each step is split in two:
//
//  1. Prepare: under the node's guard, merge the change and snapshot the
//     uppers that must be notified. The result is a PreparedChange.
//  2. Apply: after the guard is released, visit each upper in turn, running
//     the same prepare step under that upper's guard.
//
// Apply walks the hierarchy level by level: the prepared changes produced by
// one level become the work of the next, until a level produces none.
//
// ORDERING:
//
// Siblings notified by one step are visited in uppers insertion order, but
// callers must not depend on it. Changes converging on a shared ancestor are
// serialized by that ancestor's guard in an unspecified order, so the merge
// function must be order independent for the final aggregate to be
// deterministic. Replaying a change applies it twice.
//
// There is no cancellation. Once started, a propagation runs to completion.
package aggregation
