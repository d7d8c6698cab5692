// Package hierarchy is an in-memory aggregation.Context.
//
// A Graph stores nodes in a concurrent map keyed by node reference. Each node
// sits behind its own mutex; Graph.Node hands out a guard over that mutex and
// nothing in this package ever holds two node mutexes at once, including the
// structural operations Link and Unlink, which only lock the lower node.
//
// Graph does not rebalance or validate the shape of the hierarchy. Callers
// that link nodes are responsible for keeping it acyclic; a cycle makes
// propagation loop for as long as the merge keeps forwarding.
//
// Usage:
//
//	g := hierarchy.New[string](merge.FirstCrossing[int64])
//	_ = g.AddLeaf("task")
//	_ = g.AddAggregating("parent", 0)
//	_ = g.Link("task", "parent")
//	g.Update("task", 1)
package hierarchy
