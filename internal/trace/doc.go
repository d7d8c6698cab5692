// Package trace records propagation steps for inspection, golden testing and
// persistence.
//
// A Recorder collects aggregation.Step values into Events. Because a Step does
// not say which propagation produced it, recording is scoped: Track wraps a
// Context in a Propagation that carries its own ID, and the engine reports
// steps to that wrapper. Independent propagations running on different
// goroutines each get their own wrapper and interleave safely in the
// recorder.
//
// Every event is stamped from a logical clock. Wall-clock time is never used
// for ordering; the seq order of events is the order in which the recorder
// observed them.
package trace
