package hierarchy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var guardsAcquired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rollup_hierarchy_guards_acquired_total",
	Help: "Number of node guards handed out",
})

var stepsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rollup_hierarchy_steps_total",
	Help: "Number of change-application steps by node kind and outcome",
}, []string{"kind", "outcome"})

var fanOut = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "rollup_hierarchy_fan_out",
	Help:    "Number of uppers a forwarded change was queued for",
	Buckets: []float64{1, 2, 3, 4, 8, 16, 64},
})

var nodesRegistered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rollup_hierarchy_nodes_registered_total",
	Help: "Number of nodes registered across all graphs",
})
