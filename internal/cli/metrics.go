package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// metricPrefix selects the hierarchy's metrics from the default registry.
const metricPrefix = "rollup_"

// MetricSample is one gathered metric value.
type MetricSample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// String renders the sample in Prometheus exposition style.
func (m MetricSample) String() string {
	if len(m.Labels) == 0 {
		return fmt.Sprintf("%s %g", m.Name, m.Value)
	}
	keys := make([]string, 0, len(m.Labels))
	for k := range m.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%q", k, m.Labels[k])
	}
	return fmt.Sprintf("%s{%s} %g", m.Name, strings.Join(pairs, ","), m.Value)
}

// gatherMetrics reads every counter, gauge and histogram whose name starts
// with prefix from the default registry. Histograms yield _count and _sum
// samples.
func gatherMetrics(prefix string) ([]MetricSample, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var samples []MetricSample
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			var labels map[string]string
			if len(m.GetLabel()) > 0 {
				labels = make(map[string]string, len(m.GetLabel()))
				for _, lp := range m.GetLabel() {
					labels[lp.GetName()] = lp.GetValue()
				}
			}
			switch {
			case m.GetCounter() != nil:
				samples = append(samples, MetricSample{Name: name, Labels: labels, Value: m.GetCounter().GetValue()})
			case m.GetGauge() != nil:
				samples = append(samples, MetricSample{Name: name, Labels: labels, Value: m.GetGauge().GetValue()})
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				samples = append(samples,
					MetricSample{Name: name + "_count", Labels: labels, Value: float64(h.GetSampleCount())},
					MetricSample{Name: name + "_sum", Labels: labels, Value: h.GetSampleSum()},
				)
			}
		}
	}
	return samples, nil
}
