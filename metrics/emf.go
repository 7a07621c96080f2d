package metrics

import (
	"fmt"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// emfMetric is one CloudWatch EMF metric definition entry.
type emfMetric struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type cloudWatchMetrics struct {
	Namespace  string       `json:"Namespace"`
	Dimensions [][]string   `json:"Dimensions"`
	Metrics    []emfMetric  `json:"Metrics"`
}

type emfMeta struct {
	Timestamp         int64               `json:"Timestamp"`
	CloudWatchMetrics []cloudWatchMetrics `json:"CloudWatchMetrics"`
}

// Snapshot builds an EMF-format document: an "_aws" metadata block
// describing each metric family found, plus one flat key per labeled
// series. Label combinations are embedded in the key name
// (`metric{label=value,...}`) since EMF has no native multi-dimensional
// series concept beyond its Dimensions array, which names dimension keys
// shared across the whole payload rather than per-series values.
func (r *Registry) Snapshot(nowMillis int64) (map[string]any, error) {
	families, err := r.prometheus.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}

	out := map[string]any{}
	var metricDefs []emfMetric
	var dimensionKeys map[string]bool = map[string]bool{}

	for _, mf := range families {
		name := mf.GetName()
		unit := unitFor(mf.GetType())
		metricDefs = append(metricDefs, emfMetric{Name: name, Unit: unit})

		for _, m := range mf.GetMetric() {
			key := seriesKey(name, m.GetLabel())
			for _, l := range m.GetLabel() {
				dimensionKeys[l.GetName()] = true
			}
			out[key] = valueOf(mf.GetType(), m)
		}
	}

	dims := make([]string, 0, len(dimensionKeys))
	for k := range dimensionKeys {
		dims = append(dims, k)
	}
	sort.Strings(dims)

	out["_aws"] = emfMeta{
		Timestamp: nowMillis,
		CloudWatchMetrics: []cloudWatchMetrics{
			{
				Namespace:  "FilotKYC",
				Dimensions: [][]string{dims},
				Metrics:    metricDefs,
			},
		},
	}
	return out, nil
}

func seriesKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s{%s}", name, strings.Join(parts, ","))
}

func valueOf(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return m.GetHistogram().GetSampleSum()
	default:
		return 0
	}
}

func unitFor(t dto.MetricType) string {
	switch t {
	case dto.MetricType_COUNTER:
		return "Count"
	case dto.MetricType_HISTOGRAM:
		return "Seconds"
	default:
		return "None"
	}
}
