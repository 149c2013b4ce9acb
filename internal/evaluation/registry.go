package evaluation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownMetric = errors.New("unknown metric")

var batchMetrics = []Metric{
	{Name: "AUC", Func: AUC},
	{Name: "Accuracy", Func: Accuracy},
	{Name: "Precision", Func: Precision},
	{Name: "Recall", Func: Recall},
	{Name: "F1", Func: F1},
	{Name: "MCC", Func: MCC},
}

var incrementalMetrics = []IncrementalMetric{
	{Name: "AUC", New: newAUCAccumulator},
	{Name: "Accuracy", New: newConfusionAccumulator((*ConfusionMatrix).Accuracy)},
	{Name: "Precision", New: newConfusionAccumulator((*ConfusionMatrix).WeightedPrecision)},
	{Name: "Recall", New: newConfusionAccumulator((*ConfusionMatrix).WeightedRecall)},
	{Name: "F1", New: newConfusionAccumulator((*ConfusionMatrix).WeightedF1)},
	{Name: "MCC", New: newConfusionAccumulator((*ConfusionMatrix).MCC)},
}

// DefaultMetrics is the batch metric set used when nothing is configured.
func DefaultMetrics() []Metric {
	return append([]Metric(nil), batchMetrics[:5]...)
}

func DefaultIncrementalMetrics() []IncrementalMetric {
	return append([]IncrementalMetric(nil), incrementalMetrics[:5]...)
}

func AvailableMetrics() []string {
	names := make([]string, len(batchMetrics))
	for i, m := range batchMetrics {
		names[i] = m.Name
	}
	return names
}

func MetricByName(name string) (Metric, error) {
	for _, m := range batchMetrics {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return Metric{}, fmt.Errorf("%w: %s (available: %s)", ErrUnknownMetric, name, strings.Join(AvailableMetrics(), ", "))
}

func IncrementalMetricByName(name string) (IncrementalMetric, error) {
	for _, m := range incrementalMetrics {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return IncrementalMetric{}, fmt.Errorf("%w: %s (available: %s)", ErrUnknownMetric, name, strings.Join(AvailableMetrics(), ", "))
}

// MetricsByName resolves a configured list; an empty list means the defaults.
func MetricsByName(names []string) ([]Metric, error) {
	if len(names) == 0 {
		return DefaultMetrics(), nil
	}
	metrics := make([]Metric, 0, len(names))
	for _, name := range names {
		m, err := MetricByName(name)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

func IncrementalMetricsByName(names []string) ([]IncrementalMetric, error) {
	if len(names) == 0 {
		return DefaultIncrementalMetrics(), nil
	}
	metrics := make([]IncrementalMetric, 0, len(names))
	for _, name := range names {
		m, err := IncrementalMetricByName(name)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}
