package report

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sylwekczmil/cacp/internal/comparison"
)

// AlgorithmSummary is the mean and sample standard deviation of every
// metric over all records of one algorithm.
type AlgorithmSummary struct {
	Algorithm string
	Mean      []float64
	Std       []float64
}

// Summarize aggregates per algorithm and orders the result by the metric
// means, first metric first, best first.
func Summarize(table *comparison.Table) []AlgorithmSummary {
	grouped := groupValues(table, func(r comparison.Record) string { return r.Algorithm })

	var summaries []AlgorithmSummary
	for _, algorithm := range table.Algorithms() {
		s := AlgorithmSummary{
			Algorithm: algorithm,
			Mean:      make([]float64, len(table.MetricNames)),
			Std:       make([]float64, len(table.MetricNames)),
		}
		for m := range table.MetricNames {
			s.Mean[m], s.Std[m] = meanStd(grouped[algorithm][m])
		}
		summaries = append(summaries, s)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return lessDesc(summaries[i].Mean, summaries[j].Mean)
	})
	return summaries
}

// lessDesc orders by the first differing value, larger first.
func lessDesc(a, b []float64) bool {
	for k := range a {
		if a[k] != b[k] {
			return a[k] > b[k]
		}
	}
	return false
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

// groupValues collects metric columns per key: key -> metric -> values in
// record order.
func groupValues(table *comparison.Table, key func(comparison.Record) string) map[string][][]float64 {
	grouped := make(map[string][][]float64)
	for _, r := range table.Records {
		k := key(r)
		if grouped[k] == nil {
			grouped[k] = make([][]float64, len(table.MetricNames))
		}
		for m, v := range r.Metrics {
			grouped[k][m] = append(grouped[k][m], v)
		}
	}
	return grouped
}

// ComparisonResult writes comparison_result.csv and .tex.
func ComparisonResult(table *comparison.Table, dir string) (*Table, error) {
	summaries := Summarize(table)

	csvTable := &Table{Header: []string{"Algorithm"}}
	texTable := &Table{
		Caption: "Results of comparison",
		Label:   "tab:comparison",
		Header:  []string{"Algorithm"},
	}
	for _, m := range table.MetricNames {
		csvTable.Header = append(csvTable.Header, m, m+" +/-")
		texTable.Header = append(texTable.Header, m)
	}

	for _, s := range summaries {
		csvRow := []string{s.Algorithm}
		texRow := []string{s.Algorithm}
		for m := range table.MetricNames {
			csvRow = append(csvRow, raw(s.Mean[m]), raw(s.Std[m]))
			texRow = append(texRow, round(s.Mean[m], 3)+"$\\pm$"+round(s.Std[m], 3))
		}
		csvTable.Rows = append(csvTable.Rows, csvRow)
		texTable.Rows = append(texTable.Rows, texRow)
	}

	if err := writePair(dir, "comparison_result", csvTable, texTable); err != nil {
		return nil, err
	}
	return texTable, nil
}
