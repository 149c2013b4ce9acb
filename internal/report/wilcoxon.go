package report

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sylwekczmil/cacp/internal/comparison"
)

var ErrSampleMismatch = errors.New("samples differ in length")

// exactLimit is the largest sample size tested with the exact null
// distribution; larger samples use the normal approximation.
const exactLimit = 50

// Wilcoxon runs the two-sided Wilcoxon signed-rank test on paired samples.
// Zero differences are dropped. Samples without any non-zero difference
// give p = 1. Small samples without ties use the exact distribution,
// everything else the normal approximation with a tie correction.
func Wilcoxon(x, y []float64) (statistic, p float64, err error) {
	if len(x) != len(y) {
		return 0, 0, fmt.Errorf("%w: %d and %d", ErrSampleMismatch, len(x), len(y))
	}

	var diffs []float64
	for i := range x {
		if d := x[i] - y[i]; d != 0 {
			diffs = append(diffs, d)
		}
	}
	n := len(diffs)
	if n == 0 {
		return 0, 1, nil
	}

	ranks, ties := absRanks(diffs)
	plus, minus := 0.0, 0.0
	for i, d := range diffs {
		if d > 0 {
			plus += ranks[i]
		} else {
			minus += ranks[i]
		}
	}
	statistic = math.Min(plus, minus)

	if n <= exactLimit && len(ties) == 0 {
		return statistic, exactP(n, statistic), nil
	}

	nf := float64(n)
	mean := nf * (nf + 1) / 4
	variance := nf * (nf + 1) * (2*nf + 1) / 24
	for _, t := range ties {
		tf := float64(t)
		variance -= (tf*tf*tf - tf) / 48
	}
	if variance <= 0 {
		return statistic, 1, nil
	}
	z := (statistic - mean) / math.Sqrt(variance)
	p = 2 * distuv.UnitNormal.CDF(-math.Abs(z))
	return statistic, math.Min(1, p), nil
}

// absRanks ranks |d| with averaged ranks for ties and returns the sizes of
// the tie groups.
func absRanks(diffs []float64) ([]float64, []int) {
	order := make([]int, len(diffs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return math.Abs(diffs[order[a]]) < math.Abs(diffs[order[b]])
	})

	ranks := make([]float64, len(diffs))
	var ties []int
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && math.Abs(diffs[order[end]]) == math.Abs(diffs[order[start]]) {
			end++
		}
		rank := float64(start+end+1) / 2
		for k := start; k < end; k++ {
			ranks[order[k]] = rank
		}
		if end-start > 1 {
			ties = append(ties, end-start)
		}
		start = end
	}
	return ranks, ties
}

// exactP is 2 * P(T <= w) under the null, where T is the sum of a random
// subset of the ranks 1..n.
func exactP(n int, w float64) float64 {
	maxSum := n * (n + 1) / 2
	counts := make([]float64, maxSum+1)
	counts[0] = 1
	for r := 1; r <= n; r++ {
		for s := maxSum; s >= r; s-- {
			counts[s] += counts[s-r]
		}
	}

	total := math.Pow(2, float64(n))
	cumulative := 0.0
	for s := 0; s <= maxSum && float64(s) <= w; s++ {
		cumulative += counts[s]
	}
	return math.Min(1, 2*cumulative/total)
}

// pairedValues aligns two algorithms on (dataset, fold) and returns the
// metric values of the folds both have.
func pairedValues(table *comparison.Table, a, b string, metric int) ([]float64, []float64) {
	type key struct {
		dataset string
		fold    int
	}
	values := make(map[key]float64)
	for _, r := range table.Records {
		if r.Algorithm == b {
			values[key{r.Dataset, r.CVIndex}] = r.Metrics[metric]
		}
	}

	var x, y []float64
	for _, r := range table.Records {
		if r.Algorithm != a {
			continue
		}
		if v, ok := values[key{r.Dataset, r.CVIndex}]; ok {
			x = append(x, r.Metrics[metric])
			y = append(y, v)
		}
	}
	return x, y
}

func boldLargeP(p float64) string {
	formatted := fmt.Sprintf("%.4f", p)
	if p > 0.05 {
		return "\\textbf{" + formatted + "}"
	}
	return formatted
}

// WilcoxonTables writes, for every algorithm, the p values of the test
// against every other algorithm: one table per metric under
// wilcoxon/<metric>/ and one combined table under wilcoxon/.
func WilcoxonTables(table *comparison.Table, dir string) error {
	wilcoxonDir := filepath.Join(dir, "wilcoxon")
	algorithms := table.Algorithms()

	for _, current := range algorithms {
		var others []string
		for _, a := range algorithms {
			if a != current {
				others = append(others, a)
			}
		}
		sort.Strings(others)

		combinedCSV := &Table{Header: []string{"Algorithm"}}
		combinedTeX := &Table{
			Caption: "Comparison of classifiers and " + current + " using Wilcoxon signed-rank test",
			Label:   "tab:wilcoxon_comparison",
			Header:  []string{"Algorithm"},
		}
		pvalues := make([][]float64, len(others))

		for m, metric := range table.MetricNames {
			t := &Table{
				Caption: fmt.Sprintf("Comparison of classifiers and %s using Wilcoxon signed-rank test for %s", current, metric),
				Label:   fmt.Sprintf("tab:%s_wilcoxon_%s_comparison", comparison.SafeName(current), metricDir(metric)),
				Header:  []string{current, "Algorithm", "p-value"},
			}
			for i, other := range others {
				x, y := pairedValues(table, current, other, m)
				_, p, err := Wilcoxon(x, y)
				if err != nil {
					return fmt.Errorf("wilcoxon %s vs %s: %w", current, other, err)
				}
				pvalues[i] = append(pvalues[i], p)
				t.Append(current, other, raw(p))
			}
			base := "comparison_" + comparison.SafeName(current) + "_result"
			if err := t.Write(filepath.Join(wilcoxonDir, metricDir(metric)), base); err != nil {
				return err
			}
			combinedCSV.Header = append(combinedCSV.Header, metric+" p-value")
			combinedTeX.Header = append(combinedTeX.Header, metric+" p-value")
		}

		if len(others) == 0 {
			continue
		}
		for i, other := range others {
			csvRow := []string{other}
			texRow := []string{other}
			for _, p := range pvalues[i] {
				csvRow = append(csvRow, raw(p))
				texRow = append(texRow, boldLargeP(p))
			}
			combinedCSV.Append(csvRow...)
			combinedTeX.Append(texRow...)
		}
		if err := writePair(wilcoxonDir, "comparison_"+comparison.SafeName(current), combinedCSV, combinedTeX); err != nil {
			return err
		}
	}
	return nil
}
