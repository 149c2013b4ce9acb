package report

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sylwekczmil/cacp/internal/comparison"
)

var placeNames = []string{"1st", "2nd", "3rd"}

// Places counts, per algorithm, how many datasets it finished first, second
// and third on, ranking by the mean metric value over the folds. Ties keep
// the alphabetical algorithm order.
type Places struct {
	Metric     string
	Algorithms []string
	// Counts[a][p] is the number of datasets algorithm a took place p on.
	Counts     map[string][]int
	NPlaces    int
}

func CountPlaces(table *comparison.Table, metric string) (*Places, error) {
	m := table.MetricIndex(metric)
	if m < 0 {
		return nil, fmt.Errorf("metric %s not in comparison", metric)
	}

	algorithms := table.Algorithms()
	p := &Places{
		Metric:     metric,
		Algorithms: algorithms,
		Counts:     make(map[string][]int, len(algorithms)),
		NPlaces:    min(len(algorithms), len(placeNames)),
	}
	for _, a := range algorithms {
		p.Counts[a] = make([]int, p.NPlaces)
	}

	for _, dataset := range table.Datasets() {
		means := datasetMeans(table, dataset, m)
		ranked := make([]string, 0, len(means))
		for a := range means {
			ranked = append(ranked, a)
		}
		sort.Slice(ranked, func(i, j int) bool {
			if means[ranked[i]] != means[ranked[j]] {
				return means[ranked[i]] > means[ranked[j]]
			}
			return ranked[i] < ranked[j]
		})
		for place := 0; place < p.NPlaces && place < len(ranked); place++ {
			p.Counts[ranked[place]][place]++
		}
	}
	return p, nil
}

func datasetMeans(table *comparison.Table, dataset string, metric int) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range table.Records {
		if r.Dataset != dataset {
			continue
		}
		sums[r.Algorithm] += r.Metrics[metric]
		counts[r.Algorithm]++
	}
	for a := range sums {
		sums[a] /= float64(counts[a])
	}
	return sums
}

// sortedByPlaces orders algorithms by their place counts, best first.
func sortedByPlaces(algorithms []string, counts func(string) []int) []string {
	out := append([]string(nil), algorithms...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := counts(out[i]), counts(out[j])
		for k := range a {
			if a[k] != b[k] {
				return a[k] > b[k]
			}
		}
		return out[i] < out[j]
	})
	return out
}

func metricDir(metric string) string {
	return comparison.SafeName(strings.ToLower(metric))
}

// Winners writes winner/<metric>/comparison_result for every metric and
// winner/comparison combining the first two metrics.
func Winners(table *comparison.Table, dir string) error {
	winnerDir := filepath.Join(dir, "winner")
	var all []*Places
	for _, metric := range table.MetricNames {
		places, err := CountPlaces(table, metric)
		if err != nil {
			return err
		}
		all = append(all, places)

		t := &Table{
			Caption: "Ranking of compared algorithms for " + metric,
			Label:   "tab:places_" + metricDir(metric),
			Header:  append([]string{"Algorithm"}, placeNames[:places.NPlaces]...),
		}
		for _, a := range sortedByPlaces(places.Algorithms, func(a string) []int { return places.Counts[a] }) {
			t.Append(append([]string{a}, itoaAll(places.Counts[a])...)...)
		}
		if err := t.Write(filepath.Join(winnerDir, metricDir(metric)), "comparison_result"); err != nil {
			return err
		}
	}

	if len(all) == 0 {
		return nil
	}
	combined := all[:min(2, len(all))]
	t := &Table{
		Caption: "Ranking of compared algorithms",
		Label:   "tab:places",
		Header:  []string{"Algorithm"},
	}
	for _, places := range combined {
		for _, name := range placeNames[:places.NPlaces] {
			t.Header = append(t.Header, places.Metric+" "+name)
		}
	}
	counts := func(a string) []int {
		var out []int
		for _, places := range combined {
			out = append(out, places.Counts[a]...)
		}
		return out
	}
	for _, a := range sortedByPlaces(combined[0].Algorithms, counts) {
		t.Append(append([]string{a}, itoaAll(counts(a))...)...)
	}
	return t.Write(winnerDir, "comparison")
}

func itoaAll(values []int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.Itoa(v)
	}
	return out
}
