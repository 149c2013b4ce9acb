package report

import (
	"path/filepath"
	"sort"

	"github.com/sylwekczmil/cacp/internal/comparison"
)

type AlgorithmTime struct {
	Algorithm      string
	TrainTime      float64
	PredictionTime float64
}

// MeanTimes averages train and prediction time per algorithm, fastest
// training first.
func MeanTimes(table *comparison.Table) []AlgorithmTime {
	sums := make(map[string]*AlgorithmTime)
	counts := make(map[string]int)
	for _, r := range table.Records {
		t, ok := sums[r.Algorithm]
		if !ok {
			t = &AlgorithmTime{Algorithm: r.Algorithm}
			sums[r.Algorithm] = t
		}
		t.TrainTime += r.TrainTime
		t.PredictionTime += r.PredictionTime
		counts[r.Algorithm]++
	}

	var out []AlgorithmTime
	for _, a := range table.Algorithms() {
		t := *sums[a]
		t.TrainTime /= float64(counts[a])
		t.PredictionTime /= float64(counts[a])
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TrainTime != out[j].TrainTime {
			return out[i].TrainTime < out[j].TrainTime
		}
		return out[i].PredictionTime < out[j].PredictionTime
	})
	return out
}

// Times writes time/comparison.csv and .tex.
func Times(table *comparison.Table, dir string) error {
	csvTable := &Table{Header: []string{"Algorithm", "Train time [s]", "Prediction time [s]"}}
	texTable := &Table{
		Caption: "Results of time comparison",
		Label:   "tab:time_comparison",
		Header:  csvTable.Header,
	}
	for _, t := range MeanTimes(table) {
		csvTable.Append(t.Algorithm, raw(t.TrainTime), raw(t.PredictionTime))
		texTable.Append(t.Algorithm, round(t.TrainTime, 4), round(t.PredictionTime, 4))
	}
	return writePair(filepath.Join(dir, "time"), "comparison", csvTable, texTable)
}
