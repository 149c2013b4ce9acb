package evaluation

import (
	"sort"
)

// Fold is one train/test partition of a dataset. Index is 1-based. Labels is
// the sorted set of distinct labels over train and test and is the closed
// label set handed to metrics.
type Fold struct {
	Index  int
	Labels []int
	XTrain [][]float64
	YTrain []int
	XTest  [][]float64
	YTest  []int
}

func (f Fold) NFeatures() int {
	if len(f.XTrain) > 0 {
		return len(f.XTrain[0])
	}
	if len(f.XTest) > 0 {
		return len(f.XTest[0])
	}
	return 0
}

func (f Fold) Size() int {
	return len(f.YTrain) + len(f.YTest)
}

// Clone deep-copies the fold so modifiers can build on it without touching
// the original arrays.
func (f Fold) Clone() Fold {
	return Fold{
		Index:  f.Index,
		Labels: append([]int(nil), f.Labels...),
		XTrain: copyMatrix(f.XTrain),
		YTrain: append([]int(nil), f.YTrain...),
		XTest:  copyMatrix(f.XTest),
		YTest:  append([]int(nil), f.YTest...),
	}
}

// DistinctTrainClasses counts the classes present in the training part.
func (f Fold) DistinctTrainClasses() int {
	return len(UniqueLabels(f.YTrain))
}

// UniqueLabels returns the sorted distinct values of every given slice.
func UniqueLabels(ys ...[]int) []int {
	seen := make(map[int]bool)
	for _, y := range ys {
		for _, label := range y {
			seen[label] = true
		}
	}

	labels := make([]int, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Ints(labels)
	return labels
}

func copyMatrix(X [][]float64) [][]float64 {
	if X == nil {
		return nil
	}
	out := make([][]float64, len(X))
	for i := range X {
		out[i] = append([]float64(nil), X[i]...)
	}
	return out
}

func selectRows(X [][]float64, y []int, indices []int) ([][]float64, []int) {
	selectedX := make([][]float64, len(indices))
	selectedY := make([]int, len(indices))
	for i, idx := range indices {
		selectedX[i] = append([]float64(nil), X[idx]...)
		selectedY[i] = y[idx]
	}
	return selectedX, selectedY
}
