package models

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

type KNN struct {
	BaseModel
	K        int
	Distance string
	XTrain   [][]float64
	yTrain   []int
}

func NewKNN(k int, distance string) *KNN {
	if k <= 0 {
		k = 5
	}

	if distance != "euclidean" && distance != "manhattan" {
		distance = "euclidean"
	}

	return &KNN{
		K:        k,
		Distance: distance,
		BaseModel: BaseModel{
			Name: "KNN",
			Params: map[string]any{
				"k":        k,
				"distance": distance,
			},
		},
	}
}

func (knn *KNN) Fit(X [][]float64, y []int, classes []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}

	knn.XTrain = make([][]float64, len(X))
	for i := range X {
		knn.XTrain[i] = append([]float64(nil), X[i]...)
	}
	knn.yTrain = append([]int(nil), y...)
	knn.setClasses(y, classes)
	return nil
}

func (knn *KNN) Predict(X [][]float64) ([]int, error) {
	if knn.XTrain == nil {
		return nil, ErrNotFitted
	}

	predictions := make([]int, len(X))
	for i, sample := range X {
		votes := make(map[int]float64)
		for _, idx := range knn.findNeighbors(sample) {
			votes[knn.yTrain[idx]]++
		}
		predictions[i] = argmaxVote(votes, knn.Classes)
	}
	return predictions, nil
}

func (knn *KNN) findNeighbors(sample []float64) []int {
	return nearest(knn.XTrain, sample, knn.K, knn.Distance)
}

// nearest returns the indices of the k rows closest to sample; ties keep the
// lower index.
func nearest(rows [][]float64, sample []float64, k int, metric string) []int {
	type neighbor struct {
		index    int
		distance float64
	}

	neighbors := make([]neighbor, len(rows))
	for i, row := range rows {
		neighbors[i] = neighbor{index: i, distance: distance(sample, row, metric)}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].distance < neighbors[j].distance
	})

	if k > len(neighbors) {
		k = len(neighbors)
	}
	indices := make([]int, k)
	for i := 0; i < k; i++ {
		indices[i] = neighbors[i].index
	}
	return indices
}

// distance skips coordinates missing in either row.
func distance(a, b []float64, metric string) float64 {
	if !floats.HasNaN(a) && !floats.HasNaN(b) {
		if metric == "manhattan" {
			return floats.Distance(a, b, 1)
		}
		return floats.Distance(a, b, 2)
	}

	sum := 0.0
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		diff := a[i] - b[i]
		if metric == "manhattan" {
			sum += math.Abs(diff)
		} else {
			sum += diff * diff
		}
	}
	if metric == "manhattan" {
		return sum
	}
	return math.Sqrt(sum)
}
