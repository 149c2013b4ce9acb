package data

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

type DataValidator struct{}

func NewDataValidator() *DataValidator {
	return &DataValidator{}
}

func (dv *DataValidator) ValidateDataset(X [][]float64, y []int) error {
	if len(X) == 0 {
		return fmt.Errorf("%w: dataset is empty", ErrMalformedData)
	}

	if len(X) != len(y) {
		return fmt.Errorf("%w: feature matrix and labels have different lengths: %d vs %d", ErrMalformedData, len(X), len(y))
	}

	nFeatures := len(X[0])
	if nFeatures == 0 {
		return fmt.Errorf("%w: features cannot be empty", ErrMalformedData)
	}

	for i, sample := range X {
		if len(sample) != nFeatures {
			return fmt.Errorf("%w: inconsistent feature count at sample %d: expected %d, got %d", ErrMalformedData, i, nFeatures, len(sample))
		}
	}

	return nil
}

func (dv *DataValidator) ValidateLabels(y []int) error {
	if len(y) == 0 {
		return fmt.Errorf("%w: labels are empty", ErrMalformedData)
	}

	classCount := make(map[int]int)
	for _, label := range y {
		classCount[label]++
	}

	if len(classCount) < 2 {
		return fmt.Errorf("%w: dataset must have at least 2 classes, found %d", ErrMalformedData, len(classCount))
	}

	return nil
}

type FeatureStats struct {
	Min     float64
	Max     float64
	Mean    float64
	Missing int
}

type DatasetStats struct {
	Samples           int
	Features          int
	Classes           int
	ClassDistribution map[int]int
	FeatureStats      []FeatureStats
}

// GetDatasetStats summarises a dataset, ignoring missing (NaN) cells.
func (dv *DataValidator) GetDatasetStats(X [][]float64, y []int) DatasetStats {
	stats := DatasetStats{ClassDistribution: make(map[int]int)}
	if len(X) == 0 {
		return stats
	}

	stats.Samples = len(X)
	stats.Features = len(X[0])
	for _, label := range y {
		stats.ClassDistribution[label]++
	}
	stats.Classes = len(stats.ClassDistribution)

	stats.FeatureStats = make([]FeatureStats, stats.Features)
	for j := 0; j < stats.Features; j++ {
		values := make([]float64, 0, len(X))
		for i := range X {
			if math.IsNaN(X[i][j]) {
				stats.FeatureStats[j].Missing++
				continue
			}
			values = append(values, X[i][j])
		}
		if len(values) == 0 {
			continue
		}

		fs := &stats.FeatureStats[j]
		fs.Min, fs.Max = values[0], values[0]
		for _, v := range values[1:] {
			fs.Min = math.Min(fs.Min, v)
			fs.Max = math.Max(fs.Max, v)
		}
		fs.Mean = stat.Mean(values, nil)
	}

	return stats
}
