package data

import (
	"fmt"
	"math/rand"
)

// BlobSpec describes a synthetic dataset of gaussian clusters, one per class.
type BlobSpec struct {
	Name     string
	PerClass []int
	Features int
	// Spread is the standard deviation around each class centre; the centres
	// are drawn from [0, 10).
	Spread float64
}

// Blobs generates a seeded dataset. Rows are interleaved by class so a
// stream over the data does not see one class at a time.
func Blobs(spec BlobSpec, seed int64) (*MemoryDataset, error) {
	if len(spec.PerClass) < 2 || spec.Features < 1 {
		return nil, fmt.Errorf("%w: blobs need at least 2 classes and 1 feature", ErrMalformedData)
	}

	rng := rand.New(rand.NewSource(seed))
	spread := spec.Spread
	if spread <= 0 {
		spread = 1.5
	}

	centres := make([][]float64, len(spec.PerClass))
	for c := range centres {
		centres[c] = make([]float64, spec.Features)
		for j := range centres[c] {
			centres[c][j] = rng.Float64() * 10
		}
	}

	var X [][]float64
	var y []int
	remaining := append([]int(nil), spec.PerClass...)
	for left := sum(remaining); left > 0; left = sum(remaining) {
		for c := range remaining {
			if remaining[c] == 0 {
				continue
			}
			row := make([]float64, spec.Features)
			for j := range row {
				row[j] = centres[c][j] + rng.NormFloat64()*spread
			}
			X = append(X, row)
			y = append(y, c)
			remaining[c]--
		}
	}

	classNames := make([]string, len(spec.PerClass))
	for c := range classNames {
		classNames[c] = fmt.Sprintf("class-%d", c)
	}
	return NewMemoryDataset(spec.Name, X, y, classNames)
}

// ReferenceShapes mirrors the sizes of the iris, wisconsin and pima datasets.
func ReferenceShapes() []BlobSpec {
	return []BlobSpec{
		{Name: "iris", PerClass: []int{50, 50, 50}, Features: 4, Spread: 1.2},
		{Name: "wisconsin", PerClass: []int{444, 239}, Features: 9, Spread: 2.5},
		{Name: "pima", PerClass: []int{500, 268}, Features: 8, Spread: 3.5},
	}
}

func ReferenceDatasets(seed int64) ([]Dataset, error) {
	var datasets []Dataset
	for i, spec := range ReferenceShapes() {
		ds, err := Blobs(spec, seed+int64(i))
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
