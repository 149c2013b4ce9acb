package evaluation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrInvalidFolds = errors.New("invalid number of folds")
	ErrEmptyDataset = errors.New("cannot split empty dataset")
)

// AvailableFolds lists the supported cross-validation fold counts.
var AvailableFolds = []int{5, 10}

func ValidateFolds(nFolds int) error {
	for _, n := range AvailableFolds {
		if n == nFolds {
			return nil
		}
	}
	return fmt.Errorf("%w: %d (must be one of %v)", ErrInvalidFolds, nFolds, AvailableFolds)
}

// FoldProvider partitions a dataset into a repeatable sequence of folds.
// With balanced set it uses distribution optimally balanced stratified
// cross-validation (DOB-SCV); otherwise plain stratified k-fold.
// The seed is the only source of randomness, so equal inputs always yield
// identical folds.
type FoldProvider struct {
	nFolds   int
	balanced bool
	seed     int64
}

func NewFoldProvider(nFolds int, balanced bool, seed int64) (*FoldProvider, error) {
	if err := ValidateFolds(nFolds); err != nil {
		return nil, err
	}
	return &FoldProvider{
		nFolds:   nFolds,
		balanced: balanced,
		seed:     seed,
	}, nil
}

func (fp *FoldProvider) NFolds() int {
	return fp.nFolds
}

func (fp *FoldProvider) Split(X [][]float64, y []int) ([]Fold, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("x and y must have the same length")
	}

	if len(X) == 0 {
		return nil, ErrEmptyDataset
	}

	if fp.nFolds > len(X) {
		return nil, fmt.Errorf("%w: %d folds for %d samples", ErrInvalidFolds, fp.nFolds, len(X))
	}

	var assignment []int
	if fp.balanced {
		assignment = fp.assignDOBSCV(X, y)
	} else {
		assignment = fp.assignStratified(y)
	}

	labels := UniqueLabels(y)
	folds := make([]Fold, fp.nFolds)

	for fold := 0; fold < fp.nFolds; fold++ {
		var trainIndices, testIndices []int
		for i, assigned := range assignment {
			if assigned == fold {
				testIndices = append(testIndices, i)
			} else {
				trainIndices = append(trainIndices, i)
			}
		}

		XTrain, yTrain := selectRows(X, y, trainIndices)
		XTest, yTest := selectRows(X, y, testIndices)

		folds[fold] = Fold{
			Index:  fold + 1,
			Labels: append([]int(nil), labels...),
			XTrain: XTrain,
			YTrain: yTrain,
			XTest:  XTest,
			YTest:  yTest,
		}
	}

	return folds, nil
}

func classIndices(y []int) ([]int, map[int][]int) {
	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	return UniqueLabels(y), byClass
}

// assignStratified shuffles every class with the seeded generator and deals
// its samples round-robin; the dealing position carries over between
// classes so fold sizes differ by at most one.
func (fp *FoldProvider) assignStratified(y []int) []int {
	rng := rand.New(rand.NewSource(fp.seed))
	classes, byClass := classIndices(y)

	assignment := make([]int, len(y))
	position := 0
	for _, class := range classes {
		indices := byClass[class]
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		for _, idx := range indices {
			assignment[idx] = position % fp.nFolds
			position++
		}
	}

	return assignment
}

// assignDOBSCV picks a random unassigned sample of a class, groups it with
// its k-1 nearest unassigned neighbours of the same class and sends each
// member of the group to a different fold, until the class is exhausted.
func (fp *FoldProvider) assignDOBSCV(X [][]float64, y []int) []int {
	rng := rand.New(rand.NewSource(fp.seed))
	classes, byClass := classIndices(y)

	assignment := make([]int, len(y))
	for _, class := range classes {
		unassigned := append([]int(nil), byClass[class]...)

		for len(unassigned) > 0 {
			pick := rng.Intn(len(unassigned))
			origin := unassigned[pick]
			unassigned = append(unassigned[:pick], unassigned[pick+1:]...)
			assignment[origin] = 0

			type neighbour struct {
				index    int
				position int
				distance float64
			}

			neighbours := make([]neighbour, len(unassigned))
			for p, idx := range unassigned {
				neighbours[p] = neighbour{index: idx, position: p, distance: nanEuclidean(X[origin], X[idx])}
			}
			sort.SliceStable(neighbours, func(i, j int) bool {
				if neighbours[i].distance != neighbours[j].distance {
					return neighbours[i].distance < neighbours[j].distance
				}
				return neighbours[i].index < neighbours[j].index
			})

			take := fp.nFolds - 1
			if take > len(neighbours) {
				take = len(neighbours)
			}

			taken := make(map[int]bool, take)
			for n := 0; n < take; n++ {
				assignment[neighbours[n].index] = n + 1
				taken[neighbours[n].position] = true
			}

			remaining := unassigned[:0]
			for p, idx := range unassigned {
				if !taken[p] {
					remaining = append(remaining, idx)
				}
			}
			unassigned = remaining
		}
	}

	return assignment
}

// nanEuclidean skips coordinates that are missing in either sample.
func nanEuclidean(a, b []float64) float64 {
	if !floats.HasNaN(a) && !floats.HasNaN(b) {
		return floats.Distance(a, b, 2)
	}
	sum := 0.0
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
