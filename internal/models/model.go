package models

import (
	"errors"
	"sort"
)

var (
	ErrNotFitted         = errors.New("model is not fitted")
	ErrEmptyTrainingSet  = errors.New("empty training set")
	ErrUnknownClassifier = errors.New("unknown classifier")
	ErrInvalidParams     = errors.New("invalid classifier parameters")
)

// Classifier is trained on a whole fold at once. classes is the closed label
// set of the fold when the descriptor declares AcceptsClasses, nil otherwise.
type Classifier interface {
	Fit(X [][]float64, y []int, classes []int) error
	Predict(X [][]float64) ([]int, error)
}

// IncrementalClassifier learns from one sample at a time. PredictOne returns
// ErrNotFitted until the first sample has been learned.
type IncrementalClassifier interface {
	LearnOne(x []float64, y int) error
	PredictOne(x []float64) (int, error)
}

// ProbabilisticClassifier is implemented by incremental classifiers that can
// score every known class.
type ProbabilisticClassifier interface {
	PredictProbaOne(x []float64) (map[int]float64, error)
}

type BaseModel struct {
	Name    string
	Params  map[string]any
	Classes []int
}

func (bm *BaseModel) GetClasses() []int {
	return bm.Classes
}

// setClasses keeps the declared label set when given, otherwise the labels
// seen in y.
func (bm *BaseModel) setClasses(y []int, classes []int) {
	if len(classes) > 0 {
		bm.Classes = append([]int(nil), classes...)
		sort.Ints(bm.Classes)
		return
	}
	bm.Classes = ExtractClasses(y)
}

// ExtractClasses returns the sorted distinct labels of y.
func ExtractClasses(y []int) []int {
	classMap := make(map[int]bool)
	for _, label := range y {
		classMap[label] = true
	}

	classes := make([]int, 0, len(classMap))
	for class := range classMap {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	return classes
}

// argmaxVote picks the class with the most votes, the smallest label on ties.
func argmaxVote(votes map[int]float64, classes []int) int {
	best := classes[0]
	bestVotes := votes[best]
	for _, class := range classes[1:] {
		if v := votes[class]; v > bestVotes {
			best = class
			bestVotes = v
		}
	}
	return best
}

func checkTrainingSet(X [][]float64, y []int) error {
	if len(X) == 0 || len(X) != len(y) {
		return ErrEmptyTrainingSet
	}
	return nil
}
