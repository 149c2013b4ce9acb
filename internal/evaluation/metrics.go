package evaluation

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnknownLabel    = errors.New("label outside the closed label set")
	ErrUndefinedMetric = errors.New("metric is undefined for the given labels")
	ErrLengthMismatch  = errors.New("y_true and y_pred have different lengths")
)

// MetricFunc scores a whole fold of predictions against the closed label set.
type MetricFunc func(yTrue, yPred, labels []int) (float64, error)

type Metric struct {
	Name string
	Func MetricFunc
}

type ConfusionMatrix struct {
	Labels []int
	Counts [][]int
	Total  int
	index  map[int]int
}

func NewConfusionMatrix(labels []int) *ConfusionMatrix {
	numClasses := len(labels)
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}

	classToIdx := make(map[int]int, numClasses)
	for i, class := range labels {
		classToIdx[class] = i
	}

	return &ConfusionMatrix{
		Labels: append([]int(nil), labels...),
		Counts: matrix,
		index:  classToIdx,
	}
}

func BuildConfusionMatrix(yTrue, yPred, labels []int) (*ConfusionMatrix, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(yTrue), len(yPred))
	}

	cm := NewConfusionMatrix(labels)
	for i := range yTrue {
		if err := cm.Add(yTrue[i], yPred[i]); err != nil {
			return nil, err
		}
	}
	return cm, nil
}

func (cm *ConfusionMatrix) Add(yTrue, yPred int) error {
	trueIdx, ok := cm.index[yTrue]
	if !ok {
		return fmt.Errorf("%w: true label %d not in %v", ErrUnknownLabel, yTrue, cm.Labels)
	}
	predIdx, ok := cm.index[yPred]
	if !ok {
		return fmt.Errorf("%w: predicted label %d not in %v", ErrUnknownLabel, yPred, cm.Labels)
	}
	cm.Counts[trueIdx][predIdx]++
	cm.Total++
	return nil
}

func (cm *ConfusionMatrix) Accuracy() float64 {
	correct := 0
	for i := range cm.Counts {
		correct += cm.Counts[i][i]
	}
	return safeDivide(float64(correct), float64(cm.Total))
}

type classStats struct {
	precision float64
	recall    float64
	f1        float64
	support   int
}

func (cm *ConfusionMatrix) perClass() []classStats {
	stats := make([]classStats, len(cm.Labels))

	for i := range cm.Labels {
		tp := cm.Counts[i][i]
		fp := 0
		fn := 0

		for j := range cm.Labels {
			if j != i {
				fp += cm.Counts[j][i]
				fn += cm.Counts[i][j]
			}
		}

		precision := safeDivide(float64(tp), float64(tp+fp))
		recall := safeDivide(float64(tp), float64(tp+fn))
		stats[i] = classStats{
			precision: precision,
			recall:    recall,
			f1:        safeDivide(2*precision*recall, precision+recall),
			support:   tp + fn,
		}
	}

	return stats
}

// weighted averages a per-class value by the number of true samples of each
// class. Classes without support contribute nothing.
func (cm *ConfusionMatrix) weighted(value func(classStats) float64) float64 {
	total := 0
	sum := 0.0
	for _, s := range cm.perClass() {
		sum += value(s) * float64(s.support)
		total += s.support
	}
	return safeDivide(sum, float64(total))
}

func (cm *ConfusionMatrix) WeightedPrecision() float64 {
	return cm.weighted(func(s classStats) float64 { return s.precision })
}

func (cm *ConfusionMatrix) WeightedRecall() float64 {
	return cm.weighted(func(s classStats) float64 { return s.recall })
}

func (cm *ConfusionMatrix) WeightedF1() float64 {
	return cm.weighted(func(s classStats) float64 { return s.f1 })
}

// MCC is the multiclass Matthews correlation coefficient.
func (cm *ConfusionMatrix) MCC() float64 {
	n := len(cm.Labels)
	predicted := make([]float64, n)
	actual := make([]float64, n)
	correct := 0.0

	for i := 0; i < n; i++ {
		correct += float64(cm.Counts[i][i])
		for j := 0; j < n; j++ {
			actual[i] += float64(cm.Counts[i][j])
			predicted[j] += float64(cm.Counts[i][j])
		}
	}

	samples := float64(cm.Total)
	covYtYp := correct*samples
	covYpYp := samples * samples
	covYtYt := samples * samples
	for k := 0; k < n; k++ {
		covYtYp -= predicted[k] * actual[k]
		covYpYp -= predicted[k] * predicted[k]
		covYtYt -= actual[k] * actual[k]
	}

	return safeDivide(covYtYp, math.Sqrt(covYtYt*covYpYp))
}

func fromConfusion(score func(*ConfusionMatrix) float64) MetricFunc {
	return func(yTrue, yPred, labels []int) (float64, error) {
		cm, err := BuildConfusionMatrix(yTrue, yPred, labels)
		if err != nil {
			return 0, err
		}
		return score(cm), nil
	}
}

var (
	Accuracy  = fromConfusion((*ConfusionMatrix).Accuracy)
	Precision = fromConfusion((*ConfusionMatrix).WeightedPrecision)
	Recall    = fromConfusion((*ConfusionMatrix).WeightedRecall)
	F1        = fromConfusion((*ConfusionMatrix).WeightedF1)
	MCC       = fromConfusion((*ConfusionMatrix).MCC)
)

// AUC binarizes the predicted labels over the closed label set and averages
// the one-vs-one ROC AUC of every class pair weighted by pair prevalence.
func AUC(yTrue, yPred, labels []int) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(yTrue), len(yPred))
	}

	index := make(map[int]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}

	scores := make([][]float64, len(yPred))
	for i, pred := range yPred {
		idx, ok := index[pred]
		if !ok {
			return 0, fmt.Errorf("%w: predicted label %d not in %v", ErrUnknownLabel, pred, labels)
		}
		scores[i] = make([]float64, len(labels))
		scores[i][idx] = 1
	}

	return OneVsOneAUC(yTrue, scores, labels)
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0.0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0.0
	}
	return result
}
