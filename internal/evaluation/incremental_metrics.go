package evaluation

import (
	"fmt"
	"math"
)

// Prediction is what an online classifier returned for one sample. Proba is
// nil for discrete classifiers.
type Prediction struct {
	Label int
	Proba map[int]float64
}

// Accumulator is a running metric updated one sample at a time. Values are
// computed with the same formulas as the batch metrics so both kinds of
// results can be compared.
type Accumulator interface {
	Update(yTrue int, pred Prediction) error
	Value() float64
	// RequiresLabels reports whether the accumulator scores hard labels. The
	// runner queries probabilities from probabilistic classifiers only for
	// accumulators that return false.
	RequiresLabels() bool
}

type IncrementalMetric struct {
	Name string
	New  func(labels []int) Accumulator
}

type confusionAccumulator struct {
	cm    *ConfusionMatrix
	score func(*ConfusionMatrix) float64
}

func newConfusionAccumulator(score func(*ConfusionMatrix) float64) func([]int) Accumulator {
	return func(labels []int) Accumulator {
		return &confusionAccumulator{cm: NewConfusionMatrix(labels), score: score}
	}
}

func (a *confusionAccumulator) Update(yTrue int, pred Prediction) error {
	return a.cm.Add(yTrue, pred.Label)
}

func (a *confusionAccumulator) Value() float64 {
	return a.score(a.cm)
}

func (a *confusionAccumulator) RequiresLabels() bool {
	return true
}

const aucBins = 1000

// aucAccumulator keeps, per true class and per scored class, a histogram of
// scores. Scores of 0 and 1 fall into the outer bins, so discrete predictions
// give the same value as the batch one-vs-one AUC.
type aucAccumulator struct {
	labels []int
	index  map[int]int
	counts []int
	hist   [][][]int
}

func newAUCAccumulator(labels []int) Accumulator {
	index := make(map[int]int, len(labels))
	hist := make([][][]int, len(labels))
	for i, label := range labels {
		index[label] = i
		hist[i] = make([][]int, len(labels))
		for c := range hist[i] {
			hist[i][c] = make([]int, aucBins)
		}
	}
	return &aucAccumulator{
		labels: append([]int(nil), labels...),
		index:  index,
		counts: make([]int, len(labels)),
		hist:   hist,
	}
}

func (a *aucAccumulator) Update(yTrue int, pred Prediction) error {
	t, ok := a.index[yTrue]
	if !ok {
		return fmt.Errorf("%w: true label %d not in %v", ErrUnknownLabel, yTrue, a.labels)
	}

	scores := make([]float64, len(a.labels))
	if pred.Proba != nil {
		for label, p := range pred.Proba {
			if c, ok := a.index[label]; ok {
				scores[c] = p
			}
		}
	} else {
		c, ok := a.index[pred.Label]
		if !ok {
			return fmt.Errorf("%w: predicted label %d not in %v", ErrUnknownLabel, pred.Label, a.labels)
		}
		scores[c] = 1
	}

	a.counts[t]++
	for c, s := range scores {
		a.hist[t][c][bin(s)]++
	}
	return nil
}

func bin(score float64) int {
	if math.IsNaN(score) || score <= 0 {
		return 0
	}
	b := int(score * aucBins)
	if b >= aucBins {
		return aucBins - 1
	}
	return b
}

func (a *aucAccumulator) Value() float64 {
	total := 0.0
	weightSum := 0.0
	for x := 0; x < len(a.labels); x++ {
		for y := x + 1; y < len(a.labels); y++ {
			if a.counts[x] == 0 || a.counts[y] == 0 {
				continue
			}
			aucX := histogramAUC(a.hist[x][x], a.hist[y][x], a.counts[x], a.counts[y])
			aucY := histogramAUC(a.hist[y][y], a.hist[x][y], a.counts[y], a.counts[x])
			weight := float64(a.counts[x] + a.counts[y])
			total += weight * (aucX + aucY) / 2
			weightSum += weight
		}
	}
	return safeDivide(total, weightSum)
}

func (a *aucAccumulator) RequiresLabels() bool {
	return false
}

func histogramAUC(positive, negative []int, nPos, nNeg int) float64 {
	below := 0
	sum := 0.0
	for b := range positive {
		sum += float64(positive[b]) * (float64(below) + float64(negative[b])/2)
		below += negative[b]
	}
	return sum / (float64(nPos) * float64(nNeg))
}
