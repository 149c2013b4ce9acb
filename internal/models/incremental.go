package models

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// OnlineGaussianNB keeps running per-class means and variances (Welford).
type OnlineGaussianNB struct {
	BaseModel
	counts map[int]float64
	means  map[int][]float64
	m2     map[int][]float64
	seen   map[int][]float64
	total  float64
}

func NewOnlineGaussianNB() *OnlineGaussianNB {
	return &OnlineGaussianNB{
		BaseModel: BaseModel{Name: "OnlineGaussianNB", Params: map[string]any{}},
		counts:    make(map[int]float64),
		means:     make(map[int][]float64),
		m2:        make(map[int][]float64),
		seen:      make(map[int][]float64),
	}
}

func (nb *OnlineGaussianNB) LearnOne(x []float64, y int) error {
	if _, ok := nb.counts[y]; !ok {
		nb.means[y] = make([]float64, len(x))
		nb.m2[y] = make([]float64, len(x))
		nb.seen[y] = make([]float64, len(x))
		nb.Classes = insertSorted(nb.Classes, y)
	}
	nb.counts[y]++
	nb.total++

	for j, v := range x {
		if math.IsNaN(v) {
			continue
		}
		nb.seen[y][j]++
		delta := v - nb.means[y][j]
		nb.means[y][j] += delta / nb.seen[y][j]
		nb.m2[y][j] += delta * (v - nb.means[y][j])
	}
	return nil
}

func (nb *OnlineGaussianNB) PredictProbaOne(x []float64) (map[int]float64, error) {
	if nb.total == 0 {
		return nil, ErrNotFitted
	}

	logProbs := make([]float64, len(nb.Classes))
	for k, class := range nb.Classes {
		logProb := math.Log(nb.counts[class] / nb.total)
		for j, v := range x {
			if math.IsNaN(v) || nb.seen[class][j] == 0 {
				continue
			}
			// a single observation has no spread yet
			variance := 1.0
			if nb.seen[class][j] > 1 {
				variance = nb.m2[class][j]/nb.seen[class][j] + 1e-9
			}
			logProb += logGaussianPDF(v, nb.means[class][j], variance)
		}
		logProbs[k] = logProb
	}

	proba := make(map[int]float64, len(nb.Classes))
	for k, p := range softmax(logProbs) {
		proba[nb.Classes[k]] = p
	}
	return proba, nil
}

func (nb *OnlineGaussianNB) PredictOne(x []float64) (int, error) {
	proba, err := nb.PredictProbaOne(x)
	if err != nil {
		return 0, err
	}
	return argmaxVote(proba, nb.Classes), nil
}

// WindowKNN votes among the k nearest of the last Window learned samples.
type WindowKNN struct {
	BaseModel
	K      int
	Window int
	rows   [][]float64
	labels []int
	next   int
}

func NewWindowKNN(k, window int) *WindowKNN {
	if k <= 0 {
		k = 5
	}
	if window <= 0 {
		window = 200
	}
	return &WindowKNN{
		K:      k,
		Window: window,
		BaseModel: BaseModel{
			Name:   "WindowKNN",
			Params: map[string]any{"k": k, "window": window},
		},
	}
}

func (w *WindowKNN) LearnOne(x []float64, y int) error {
	row := append([]float64(nil), x...)
	if len(w.rows) < w.Window {
		w.rows = append(w.rows, row)
		w.labels = append(w.labels, y)
	} else {
		w.rows[w.next] = row
		w.labels[w.next] = y
		w.next = (w.next + 1) % w.Window
	}
	w.Classes = insertSorted(w.Classes, y)
	return nil
}

func (w *WindowKNN) PredictProbaOne(x []float64) (map[int]float64, error) {
	if len(w.rows) == 0 {
		return nil, ErrNotFitted
	}

	neighbors := nearest(w.rows, x, w.K, "euclidean")
	proba := make(map[int]float64, len(w.Classes))
	for _, class := range w.Classes {
		proba[class] = 0
	}
	for _, idx := range neighbors {
		proba[w.labels[idx]] += 1 / float64(len(neighbors))
	}
	return proba, nil
}

func (w *WindowKNN) PredictOne(x []float64) (int, error) {
	proba, err := w.PredictProbaOne(x)
	if err != nil {
		return 0, err
	}
	return argmaxVote(proba, w.Classes), nil
}

// Majority predicts the most frequent label seen so far.
type Majority struct {
	BaseModel
	counts map[int]float64
}

func NewMajority() *Majority {
	return &Majority{
		BaseModel: BaseModel{Name: "Majority", Params: map[string]any{}},
		counts:    make(map[int]float64),
	}
}

func (m *Majority) LearnOne(_ []float64, y int) error {
	m.counts[y]++
	m.Classes = insertSorted(m.Classes, y)
	return nil
}

func (m *Majority) PredictOne(_ []float64) (int, error) {
	if len(m.Classes) == 0 {
		return 0, ErrNotFitted
	}
	return argmaxVote(m.counts, m.Classes), nil
}

// NoChange predicts the label of the previous sample.
type NoChange struct {
	BaseModel
	last    int
	learned bool
}

func NewNoChange() *NoChange {
	return &NoChange{BaseModel: BaseModel{Name: "NoChange", Params: map[string]any{}}}
}

func (n *NoChange) LearnOne(_ []float64, y int) error {
	n.last = y
	n.learned = true
	return nil
}

func (n *NoChange) PredictOne(_ []float64) (int, error) {
	if !n.learned {
		return 0, ErrNotFitted
	}
	return n.last, nil
}

// Perceptron is a multiclass perceptron with one weight vector per seen
// class.
type Perceptron struct {
	BaseModel
	LearningRate float64
	weights      map[int][]float64
}

func NewPerceptron(learningRate float64) *Perceptron {
	if learningRate <= 0 {
		learningRate = 0.1
	}
	return &Perceptron{
		LearningRate: learningRate,
		weights:      make(map[int][]float64),
		BaseModel: BaseModel{
			Name:   "Perceptron",
			Params: map[string]any{"learning_rate": learningRate},
		},
	}
}

func (p *Perceptron) LearnOne(x []float64, y int) error {
	if _, ok := p.weights[y]; !ok {
		p.weights[y] = make([]float64, len(x)+1)
		p.Classes = insertSorted(p.Classes, y)
	}

	predicted, err := p.PredictOne(x)
	if err != nil || predicted == y {
		return nil
	}

	xa := withBias(x)
	floats.AddScaled(p.weights[y], p.LearningRate, xa)
	floats.AddScaled(p.weights[predicted], -p.LearningRate, xa)
	return nil
}

func (p *Perceptron) PredictOne(x []float64) (int, error) {
	if len(p.Classes) == 0 {
		return 0, ErrNotFitted
	}

	xa := withBias(x)
	scores := make(map[int]float64, len(p.Classes))
	for _, class := range p.Classes {
		scores[class] = floats.Dot(p.weights[class], xa)
	}
	return argmaxVote(scores, p.Classes), nil
}

// withBias returns x without missing values and with a trailing 1 for the
// bias weight.
func withBias(x []float64) []float64 {
	return append(dense(x), 1)
}

func insertSorted(classes []int, y int) []int {
	for i, c := range classes {
		if c == y {
			return classes
		}
		if c > y {
			classes = append(classes, 0)
			copy(classes[i+1:], classes[i:])
			classes[i] = y
			return classes
		}
	}
	return append(classes, y)
}
