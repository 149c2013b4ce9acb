package models

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LinearSVC trains one hinge-loss linear model per pair of classes
// (one-vs-one) with the Pegasos stochastic sub-gradient method and predicts
// by majority vote, the lower label winning ties. Features are standardized
// with the training statistics and missing values are treated as the mean.
type LinearSVC struct {
	BaseModel
	Lambda float64
	Epochs int
	Seed   int64
	pairs  []svcPair
	mean   []float64
	scale  []float64
}

// svcPair separates negative (score <= 0) from positive (score > 0).
type svcPair struct {
	negative, positive int
	weights            []float64
	bias               float64
}

func NewLinearSVC(lambda float64, epochs int, seed int64) *LinearSVC {
	if lambda <= 0 {
		lambda = 1e-3
	}
	if epochs <= 0 {
		epochs = 20
	}
	return &LinearSVC{
		Lambda: lambda,
		Epochs: epochs,
		Seed:   seed,
		BaseModel: BaseModel{
			Name: "LinearSVC",
			Params: map[string]any{
				"lambda": lambda,
				"epochs": epochs,
			},
		},
	}
}

func (svc *LinearSVC) Fit(X [][]float64, y []int, classes []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	svc.Classes = ExtractClasses(y)

	svc.fitScaling(X)
	rows := make([][]float64, len(X))
	for i, sample := range X {
		rows[i] = svc.transform(sample)
	}

	svc.pairs = make([]svcPair, 0, len(svc.Classes)*(len(svc.Classes)-1)/2)
	for a := 0; a < len(svc.Classes); a++ {
		for b := a + 1; b < len(svc.Classes); b++ {
			negative, positive := svc.Classes[a], svc.Classes[b]
			var pairX [][]float64
			var targets []float64
			for i, label := range y {
				switch label {
				case negative:
					pairX = append(pairX, rows[i])
					targets = append(targets, -1)
				case positive:
					pairX = append(pairX, rows[i])
					targets = append(targets, 1)
				}
			}
			seed := svc.Seed + int64(len(svc.pairs))
			w, bias := svc.pegasos(pairX, targets, seed)
			svc.pairs = append(svc.pairs, svcPair{negative: negative, positive: positive, weights: w, bias: bias})
		}
	}
	return nil
}

func (svc *LinearSVC) pegasos(X [][]float64, targets []float64, seed int64) ([]float64, float64) {
	r := rand.New(rand.NewSource(seed))
	nFeatures := len(X[0])
	// last weight is the bias, regularized like the others
	w := make([]float64, nFeatures+1)
	limit := 1 / math.Sqrt(svc.Lambda)

	// the returned model averages the iterates of the second half
	avg := make([]float64, nFeatures+1)
	averaged := 0

	iterations := svc.Epochs * len(X)
	for t := 1; t <= iterations; t++ {
		i := r.Intn(len(X))
		target := targets[i]

		eta := 1 / (svc.Lambda * float64(t))
		margin := target * (floats.Dot(w[:nFeatures], X[i]) + w[nFeatures])

		floats.Scale(1-eta*svc.Lambda, w)
		if margin < 1 {
			floats.AddScaled(w[:nFeatures], eta*target, X[i])
			w[nFeatures] += eta * target
		}

		// project onto the ball of radius 1/sqrt(lambda)
		if norm := floats.Norm(w, 2); norm > limit {
			floats.Scale(limit/norm, w)
		}

		if 2*t > iterations {
			floats.Add(avg, w)
			averaged++
		}
	}
	floats.Scale(1/float64(averaged), avg)
	return avg[:nFeatures], avg[nFeatures]
}

// fitScaling records the per-feature mean and standard deviation of X,
// ignoring missing values. Constant features keep a scale of 1.
func (svc *LinearSVC) fitScaling(X [][]float64) {
	nFeatures := len(X[0])
	svc.mean = make([]float64, nFeatures)
	svc.scale = make([]float64, nFeatures)
	column := make([]float64, 0, len(X))
	for j := 0; j < nFeatures; j++ {
		column = column[:0]
		for _, row := range X {
			if !math.IsNaN(row[j]) {
				column = append(column, row[j])
			}
		}
		svc.scale[j] = 1
		if len(column) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(column, nil)
		svc.mean[j] = mean
		if std > 0 && !math.IsNaN(std) {
			svc.scale[j] = std
		}
	}
}

// transform standardizes a sample; missing values become 0, the mean.
func (svc *LinearSVC) transform(sample []float64) []float64 {
	out := make([]float64, len(sample))
	for j, v := range sample {
		if !math.IsNaN(v) {
			out[j] = (v - svc.mean[j]) / svc.scale[j]
		}
	}
	return out
}

// dense copies a sample with missing values replaced by 0.
func dense(sample []float64) []float64 {
	out := make([]float64, len(sample))
	for j, v := range sample {
		if !math.IsNaN(v) {
			out[j] = v
		}
	}
	return out
}

func (svc *LinearSVC) Predict(X [][]float64) ([]int, error) {
	if svc.pairs == nil {
		return nil, ErrNotFitted
	}

	predictions := make([]int, len(X))
	for i, sample := range X {
		if len(svc.Classes) == 1 {
			predictions[i] = svc.Classes[0]
			continue
		}
		x := svc.transform(sample)
		votes := make(map[int]float64, len(svc.Classes))
		for _, p := range svc.pairs {
			if floats.Dot(p.weights, x)+p.bias > 0 {
				votes[p.positive]++
			} else {
				votes[p.negative]++
			}
		}
		predictions[i] = argmaxVote(votes, svc.Classes)
	}
	return predictions, nil
}
