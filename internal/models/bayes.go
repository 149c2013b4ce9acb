package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// NaiveBayes is a Gaussian naive Bayes classifier. Missing feature values
// are left out of both the fit and the likelihood.
type NaiveBayes struct {
	BaseModel
	ClassLogPriors map[int]float64
	FeatureMeans   map[int][]float64
	FeatureVars    map[int][]float64
	VarSmoothing   float64
}

func NewNaiveBayes(varSmoothing float64) *NaiveBayes {
	if varSmoothing <= 0 {
		varSmoothing = 1e-9
	}
	return &NaiveBayes{
		VarSmoothing: varSmoothing,
		BaseModel: BaseModel{
			Name: "NaiveBayes",
			Params: map[string]any{
				"var_smoothing": varSmoothing,
			},
		},
	}
}

func (nb *NaiveBayes) Fit(X [][]float64, y []int, classes []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	nb.Classes = ExtractClasses(y)
	nFeatures := len(X[0])

	// variances get a floor proportional to the largest feature variance
	epsilon := 0.0
	for j := 0; j < nFeatures; j++ {
		epsilon = math.Max(epsilon, columnVariance(X, nil, j))
	}
	epsilon = nb.VarSmoothing * math.Max(epsilon, 1)

	nb.ClassLogPriors = make(map[int]float64)
	nb.FeatureMeans = make(map[int][]float64)
	nb.FeatureVars = make(map[int][]float64)

	for _, class := range nb.Classes {
		var rows []int
		for i, label := range y {
			if label == class {
				rows = append(rows, i)
			}
		}
		if len(rows) == 0 {
			return fmt.Errorf("class %d has no samples", class)
		}

		nb.ClassLogPriors[class] = math.Log(float64(len(rows)) / float64(len(y)))
		nb.FeatureMeans[class] = make([]float64, nFeatures)
		nb.FeatureVars[class] = make([]float64, nFeatures)

		for j := 0; j < nFeatures; j++ {
			values := column(X, rows, j)
			if len(values) > 0 {
				nb.FeatureMeans[class][j] = stat.Mean(values, nil)
			}
			nb.FeatureVars[class][j] = columnVariance(X, rows, j) + epsilon
		}
	}

	return nil
}

// column collects the non-missing values of feature j over rows (all rows
// when rows is nil).
func column(X [][]float64, rows []int, j int) []float64 {
	var values []float64
	if rows == nil {
		for i := range X {
			if !math.IsNaN(X[i][j]) {
				values = append(values, X[i][j])
			}
		}
		return values
	}
	for _, i := range rows {
		if !math.IsNaN(X[i][j]) {
			values = append(values, X[i][j])
		}
	}
	return values
}

// columnVariance is the population variance of feature j.
func columnVariance(X [][]float64, rows []int, j int) float64 {
	values := column(X, rows, j)
	if len(values) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(values, nil)
	return variance
}

func logGaussianPDF(x, mean, variance float64) float64 {
	diff := x - mean
	return -0.5*math.Log(2*math.Pi*variance) - (diff*diff)/(2*variance)
}

func (nb *NaiveBayes) jointLogLikelihood(sample []float64) []float64 {
	logProbs := make([]float64, len(nb.Classes))
	for k, class := range nb.Classes {
		logProb := nb.ClassLogPriors[class]
		for j, feature := range sample {
			if math.IsNaN(feature) {
				continue
			}
			logProb += logGaussianPDF(feature, nb.FeatureMeans[class][j], nb.FeatureVars[class][j])
		}
		logProbs[k] = logProb
	}
	return logProbs
}

func (nb *NaiveBayes) Predict(X [][]float64) ([]int, error) {
	if nb.ClassLogPriors == nil {
		return nil, ErrNotFitted
	}

	predictions := make([]int, len(X))
	for i, sample := range X {
		logProbs := nb.jointLogLikelihood(sample)
		best := 0
		for k := range logProbs {
			if logProbs[k] > logProbs[best] {
				best = k
			}
		}
		predictions[i] = nb.Classes[best]
	}
	return predictions, nil
}

func (nb *NaiveBayes) PredictProba(X [][]float64) ([][]float64, error) {
	if nb.ClassLogPriors == nil {
		return nil, ErrNotFitted
	}

	proba := make([][]float64, len(X))
	for i, sample := range X {
		proba[i] = softmax(nb.jointLogLikelihood(sample))
	}
	return proba, nil
}

func softmax(logProbs []float64) []float64 {
	maxLogProb := logProbs[0]
	for _, lp := range logProbs[1:] {
		if lp > maxLogProb {
			maxLogProb = lp
		}
	}

	sumExp := 0.0
	for _, lp := range logProbs {
		sumExp += math.Exp(lp - maxLogProb)
	}

	out := make([]float64, len(logProbs))
	for j, lp := range logProbs {
		out[j] = math.Exp(lp-maxLogProb) / sumExp
	}
	return out
}
