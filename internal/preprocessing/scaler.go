package preprocessing

import (
	"fmt"
	"math"
)

type Scaler struct {
	ScaleType   string
	IsFitted    bool
	FeatureMin  []float64
	FeatureMax  []float64
	FeatureMean []float64
	FeatureStd  []float64
}

func NewScaler(scaleType string) *Scaler {
	return &Scaler{
		ScaleType: scaleType,
		IsFitted:  false,
	}
}

func (s *Scaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("empty dataset")
	}

	nFeatures := len(X[0])
	s.FeatureMin = make([]float64, nFeatures)
	s.FeatureMax = make([]float64, nFeatures)
	s.FeatureMean = make([]float64, nFeatures)
	s.FeatureStd = make([]float64, nFeatures)

	switch s.ScaleType {
	case "minmax", "normalized":
		s.fitMinMax(X)
	case "standard", "standardized":
		s.fitStandard(X)
	case "raw", "none":
	default:
		return fmt.Errorf("unknown scale type: %s", s.ScaleType)
	}

	s.IsFitted = true
	return nil
}

// Transform returns a scaled copy of X; X itself is left untouched.
func (s *Scaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.IsFitted {
		return nil, fmt.Errorf("scaler must be fitted before transform")
	}

	result := make([][]float64, len(X))
	for i := range X {
		result[i] = make([]float64, len(X[i]))
		for j, v := range X[i] {
			switch s.ScaleType {
			case "minmax", "normalized":
				result[i][j] = s.transformMinMax(v, j)
			case "standard", "standardized":
				result[i][j] = s.transformStandard(v, j)
			default:
				result[i][j] = v
			}
		}
	}

	return result, nil
}

func (s *Scaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// NaN cells are ignored when collecting statistics and stay NaN after scaling.
func (s *Scaler) fitMinMax(X [][]float64) {
	for j := range s.FeatureMin {
		s.FeatureMin[j] = math.Inf(1)
		s.FeatureMax[j] = math.Inf(-1)

		for i := range X {
			v := X[i][j]
			if math.IsNaN(v) {
				continue
			}
			if v < s.FeatureMin[j] {
				s.FeatureMin[j] = v
			}
			if v > s.FeatureMax[j] {
				s.FeatureMax[j] = v
			}
		}

		if math.IsInf(s.FeatureMin[j], 1) {
			s.FeatureMin[j] = 0
			s.FeatureMax[j] = 0
		}
	}
}

func (s *Scaler) fitStandard(X [][]float64) {
	for j := range s.FeatureMean {
		sum, n := 0.0, 0
		for i := range X {
			if !math.IsNaN(X[i][j]) {
				sum += X[i][j]
				n++
			}
		}
		if n > 0 {
			s.FeatureMean[j] = sum / float64(n)
		}

		variance := 0.0
		for i := range X {
			if !math.IsNaN(X[i][j]) {
				diff := X[i][j] - s.FeatureMean[j]
				variance += diff * diff
			}
		}
		if n > 0 {
			variance /= float64(n)
		}

		s.FeatureStd[j] = math.Sqrt(variance)
		if s.FeatureStd[j] == 0 {
			s.FeatureStd[j] = 1
		}
	}
}

func (s *Scaler) transformMinMax(value float64, featureIndex int) float64 {
	if math.IsNaN(value) {
		return value
	}
	span := s.FeatureMax[featureIndex] - s.FeatureMin[featureIndex]
	if span == 0 {
		return 0
	}
	scaled := (value - s.FeatureMin[featureIndex]) / span
	// guard against rounding just outside the unit interval
	return math.Min(1, math.Max(0, scaled))
}

func (s *Scaler) transformStandard(value float64, featureIndex int) float64 {
	return (value - s.FeatureMean[featureIndex]) / s.FeatureStd[featureIndex]
}
