package evaluation

import (
	"fmt"

	"github.com/sylwekczmil/cacp/internal/preprocessing"
)

// Modifier derives a new fold from an existing one. Implementations must not
// mutate the fold they receive.
type Modifier interface {
	Name() string
	Modify(fold Fold) (Fold, error)
}

// Chain applies modifiers left to right, each one receiving the output of
// the previous one.
type Chain []Modifier

func (c Chain) Modify(fold Fold) (Fold, error) {
	current := fold
	for _, m := range c {
		next, err := m.Modify(current)
		if err != nil {
			return Fold{}, fmt.Errorf("modifier %s on fold %d: %w", m.Name(), fold.Index, err)
		}
		current = next
	}
	return current, nil
}

// ScalingModifier fits a scaler on train and test rows together, so both
// parts share one scale, then splits the rows back in their original order.
type ScalingModifier struct {
	scaleType string
}

// NewNormalizer scales every feature into [0, 1].
func NewNormalizer() *ScalingModifier {
	return &ScalingModifier{scaleType: "minmax"}
}

// NewStandardizer scales every feature to zero mean and unit variance.
func NewStandardizer() *ScalingModifier {
	return &ScalingModifier{scaleType: "standard"}
}

func ModifierByName(name string) (Modifier, error) {
	switch name {
	case "normalize", "normalized", "minmax":
		return NewNormalizer(), nil
	case "standardize", "standardized", "standard":
		return NewStandardizer(), nil
	default:
		return nil, fmt.Errorf("unknown fold modifier: %s", name)
	}
}

func (m *ScalingModifier) Name() string {
	return m.scaleType
}

func (m *ScalingModifier) Modify(fold Fold) (Fold, error) {
	trainLen := len(fold.XTrain)

	joined := make([][]float64, 0, trainLen+len(fold.XTest))
	joined = append(joined, fold.XTrain...)
	joined = append(joined, fold.XTest...)

	scaler := preprocessing.NewScaler(m.scaleType)
	scaled, err := scaler.FitTransform(joined)
	if err != nil {
		return Fold{}, err
	}

	return Fold{
		Index:  fold.Index,
		Labels: append([]int(nil), fold.Labels...),
		XTrain: scaled[:trainLen:trainLen],
		YTrain: append([]int(nil), fold.YTrain...),
		XTest:  scaled[trainLen:],
		YTest:  append([]int(nil), fold.YTest...),
	}, nil
}
