package models

import (
	"fmt"
	"math"
	"strconv"

	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/knn"
	"github.com/sjwhitworth/golearn/trees"
)

type golearnModel interface {
	Fit(base.FixedDataGrid) error
	Predict(base.FixedDataGrid) (base.FixedDataGrid, error)
}

// GolearnClassifier adapts a golearn classifier to the fold arrays. Train
// and test grids share the same attribute objects so golearn accepts them as
// compatible.
type GolearnClassifier struct {
	BaseModel
	newModel func() golearnModel
	model    golearnModel
	features []base.Attribute
	class    *base.CategoricalAttribute
}

func NewGolearnKNN(k int) *GolearnClassifier {
	if k <= 0 {
		k = 5
	}
	return &GolearnClassifier{
		BaseModel: BaseModel{
			Name:   "GolearnKNN",
			Params: map[string]any{"k": k},
		},
		newModel: func() golearnModel {
			return knn.NewKnnClassifier("euclidean", "linear", k)
		},
	}
}

func NewGolearnID3() *GolearnClassifier {
	return &GolearnClassifier{
		BaseModel: BaseModel{
			Name:   "GolearnID3",
			Params: map[string]any{},
		},
		newModel: func() golearnModel {
			return trees.NewID3DecisionTree(0)
		},
	}
}

func (g *GolearnClassifier) Fit(X [][]float64, y []int, classes []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	g.setClasses(y, classes)

	g.features = make([]base.Attribute, len(X[0]))
	for j := range g.features {
		g.features[j] = base.NewFloatAttribute(fmt.Sprintf("f%d", j))
	}
	g.class = new(base.CategoricalAttribute)
	g.class.SetName("class")
	for _, c := range g.Classes {
		g.class.GetSysValFromString(strconv.Itoa(c))
	}

	grid, err := g.grid(X, y)
	if err != nil {
		return err
	}

	g.model = g.newModel()
	if err := g.model.Fit(grid); err != nil {
		return fmt.Errorf("golearn fit: %w", err)
	}
	return nil
}

func (g *GolearnClassifier) Predict(X [][]float64) ([]int, error) {
	if g.model == nil {
		return nil, ErrNotFitted
	}

	grid, err := g.grid(X, nil)
	if err != nil {
		return nil, err
	}

	out, err := g.model.Predict(grid)
	if err != nil {
		return nil, fmt.Errorf("golearn predict: %w", err)
	}

	predictions := make([]int, len(X))
	for i := range predictions {
		label, err := strconv.Atoi(base.GetClass(out, i))
		if err != nil {
			return nil, fmt.Errorf("golearn predicted an unknown class: %w", err)
		}
		predictions[i] = label
	}
	return predictions, nil
}

// grid builds dense instances; without labels every row gets the first class
// as a placeholder.
func (g *GolearnClassifier) grid(X [][]float64, y []int) (*base.DenseInstances, error) {
	inst := base.NewDenseInstances()
	specs := make([]base.AttributeSpec, len(g.features))
	for j, a := range g.features {
		specs[j] = inst.AddAttribute(a)
	}
	classSpec := inst.AddAttribute(g.class)
	if err := inst.AddClassAttribute(g.class); err != nil {
		return nil, err
	}
	if err := inst.Extend(len(X)); err != nil {
		return nil, err
	}

	for i, row := range X {
		for j, v := range row {
			inst.Set(specs[j], i, base.PackFloatToBytes(missingAsZero(v)))
		}
		label := g.Classes[0]
		if y != nil {
			label = y[i]
		}
		inst.Set(classSpec, i, g.class.GetSysValFromString(strconv.Itoa(label)))
	}
	return inst, nil
}

func missingAsZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
