package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/sylwekczmil/cacp/internal/evaluation"
)

var (
	ErrDatasetNotFound   = errors.New("dataset not found")
	ErrMalformedData     = errors.New("malformed dataset")
	ErrCategoricalColumn = errors.New("categorical column requires categorical_to_numerical")
)

type FoldOptions struct {
	NFolds                 int
	Balanced               bool
	CategoricalToNumerical bool
	Seed                   int64
}

func DefaultFoldOptions() FoldOptions {
	return FoldOptions{
		NFolds:                 10,
		Balanced:               true,
		CategoricalToNumerical: true,
		Seed:                   1,
	}
}

// Dataset is a named classification dataset. Folds are produced on every
// call and never cached.
type Dataset interface {
	Name() string
	Instances() int
	Features() int
	Classes() int
	Folds(ctx context.Context, opts FoldOptions) ([]evaluation.Fold, error)
}

// Describer is implemented by datasets that carry extra metadata for the
// info tables.
type Describer interface {
	Origin() string
}

// MemoryDataset holds all samples in memory. Folds come from the
// FoldProvider.
type MemoryDataset struct {
	name       string
	X          [][]float64
	y          []int
	classNames []string
}

func NewMemoryDataset(name string, X [][]float64, y []int, classNames []string) (*MemoryDataset, error) {
	validator := NewDataValidator()
	if err := validator.ValidateDataset(X, y); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	return &MemoryDataset{
		name:       name,
		X:          X,
		y:          y,
		classNames: classNames,
	}, nil
}

func (d *MemoryDataset) Name() string {
	return d.name
}

func (d *MemoryDataset) Rename(name string) {
	d.name = name
}

func (d *MemoryDataset) Instances() int {
	return len(d.X)
}

func (d *MemoryDataset) Features() int {
	if len(d.X) == 0 {
		return 0
	}
	return len(d.X[0])
}

func (d *MemoryDataset) Classes() int {
	return len(evaluation.UniqueLabels(d.y))
}

func (d *MemoryDataset) ClassNames() []string {
	return d.classNames
}

func (d *MemoryDataset) Data() ([][]float64, []int) {
	return d.X, d.y
}

func (d *MemoryDataset) Folds(ctx context.Context, opts FoldOptions) ([]evaluation.Fold, error) {
	return splitFolds(ctx, d.X, d.y, opts)
}

func splitFolds(ctx context.Context, X [][]float64, y []int, opts FoldOptions) ([]evaluation.Fold, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	provider, err := evaluation.NewFoldProvider(opts.NFolds, opts.Balanced, opts.Seed)
	if err != nil {
		return nil, err
	}
	return provider.Split(X, y)
}
