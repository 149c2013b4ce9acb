package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaults(t *testing.T) {
	d, err := Resolve("RF", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "RF", d.Name)
	assert.Equal(t, Batch, d.Kind)
	assert.True(t, d.AcceptsClasses)
	assert.Equal(t, 10, d.Params["n_trees"])
	assert.Equal(t, 5, d.Params["max_depth"])

	clf, err := d.NewBatch(4, 3, 1)
	require.NoError(t, err)
	forest, ok := clf.(*RandomForest)
	require.True(t, ok)
	assert.Equal(t, 10, forest.NTrees)
}

// Test YAML numbers decode as int or float64 and both are accepted
func TestResolveParams(t *testing.T) {
	d, err := Resolve("decision_tree", "DT depth 3", map[string]any{"max_depth": 3.0, "min_samples_split": 4})
	require.NoError(t, err)
	assert.Equal(t, "DT depth 3", d.Name)

	clf, err := d.NewBatch(2, 2, 9)
	require.NoError(t, err)
	tree := clf.(*DecisionTree)
	assert.Equal(t, 3, tree.MaxDepth)
	assert.Equal(t, 4, tree.MinSamplesSplit)
	assert.Equal(t, int64(9), tree.Seed)

	d, err = Resolve("svc", "", map[string]any{"lambda": 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Params["lambda"])
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   error
	}{
		{"xgboost", nil, ErrUnknownClassifier},
		{"knn", map[string]any{"neighbours": 3}, ErrInvalidParams},
		{"knn", map[string]any{"k": 2.5}, ErrInvalidParams},
		{"knn", map[string]any{"distance": 1}, ErrInvalidParams},
		{"perceptron", map[string]any{"learning_rate": "fast"}, ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.name, "", tt.params)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

// Test every catalog entry builds a working model of its declared kind
func TestCatalogFactories(t *testing.T) {
	descriptors := Catalog()
	require.Len(t, descriptors, len(Available()))

	for _, d := range descriptors {
		t.Run(d.Name, func(t *testing.T) {
			require.NoError(t, d.Validate())
			switch d.Kind {
			case Batch:
				clf, err := d.NewBatch(2, 2, 1)
				require.NoError(t, err)
				assert.NotNil(t, clf)
			case Incremental:
				clf, err := d.NewIncremental(2, 2, 1)
				require.NoError(t, err)
				_, probabilistic := clf.(ProbabilisticClassifier)
				assert.Equal(t, d.Prediction == Probabilistic, probabilistic)
			}
		})
	}
}

func TestReferenceClassifiers(t *testing.T) {
	refs := ReferenceClassifiers()
	require.Len(t, refs, 3)
	assert.Equal(t, "SVC", refs[0].Name)
	assert.Equal(t, "DT", refs[1].Name)
	assert.Equal(t, "RF", refs[2].Name)
	assert.Equal(t, "batch", refs[0].Kind.String())
}
