package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test codes follow sorted order regardless of input order
func TestLabelEncoderSortedCodes(t *testing.T) {
	a := NewLabelEncoder()
	b := NewLabelEncoder()

	codesA, err := a.FitTransform([]string{"versicolor", "setosa", "virginica", "setosa"})
	require.NoError(t, err)
	_, err = b.FitTransform([]string{"virginica", "versicolor", "setosa"})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 0, 2, 0}, codesA)
	assert.Equal(t, a.Classes(), b.Classes())
	assert.Equal(t, []string{"setosa", "versicolor", "virginica"}, a.Classes())

	back, err := a.InverseTransform([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"virginica", "setosa"}, back)
}

func TestLabelEncoderErrors(t *testing.T) {
	le := NewLabelEncoder()
	assert.False(t, le.Fitted())

	_, err := le.Transform([]string{"a"})
	assert.Error(t, err)

	le.Fit([]string{"a", "b"})
	_, err = le.TransformOne("c")
	assert.Error(t, err)
	_, err = le.InverseTransform([]int{5})
	assert.Error(t, err)
}

// Test min-max scaling maps the fitted range onto [0, 1]
func TestScalerMinMax(t *testing.T) {
	X := [][]float64{{0, 10}, {5, 10}, {10, math.NaN()}}
	s := NewScaler("minmax")

	out, err := s.FitTransform(X)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[0][0])
	assert.Equal(t, 0.5, out[1][0])
	assert.Equal(t, 1.0, out[2][0])
	// constant column collapses to zero, missing stays missing
	assert.Equal(t, 0.0, out[0][1])
	assert.True(t, math.IsNaN(out[2][1]))

	// values outside the fitted range are clamped
	clamped, err := s.Transform([][]float64{{-5, 10}, {20, 10}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, clamped[0][0])
	assert.Equal(t, 1.0, clamped[1][0])

	// input is not modified
	assert.Equal(t, 5.0, X[1][0])
}

func TestScalerStandard(t *testing.T) {
	s := NewScaler("standard")
	out, err := s.FitTransform([][]float64{{1}, {3}})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, out[0][0], 1e-12)
	assert.InDelta(t, 1.0, out[1][0], 1e-12)
}

func TestScalerErrors(t *testing.T) {
	_, err := NewScaler("minmax").Transform([][]float64{{1}})
	assert.Error(t, err)

	assert.Error(t, NewScaler("bogus").Fit([][]float64{{1}}))
	assert.Error(t, NewScaler("minmax").Fit(nil))
}
