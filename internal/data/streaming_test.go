package data

import (
	"context"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSVDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowers.csv")
	writeFile(t, path, "a,b,class\n1.5,2,setosa\n?,4,virginica\n3,0.25,setosa\n")

	ds, err := LoadCSVDataset(path)
	require.NoError(t, err)
	assert.Equal(t, "flowers", ds.Name())
	assert.Equal(t, 3, ds.Instances())
	assert.Equal(t, 2, ds.Features())
	assert.Equal(t, 2, ds.Classes())
	assert.Equal(t, []string{"setosa", "virginica"}, ds.ClassNames())

	X, y := ds.Data()
	assert.Equal(t, []int{0, 1, 0}, y)
	assert.Equal(t, 1.5, X[0][0])
	assert.True(t, math.IsNaN(X[1][0]))
	assert.Equal(t, 0.25, X[2][1])
}

func TestLoadCSVDataset_Errors(t *testing.T) {
	_, err := LoadCSVDataset(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	path := filepath.Join(t.TempDir(), "bad.csv")
	writeFile(t, path, "a,class\nx,1\n")
	_, err = LoadCSVDataset(path)
	assert.ErrorIs(t, err, ErrMalformedData)
}

func readAll(t *testing.T, s Stream) []Sample {
	t.Helper()
	reader, err := s.Open(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	var samples []Sample
	for {
		sample, err := reader.Next()
		if err == io.EOF {
			return samples
		}
		require.NoError(t, err)
		samples = append(samples, sample)
	}
}

func TestDatasetStream_ReplaysTestParts(t *testing.T) {
	ds, err := Blobs(BlobSpec{Name: "blobs", PerClass: []int{20, 15}, Features: 3}, 5)
	require.NoError(t, err)

	opts := DefaultFoldOptions()
	stream := NewDatasetStream(ds, opts)
	assert.Equal(t, "blobs", stream.Name())
	assert.Equal(t, 3, stream.Features())

	samples := readAll(t, stream)
	require.Len(t, samples, 35)

	ids := make(map[string]bool)
	for _, s := range samples {
		assert.True(t, s.Labeled)
		assert.Len(t, s.X, 3)
		assert.False(t, ids[s.ID], "duplicate id %s", s.ID)
		ids[s.ID] = true
	}

	info, err := Describe(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, 35, info.Samples)
	assert.Equal(t, 35, info.Labeled)
	assert.Equal(t, []int{0, 1}, info.Labels)
}

func TestCSVStream_QueriesAndLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	writeFile(t, path, "id,x1,x2,label\n"+
		"a,1,2,\n"+
		"b,3,4,spam\n"+
		"a,1,2,ham\n"+
		"c,5,6,ham\n")

	stream, err := NewCSVStream(path)
	require.NoError(t, err)
	assert.Equal(t, "events", stream.Name())
	assert.Equal(t, 2, stream.Features())

	samples := readAll(t, stream)
	require.Len(t, samples, 4)

	assert.Equal(t, "a", samples[0].ID)
	assert.False(t, samples[0].Labeled)
	assert.Equal(t, []float64{1, 2}, samples[0].X)

	assert.True(t, samples[1].Labeled)
	assert.Equal(t, 1, samples[1].Y)
	assert.Equal(t, "a", samples[2].ID)
	assert.Equal(t, 0, samples[2].Y)

	info, err := Describe(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, 4, info.Samples)
	assert.Equal(t, 3, info.Labeled)
	assert.Equal(t, []int{0, 1}, info.Labels)
}

func TestCSVStream_Missing(t *testing.T) {
	_, err := NewCSVStream(filepath.Join(t.TempDir(), "none.csv"))
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestDescribe_Cancelled(t *testing.T) {
	ds, err := Blobs(BlobSpec{Name: "blobs", PerClass: []int{10, 10}, Features: 2}, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Describe(ctx, NewDatasetStream(ds, DefaultFoldOptions()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBlobs_ReferenceShapes(t *testing.T) {
	datasets, err := ReferenceDatasets(1)
	require.NoError(t, err)
	require.Len(t, datasets, 3)

	want := []struct {
		name                         string
		instances, features, classes int
	}{
		{"iris", 150, 4, 3},
		{"wisconsin", 683, 9, 2},
		{"pima", 768, 8, 2},
	}
	for i, w := range want {
		assert.Equal(t, w.name, datasets[i].Name())
		assert.Equal(t, w.instances, datasets[i].Instances())
		assert.Equal(t, w.features, datasets[i].Features())
		assert.Equal(t, w.classes, datasets[i].Classes())
	}

	again, err := ReferenceDatasets(1)
	require.NoError(t, err)
	a, _ := datasets[0].(*MemoryDataset).Data()
	b, _ := again[0].(*MemoryDataset).Data()
	assert.Equal(t, a, b)

	_, err = Blobs(BlobSpec{Name: "x", PerClass: []int{5}, Features: 1}, 1)
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestValidator(t *testing.T) {
	v := NewDataValidator()
	assert.ErrorIs(t, v.ValidateDataset(nil, nil), ErrMalformedData)
	assert.ErrorIs(t, v.ValidateDataset([][]float64{{1, 2}, {3}}, []int{0, 1}), ErrMalformedData)
	assert.ErrorIs(t, v.ValidateLabels([]int{1, 1}), ErrMalformedData)
	assert.NoError(t, v.ValidateLabels([]int{1, 0}))

	stats := v.GetDatasetStats([][]float64{{1, math.NaN()}, {3, 4}}, []int{0, 1})
	assert.Equal(t, 2, stats.Samples)
	assert.Equal(t, 2, stats.Classes)
	assert.Equal(t, 2.0, stats.FeatureStats[0].Mean)
	assert.Equal(t, 1, stats.FeatureStats[1].Missing)
	assert.Equal(t, 4.0, stats.FeatureStats[1].Max)
}
