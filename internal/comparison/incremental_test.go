package comparison

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylwekczmil/cacp/internal/data"
	"github.com/sylwekczmil/cacp/internal/evaluation"
	"github.com/sylwekczmil/cacp/internal/models"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func streams(t *testing.T) []data.Stream {
	t.Helper()
	var out []data.Stream
	for _, ds := range smallDatasets(t, 2) {
		out = append(out, data.NewDatasetStream(ds, foldOptions(5)))
	}
	return out
}

// Test one result file per pair with increasing index and bounded metrics
func TestIncrementalRunner_WritesResultPerPair(t *testing.T) {
	dir := t.TempDir()
	plan := IncrementalPlan{
		Streams:     streams(t),
		Classifiers: []models.Descriptor{mustResolve(t, "online_gnb", nil), mustResolve(t, "majority", nil)},
		Metrics:     evaluation.DefaultIncrementalMetrics(),
		OutputDir:   dir,
		Seed:        1,
	}

	records, err := NewIncrementalRunner(WithLogger(quietLogger())).Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, records, 4)

	for _, classifier := range []string{"OnlineGNB", "Majority"} {
		for _, stream := range plan.Streams {
			rows := readRows(t, ResultPath(dir, classifier, stream.Name()))
			require.Equal(t, []string{"index", "y_true", "y_pred", "AUC", "Accuracy", "Precision", "Recall", "F1"}, rows[0])
			require.Len(t, rows, 46)

			// the first sample has nothing to be scored against
			assert.Equal(t, "", rows[1][2])
			for i, row := range rows[1:] {
				index, err := strconv.Atoi(row[0])
				require.NoError(t, err)
				assert.Equal(t, i, index)
				for _, cell := range row[3:] {
					v, err := strconv.ParseFloat(cell, 64)
					require.NoError(t, err)
					assert.GreaterOrEqual(t, v, 0.0)
					assert.LessOrEqual(t, v, 1.0)
				}
			}
		}
	}

	table, err := ReadCSV(filepath.Join(dir, IncrementalDir, "comparison.csv"))
	require.NoError(t, err)
	require.Len(t, table.Records, 4)
	for _, r := range table.Records {
		assert.Equal(t, 45, r.TrainSize)
		assert.Equal(t, 44, r.TestSize)
		assert.Equal(t, 3, r.NumberOfClasses)
	}
	assert.Equal(t, "OnlineGNB", table.Records[1].Algorithm)
	assert.Equal(t, "Majority", table.Records[0].Algorithm)
}

// Test the running values equal the batch metrics over the scored samples
func TestIncrementalRunner_MatchesBatchMetrics(t *testing.T) {
	dir := t.TempDir()
	plan := IncrementalPlan{
		Streams:     streams(t)[:1],
		Classifiers: []models.Descriptor{mustResolve(t, "window_knn", nil)},
		Metrics:     evaluation.DefaultIncrementalMetrics()[1:],
		OutputDir:   dir,
	}
	records, err := NewIncrementalRunner(WithLogger(quietLogger())).Run(context.Background(), plan)
	require.NoError(t, err)

	rows := readRows(t, ResultPath(dir, "WindowKNN", plan.Streams[0].Name()))
	var yTrue, yPred []int
	for _, row := range rows[1:] {
		if row[2] == "" {
			continue
		}
		a, _ := strconv.Atoi(row[1])
		b, _ := strconv.Atoi(row[2])
		yTrue = append(yTrue, a)
		yPred = append(yPred, b)
	}

	labels := []int{0, 1, 2}
	for i, m := range evaluation.DefaultMetrics()[1:] {
		want, err := m.Func(yTrue, yPred, labels)
		require.NoError(t, err)
		assert.InDelta(t, want, records[0].Metrics[i], 1e-12, m.Name)
	}
}

type failingLearner struct{}

func (failingLearner) LearnOne(x []float64, y int) error {
	return errors.New("cannot learn")
}

func (failingLearner) PredictOne(x []float64) (int, error) {
	return 0, models.ErrNotFitted
}

// Test a failing pair is zeroed while the other pair completes
func TestIncrementalRunner_IsolatesFailures(t *testing.T) {
	broken := models.Descriptor{
		Name: "Broken",
		Kind: models.Incremental,
		NewIncremental: func(_, _ int, _ int64) (models.IncrementalClassifier, error) {
			return failingLearner{}, nil
		},
	}
	plan := IncrementalPlan{
		Streams:     streams(t)[:1],
		Classifiers: []models.Descriptor{broken, mustResolve(t, "no_change", nil)},
		Metrics:     evaluation.DefaultIncrementalMetrics(),
		OutputDir:   t.TempDir(),
	}

	records, err := NewIncrementalRunner(WithLogger(quietLogger())).Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Broken", records[0].Algorithm)
	assert.True(t, records[0].Failed())
	for _, v := range records[0].Metrics {
		assert.Equal(t, 0.0, v)
	}
	assert.False(t, records[1].Failed())
	assert.Equal(t, 45, records[1].TrainSize)
}

// Test query rows are predicted and scored when their label arrives
func TestIncrementalRunner_PendingQueries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queries.csv")
	content := "id,x,label\n" +
		"1,0.0,a\n" +
		"2,10.0,b\n" +
		"3,0.5,\n" +
		"4,9.5,\n" +
		"4,9.5,b\n" +
		"3,0.5,a\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	stream, err := data.NewCSVStream(path)
	require.NoError(t, err)

	out := filepath.Join(dir, "out")
	records, err := NewIncrementalRunner(WithLogger(quietLogger())).Run(context.Background(), IncrementalPlan{
		Streams:     []data.Stream{stream},
		Classifiers: []models.Descriptor{mustResolve(t, "window_knn", map[string]any{"k": 1})},
		Metrics:     []evaluation.IncrementalMetric{evaluation.DefaultIncrementalMetrics()[1]},
		OutputDir:   out,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 4, records[0].TrainSize)
	assert.Equal(t, 3, records[0].TestSize)
	assert.InDelta(t, 2.0/3.0, records[0].Metrics[0], 1e-12)

	rows := readRows(t, ResultPath(out, "WindowKNN", "queries"))
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"2", "1", "1"}, rows[3][:3])
	assert.Equal(t, []string{"3", "0", "0"}, rows[4][:3])
}

func TestIncrementalRunner_InvalidPlan(t *testing.T) {
	_, err := NewIncrementalRunner(WithLogger(quietLogger())).Run(context.Background(), IncrementalPlan{
		Streams:     streams(t),
		Classifiers: []models.Descriptor{mustResolve(t, "svc", nil)},
		Metrics:     evaluation.DefaultIncrementalMetrics(),
		OutputDir:   t.TempDir(),
	})
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestMostLikely(t *testing.T) {
	assert.Equal(t, 1, mostLikely(map[int]float64{1: 0.5, 2: 0.5}, []int{0, 1, 2}))
	assert.Equal(t, 0, mostLikely(map[int]float64{}, []int{0, 1}))
}

// Test labels that only differ in path characters get their own result file
func TestIncrementalRunner_DistinctResultPaths(t *testing.T) {
	dir := t.TempDir()
	majority, err := models.Resolve("majority", "base/line", nil)
	require.NoError(t, err)
	noChange, err := models.Resolve("no_change", "base_line", nil)
	require.NoError(t, err)

	plan := IncrementalPlan{
		Streams:     streams(t)[:1],
		Classifiers: []models.Descriptor{majority, noChange},
		Metrics:     evaluation.DefaultIncrementalMetrics(),
		OutputDir:   dir,
		Seed:        1,
	}
	records, err := NewIncrementalRunner(WithLogger(quietLogger())).Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, records, 2)

	dataset := plan.Streams[0].Name()
	assert.FileExists(t, ResultPath(dir, "base_line", dataset))
	assert.FileExists(t, ResultPath(dir, "base_line (2)", dataset))

	entries, err := os.ReadDir(filepath.Join(dir, IncrementalDir, "result"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
