package experiment

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylwekczmil/cacp/internal/comparison"
	"github.com/sylwekczmil/cacp/internal/config"
	"github.com/sylwekczmil/cacp/internal/evaluation"
	"github.com/sylwekczmil/cacp/internal/models"
	"github.com/sylwekczmil/cacp/internal/persistence"
)

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func batchConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Name = "blobs"
	cfg.OutputDir = t.TempDir()
	cfg.Folds = 5
	cfg.Modifiers = []string{"normalize"}
	cfg.Datasets = []config.DatasetConfig{
		{Source: config.SourceSynthetic, Name: "two", PerClass: []int{15, 15}, Features: 2},
		{Source: config.SourceSynthetic, Name: "three", PerClass: []int{10, 10, 10}, Features: 3},
	}
	cfg.Classifiers = []config.ClassifierConfig{
		{Name: "dt"},
		{Name: "knn", Params: map[string]any{"k": 3}},
	}
	cfg.Metrics = []string{"Accuracy", "F1"}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestPrepareBatch(t *testing.T) {
	setup, err := Prepare(batchConfig(t))
	require.NoError(t, err)

	assert.Len(t, setup.Datasets, 2)
	assert.Empty(t, setup.Streams)
	assert.Len(t, setup.Classifiers, 2)
	assert.Len(t, setup.Metrics, 2)
	assert.Len(t, setup.Modifiers, 1)
	assert.Equal(t, 5, setup.Folds.NFolds)
	assert.Equal(t, []string{"two", "three"}, setup.datasetNames())
}

func TestPrepareRejectsMismatchedSetup(t *testing.T) {
	cfg := batchConfig(t)
	cfg.Classifiers = append(cfg.Classifiers, config.ClassifierConfig{Name: "online_gnb"})
	_, err := Prepare(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = batchConfig(t)
	cfg.Classifiers = []config.ClassifierConfig{{Name: "xgboost"}}
	_, err = Prepare(cfg)
	assert.ErrorIs(t, err, models.ErrUnknownClassifier)

	cfg = batchConfig(t)
	cfg.Metrics = []string{"Kappa"}
	_, err = Prepare(cfg)
	assert.ErrorIs(t, err, evaluation.ErrUnknownMetric)
}

func TestRunBatchProducesReportsAndRecordsExperiment(t *testing.T) {
	cfg := batchConfig(t)
	registry, err := persistence.OpenRegistry(filepath.Join(t.TempDir(), "experiments.db"))
	require.NoError(t, err)
	defer registry.Close()

	var last [2]int
	runner := NewRunner(cfg,
		WithLogger(quietLogger()),
		WithRegistry(registry),
		WithProgress(func(completed, total int) { last = [2]int{completed, total} }),
	)
	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Records, 2*5*2)
	assert.Equal(t, [2]int{10, 10}, last)
	for _, name := range []string{
		"comparison.csv",
		"comparison_result.csv",
		"info/datasets.csv",
		"info/classifiers.tex",
		"winner/comparison.csv",
		"wilcoxon/comparison_DT.csv",
		"time/comparison.csv",
		"plot/comparison_accuracy_per_fold.txt",
	} {
		assert.FileExists(t, filepath.Join(result.OutputDir, name))
	}
	require.NotNil(t, result.Summary)
	assert.Len(t, result.Summary.Rows, 2)

	recorded, err := registry.Get(context.Background(), result.Experiment.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusFinished, recorded.Status)
	assert.Equal(t, persistence.TypeBatch, recorded.Type)
	assert.Equal(t, []string{"two", "three"}, recorded.Datasets)
	assert.Equal(t, []string{"DT", "KNN"}, recorded.Classifiers)
	assert.Equal(t, []string{"Accuracy", "F1"}, recorded.Metrics)
}

func TestRunCancelledIsRecordedAsFailed(t *testing.T) {
	cfg := batchConfig(t)
	registry, err := persistence.OpenRegistry(filepath.Join(t.TempDir(), "experiments.db"))
	require.NoError(t, err)
	defer registry.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := NewRunner(cfg, WithLogger(quietLogger()), WithRegistry(registry)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	recorded, err := registry.Get(context.Background(), result.Experiment.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusFailed, recorded.Status)
	assert.Contains(t, recorded.Error, "context canceled")
}

func TestRunIncremental(t *testing.T) {
	cfg := config.Default()
	cfg.Name = "stream"
	cfg.Type = config.TypeIncremental
	cfg.OutputDir = t.TempDir()
	cfg.Folds = 5
	cfg.Datasets = []config.DatasetConfig{
		{Source: config.SourceSynthetic, Name: "blobs", PerClass: []int{20, 20}, Features: 2},
	}
	cfg.Classifiers = []config.ClassifierConfig{{Name: "online_gnb"}, {Name: "majority"}}
	require.NoError(t, cfg.Validate())

	result, err := NewRunner(cfg, WithLogger(quietLogger())).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Records, 2)
	incremental := filepath.Join(result.OutputDir, comparison.IncrementalDir)
	for _, name := range []string{
		"comparison.csv",
		"comparison_result.csv",
		"time/comparison.csv",
		"plot/blobs_accuracy.txt",
		"result/OnlineGNB/blobs.csv",
		"result/Majority/blobs.csv",
	} {
		assert.FileExists(t, filepath.Join(incremental, name))
	}
	assert.FileExists(t, filepath.Join(result.OutputDir, "info", "datasets.csv"))
	assert.Empty(t, result.Experiment.ID)
}
