package commander

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylwekczmil/cacp/internal/config"
	"github.com/sylwekczmil/cacp/internal/jobs"
	"github.com/sylwekczmil/cacp/internal/persistence"
)

func init() {
	color.NoColor = true
}

func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Name = "small"
	cfg.OutputDir = t.TempDir()
	cfg.Folds = 5
	cfg.Logging.Level = "error"
	cfg.Datasets = []config.DatasetConfig{
		{Source: config.SourceSynthetic, Name: "pair", PerClass: []int{10, 10}, Features: 2},
	}
	cfg.Classifiers = []config.ClassifierConfig{{Name: "dt"}, {Name: "gnb"}}
	cfg.Metrics = []string{"Accuracy"}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunExperimentPrintsSummary(t *testing.T) {
	var out bytes.Buffer
	c := NewCommander(&out)
	cfg := smallConfig(t)
	cfg.Registry = filepath.Join(t.TempDir(), "experiments.db")

	result, err := c.RunExperiment(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, result.Records, 2*5)

	text := out.String()
	assert.Contains(t, text, "Running small (batch)")
	assert.Contains(t, text, "10 records written")
	assert.Contains(t, text, "5/5")
	assert.Contains(t, text, "DT")
	assert.Contains(t, text, "GNB")

	all := c.Jobs().ListJobs()
	require.Len(t, all, 1)
	assert.Equal(t, jobs.JobCompleted, all[0].GetStatus())

	out.Reset()
	require.NoError(t, c.Experiments(context.Background(), cfg.Registry))
	assert.Contains(t, out.String(), string(persistence.StatusFinished))
	assert.Contains(t, out.String(), "small")
}

func TestRunExperimentCancelled(t *testing.T) {
	var out bytes.Buffer
	c := NewCommander(&out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.RunExperiment(ctx, smallConfig(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out.String(), "Cancelled")
	assert.Equal(t, jobs.JobCancelled, c.Jobs().ListJobs()[0].GetStatus())
}

func TestReportRegeneratesSummary(t *testing.T) {
	var out bytes.Buffer
	c := NewCommander(&out)
	cfg := smallConfig(t)
	result, err := c.RunExperiment(context.Background(), cfg)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, c.Report(result.OutputDir, false, nil))
	assert.Contains(t, out.String(), "reports written to")
	assert.Contains(t, out.String(), "±")

	err = c.Report(t.TempDir(), false, nil)
	assert.Error(t, err)
}

func TestInfoWritesTables(t *testing.T) {
	var out bytes.Buffer
	cfg := smallConfig(t)
	require.NoError(t, NewCommander(&out).Info(context.Background(), cfg))

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "info", "datasets.csv"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "info", "classifiers.csv"))
	assert.Contains(t, out.String(), "pair")
	assert.Contains(t, out.String(), "Gaussian naive Bayes")
}

func TestCatalogListsClassifiersAndMetrics(t *testing.T) {
	var out bytes.Buffer
	NewCommander(&out).Catalog()

	text := out.String()
	for _, want := range []string{"svc", "online_gnb", "max_depth=5", "Accuracy"} {
		assert.Contains(t, text, want)
	}
}

func TestExperimentsWithoutRegistry(t *testing.T) {
	var out bytes.Buffer
	c := NewCommander(&out)
	assert.Error(t, c.Experiments(context.Background(), ""))

	require.NoError(t, c.Experiments(context.Background(), filepath.Join(t.TempDir(), "empty.db")))
	assert.Contains(t, out.String(), "No experiments recorded")
}

func TestFormatParams(t *testing.T) {
	assert.Equal(t, "a=1 b=x", formatParams(map[string]any{"b": "x", "a": 1}))
	assert.Equal(t, "", formatParams(nil))
}

func TestDemoConfigValidates(t *testing.T) {
	cfg := DemoConfig(t.TempDir())
	assert.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Classifiers, 3)
}
