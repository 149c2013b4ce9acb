package report

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/sylwekczmil/cacp/internal/comparison"
)

// Step is one report derived from a comparison table.
type Step struct {
	Name string
	Run  func(table *comparison.Table, dir string) error
}

// Steps lists the batch reports in the order Generate produces them.
func Steps() []Step {
	return []Step{
		{"comparison_result", func(t *comparison.Table, dir string) error {
			_, err := ComparisonResult(t, dir)
			return err
		}},
		{"plot", Plots},
		{"winner", Winners},
		{"time", Times},
		{"wilcoxon", WilcoxonTables},
	}
}

// Generate reads dir/comparison.csv and writes every batch report next to
// it.
func Generate(dir string, logger *logrus.Entry) (*comparison.Table, error) {
	table, err := comparison.ReadCSV(filepath.Join(dir, "comparison.csv"))
	if err != nil {
		return nil, err
	}
	if err := runSteps(table, dir, logger, Steps()); err != nil {
		return nil, err
	}
	return table, nil
}

// GenerateIncremental writes the summary reports of an incremental run from
// dir/incremental/comparison.csv, then the running metric charts.
func GenerateIncremental(dir string, logger *logrus.Entry) (*comparison.Table, error) {
	incrementalDir := filepath.Join(dir, comparison.IncrementalDir)
	table, err := comparison.ReadCSV(filepath.Join(incrementalDir, "comparison.csv"))
	if err != nil {
		return nil, err
	}
	steps := []Step{Steps()[0], {"winner", Winners}, {"time", Times}}
	if err := runSteps(table, incrementalDir, logger, steps); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger.WithField("report", "plot").Info("Generating report")
	if err := IncrementalPlots(dir); err != nil {
		return nil, fmt.Errorf("report plot: %w", err)
	}
	return table, nil
}

func runSteps(table *comparison.Table, dir string, logger *logrus.Entry, steps []Step) error {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if len(table.Records) == 0 {
		return fmt.Errorf("%w: no records", comparison.ErrMalformedResult)
	}
	for _, step := range steps {
		logger.WithField("report", step.Name).Info("Generating report")
		if err := step.Run(table, dir); err != nil {
			return fmt.Errorf("report %s: %w", step.Name, err)
		}
	}
	return nil
}
