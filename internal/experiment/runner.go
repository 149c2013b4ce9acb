package experiment

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/sylwekczmil/cacp/internal/comparison"
	"github.com/sylwekczmil/cacp/internal/config"
	"github.com/sylwekczmil/cacp/internal/data"
	"github.com/sylwekczmil/cacp/internal/evaluation"
	"github.com/sylwekczmil/cacp/internal/models"
	"github.com/sylwekczmil/cacp/internal/persistence"
	"github.com/sylwekczmil/cacp/internal/report"
)

// ExperimentRunner executes a configured experiment end to end: info
// tables, the comparison itself, then every report.
type ExperimentRunner struct {
	Config   *config.Config
	logger   *logrus.Entry
	registry *persistence.Registry
	progress comparison.ProgressFunc
}

type Option func(*ExperimentRunner)

func WithLogger(logger *logrus.Entry) Option {
	return func(r *ExperimentRunner) {
		r.logger = logger
	}
}

// WithRegistry records the experiment and its outcome.
func WithRegistry(registry *persistence.Registry) Option {
	return func(r *ExperimentRunner) {
		r.registry = registry
	}
}

func WithProgress(fn comparison.ProgressFunc) Option {
	return func(r *ExperimentRunner) {
		r.progress = fn
	}
}

func NewRunner(cfg *config.Config, opts ...Option) *ExperimentRunner {
	r := &ExperimentRunner{Config: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return r
}

// ExperimentResult is what a finished run leaves behind.
type ExperimentResult struct {
	Experiment persistence.Experiment
	OutputDir  string
	Records    []comparison.Record
	Summary    *report.Table
}

// Setup is everything resolved from a configuration before any evaluation
// starts.
type Setup struct {
	Datasets           []data.Dataset
	Streams            []data.Stream
	Classifiers        []models.Descriptor
	Metrics            []evaluation.Metric
	IncrementalMetrics []evaluation.IncrementalMetric
	Modifiers          evaluation.Chain
	Folds              data.FoldOptions
}

func (s *Setup) datasetNames() []string {
	var names []string
	for _, ds := range s.Datasets {
		names = append(names, ds.Name())
	}
	for _, st := range s.Streams {
		names = append(names, st.Name())
	}
	return comparison.UniqueSafeNames(names)
}

func (s *Setup) classifierNames() []string {
	names := make([]string, len(s.Classifiers))
	for i, d := range comparison.UniqueDescriptors(s.Classifiers) {
		names[i] = d.Name
	}
	return names
}

func (s *Setup) metricNames() []string {
	var names []string
	for _, m := range s.Metrics {
		names = append(names, m.Name)
	}
	for _, m := range s.IncrementalMetrics {
		names = append(names, m.Name)
	}
	return names
}

// Prepare resolves datasets, classifiers, metrics and modifiers. Every
// configuration error surfaces here.
func Prepare(cfg *config.Config) (*Setup, error) {
	setup := &Setup{
		Folds: data.FoldOptions{
			NFolds:                 cfg.Folds,
			Balanced:               cfg.Balanced,
			CategoricalToNumerical: cfg.CategoricalToNumerical,
			Seed:                   cfg.Seed,
		},
	}
	incremental := cfg.Type == config.TypeIncremental

	for _, dc := range cfg.Datasets {
		if incremental && dc.Source == config.SourceCSV {
			stream, err := data.NewCSVStream(dc.Path)
			if err != nil {
				return nil, err
			}
			setup.Streams = append(setup.Streams, stream)
			continue
		}
		datasets, err := loadDatasets(dc, cfg.Seed)
		if err != nil {
			return nil, err
		}
		if !incremental {
			setup.Datasets = append(setup.Datasets, datasets...)
			continue
		}
		for _, ds := range datasets {
			setup.Streams = append(setup.Streams, data.NewDatasetStream(ds, setup.Folds))
		}
	}

	wantKind := models.Batch
	if incremental {
		wantKind = models.Incremental
	}
	for _, cc := range cfg.Classifiers {
		d, err := models.Resolve(cc.Name, cc.Label, cc.Params)
		if err != nil {
			return nil, err
		}
		if d.Kind != wantKind {
			return nil, fmt.Errorf("%w: %s is a %s classifier, experiment type is %s", config.ErrInvalidConfig, d.Name, d.Kind, cfg.Type)
		}
		setup.Classifiers = append(setup.Classifiers, d)
	}

	var err error
	if incremental {
		setup.IncrementalMetrics, err = evaluation.IncrementalMetricsByName(cfg.Metrics)
	} else {
		setup.Metrics, err = evaluation.MetricsByName(cfg.Metrics)
	}
	if err != nil {
		return nil, err
	}

	for _, name := range cfg.Modifiers {
		m, err := evaluation.ModifierByName(name)
		if err != nil {
			return nil, err
		}
		setup.Modifiers = append(setup.Modifiers, m)
	}
	return setup, nil
}

func loadDatasets(dc config.DatasetConfig, seed int64) ([]data.Dataset, error) {
	switch dc.Source {
	case config.SourceKEEL:
		ds, err := data.NewKEELDataset(dc.Dir, dc.Name)
		if err != nil {
			return nil, err
		}
		return []data.Dataset{ds}, nil
	case config.SourceCSV:
		ds, err := data.LoadCSVDataset(dc.Path)
		if err != nil {
			return nil, err
		}
		if dc.Name != "" {
			ds.Rename(dc.Name)
		}
		return []data.Dataset{ds}, nil
	case config.SourceSynthetic:
		ds, err := data.Blobs(data.BlobSpec{
			Name:     dc.Name,
			PerClass: dc.PerClass,
			Features: dc.Features,
			Spread:   dc.Spread,
		}, seed)
		if err != nil {
			return nil, err
		}
		return []data.Dataset{ds}, nil
	case config.SourceReference:
		return data.ReferenceDatasets(seed)
	}
	return nil, fmt.Errorf("%w: unknown dataset source %q", config.ErrInvalidConfig, dc.Source)
}

// Run prepares the experiment, records it in the registry when one is set
// and produces every output under the configured directory.
func (r *ExperimentRunner) Run(ctx context.Context) (*ExperimentResult, error) {
	setup, err := Prepare(r.Config)
	if err != nil {
		return nil, err
	}

	outputDir, err := filepath.Abs(r.Config.OutputDir)
	if err != nil {
		return nil, err
	}
	result := &ExperimentResult{OutputDir: outputDir}

	// The registry outlives cancellation of the run itself.
	registryCtx := context.WithoutCancel(ctx)
	if r.registry != nil {
		kind := persistence.TypeBatch
		if r.Config.Type == config.TypeIncremental {
			kind = persistence.TypeIncremental
		}
		result.Experiment, err = r.registry.Create(registryCtx, persistence.Experiment{
			Name:        r.Config.Name,
			Type:        kind,
			Datasets:    setup.datasetNames(),
			Classifiers: setup.classifierNames(),
			Metrics:     setup.metricNames(),
			Path:        outputDir,
		})
		if err != nil {
			return nil, err
		}
	}

	log := r.logger.WithField("output", outputDir)
	log.WithField("type", r.Config.Type).Info("Starting experiment")

	if r.Config.Type == config.TypeIncremental {
		err = r.runIncremental(ctx, setup, result)
	} else {
		err = r.runBatch(ctx, setup, result)
	}

	if r.registry != nil {
		if ferr := r.registry.Finish(registryCtx, result.Experiment.ID, err); ferr != nil {
			log.WithError(ferr).Error("Failed to record experiment outcome")
		}
	}
	if err != nil {
		return result, err
	}
	log.WithField("records", len(result.Records)).Info("Experiment finished")
	return result, nil
}

func (r *ExperimentRunner) runBatch(ctx context.Context, setup *Setup, result *ExperimentResult) error {
	if _, err := report.DatasetInfo(setup.Datasets, result.OutputDir); err != nil {
		return err
	}
	if _, err := report.ClassifierInfo(comparison.UniqueDescriptors(setup.Classifiers), result.OutputDir); err != nil {
		return err
	}

	runner := comparison.NewRunner(comparison.WithLogger(r.logger), comparison.WithProgress(r.progress))
	records, err := runner.Run(ctx, comparison.Plan{
		Datasets:    setup.Datasets,
		Classifiers: setup.Classifiers,
		Metrics:     setup.Metrics,
		Folds:       setup.Folds,
		Modifiers:   setup.Modifiers,
		OutputDir:   result.OutputDir,
	})
	result.Records = records
	if err != nil {
		return err
	}

	if _, err := report.Generate(result.OutputDir, r.logger); err != nil {
		return err
	}
	result.Summary, err = summaryTable(result.OutputDir)
	return err
}

func (r *ExperimentRunner) runIncremental(ctx context.Context, setup *Setup, result *ExperimentResult) error {
	if _, err := report.StreamInfo(ctx, setup.Streams, result.OutputDir); err != nil {
		return err
	}
	if _, err := report.ClassifierInfo(comparison.UniqueDescriptors(setup.Classifiers), result.OutputDir); err != nil {
		return err
	}

	runner := comparison.NewIncrementalRunner(comparison.WithLogger(r.logger), comparison.WithProgress(r.progress))
	records, err := runner.Run(ctx, comparison.IncrementalPlan{
		Streams:     setup.Streams,
		Classifiers: setup.Classifiers,
		Metrics:     setup.IncrementalMetrics,
		OutputDir:   result.OutputDir,
		Seed:        r.Config.Seed,
	})
	result.Records = records
	if err != nil {
		return err
	}

	if _, err := report.GenerateIncremental(result.OutputDir, r.logger); err != nil {
		return err
	}
	result.Summary, err = summaryTable(filepath.Join(result.OutputDir, comparison.IncrementalDir))
	return err
}

// summaryTable reloads the per-algorithm summary for display.
func summaryTable(dir string) (*report.Table, error) {
	table, err := comparison.ReadCSV(filepath.Join(dir, "comparison.csv"))
	if err != nil {
		return nil, err
	}
	summary := &report.Table{Header: []string{"Algorithm"}}
	summary.Header = append(summary.Header, table.MetricNames...)
	for _, s := range report.Summarize(table) {
		row := []string{s.Algorithm}
		for m := range table.MetricNames {
			row = append(row, fmt.Sprintf("%.3f ± %.3f", s.Mean[m], s.Std[m]))
		}
		summary.Append(row...)
	}
	return summary, nil
}
