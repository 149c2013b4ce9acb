package comparison

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sylwekczmil/cacp/internal/data"
	"github.com/sylwekczmil/cacp/internal/evaluation"
	"github.com/sylwekczmil/cacp/internal/models"
)

var ErrInvalidPlan = errors.New("invalid comparison plan")

// Plan describes one batch comparison.
type Plan struct {
	Datasets    []data.Dataset
	Classifiers []models.Descriptor
	Metrics     []evaluation.Metric
	Folds       data.FoldOptions
	// Modifiers run once per fold before any classifier sees it.
	Modifiers evaluation.Chain
	OutputDir string
}

func (p Plan) Validate() error {
	if len(p.Datasets) == 0 {
		return fmt.Errorf("%w: no datasets", ErrInvalidPlan)
	}
	if len(p.Classifiers) == 0 {
		return fmt.Errorf("%w: no classifiers", ErrInvalidPlan)
	}
	if len(p.Metrics) == 0 {
		return fmt.Errorf("%w: no metrics", ErrInvalidPlan)
	}
	if p.OutputDir == "" {
		return fmt.Errorf("%w: no output directory", ErrInvalidPlan)
	}
	for _, d := range p.Classifiers {
		if d.Kind != models.Batch {
			return fmt.Errorf("%w: %s is not a batch classifier", ErrInvalidPlan, d.Name)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
	}
	return evaluation.ValidateFolds(p.Folds.NFolds)
}

type options struct {
	log      *logrus.Entry
	progress ProgressFunc
}

type Option func(*options)

func WithLogger(log *logrus.Entry) Option {
	return func(o *options) {
		o.log = log
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

func newOptions(opts []Option) options {
	o := options{log: logrus.NewEntry(logrus.StandardLogger())}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Runner evaluates every classifier on every fold of every dataset.
type Runner struct {
	options
}

func NewRunner(opts ...Option) *Runner {
	return &Runner{options: newOptions(opts)}
}

// Run processes datasets in order. After each dataset the sorted records are
// checkpointed to comparison_<n>.csv and the previous checkpoint is removed;
// a completed run leaves only comparison.csv. Cancellation is honoured
// between datasets: the records of finished datasets are returned together
// with the context error.
func (r *Runner) Run(ctx context.Context, plan Plan) ([]Record, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(plan.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	classifiers := UniqueDescriptors(plan.Classifiers)
	metricNames := metricColumns(plan.Metrics)
	tracker := newProgress(len(plan.Datasets)*plan.Folds.NFolds, r.progress)

	names := make([]string, len(plan.Datasets))
	for i, dataset := range plan.Datasets {
		names[i] = dataset.Name()
	}
	names = UniqueSafeNames(names)

	if err := removeCheckpoints(plan.OutputDir); err != nil {
		return nil, err
	}

	var records []Record
	checkpoint := 0
	for k, dataset := range plan.Datasets {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		name := names[k]
		log := r.log.WithField("dataset", name)
		log.Info("processing dataset")

		folds, err := dataset.Folds(ctx, plan.Folds)
		if err != nil {
			return records, fmt.Errorf("dataset %s: %w", name, err)
		}

		for _, fold := range folds {
			modified, err := plan.Modifiers.Modify(fold)
			if err != nil {
				return records, fmt.Errorf("dataset %s fold %d: %w", name, fold.Index, err)
			}
			records = append(records, r.evaluateFold(name, modified, classifiers, plan)...)
			foldsCompleted.Inc()
			tracker.add(1)
		}

		SortRecords(records)
		checkpoint++
		if err := writeCheckpoint(plan.OutputDir, checkpoint, metricNames, records); err != nil {
			return records, err
		}
	}

	if checkpoint > 0 {
		last := checkpointPath(plan.OutputDir, checkpoint)
		if err := os.Rename(last, filepath.Join(plan.OutputDir, "comparison.csv")); err != nil {
			return records, fmt.Errorf("failed to finalize comparison: %w", err)
		}
	}
	return records, nil
}

// evaluateFold runs all classifiers on one fold in parallel and waits for
// every one of them before returning.
func (r *Runner) evaluateFold(dataset string, fold evaluation.Fold, classifiers []models.Descriptor, plan Plan) []Record {
	results := make([]Record, len(classifiers))

	var g errgroup.Group
	g.SetLimit(len(classifiers))
	for i, d := range classifiers {
		g.Go(func() error {
			results[i] = r.evaluate(dataset, fold, d, plan)
			return nil
		})
	}
	g.Wait()
	return results
}

func (r *Runner) evaluate(dataset string, fold evaluation.Fold, d models.Descriptor, plan Plan) Record {
	record := Record{
		Dataset:         dataset,
		Algorithm:       d.Name,
		NumberOfClasses: fold.DistinctTrainClasses(),
		TrainSize:       len(fold.YTrain),
		TestSize:        len(fold.YTest),
		CVIndex:         fold.Index,
		Metrics:         make([]float64, len(plan.Metrics)),
	}
	log := r.log.WithFields(logrus.Fields{
		"dataset":   dataset,
		"algorithm": d.Name,
		"fold":      fold.Index,
	})

	predictions, trainTime, predictTime, err := fitPredict(fold, d, plan.Folds.Seed)
	if err != nil {
		log.WithError(err).Error("classifier failed")
		evaluationsTotal.WithLabelValues(modeBatch, "failed").Inc()
		record.TrainTime = FailedTime
		record.PredictionTime = FailedTime
		return record
	}
	evaluationsTotal.WithLabelValues(modeBatch, "ok").Inc()
	phaseDuration.WithLabelValues(modeBatch, "fit").Observe(trainTime.Seconds())
	phaseDuration.WithLabelValues(modeBatch, "predict").Observe(predictTime.Seconds())

	record.TrainTime = trainTime.Seconds()
	record.PredictionTime = predictTime.Seconds()
	for i, m := range plan.Metrics {
		v, err := computeMetric(m, fold.YTest, predictions, fold.Labels)
		if err != nil {
			log.WithError(err).WithField("metric", m.Name).Warn("metric failed, recording 0")
			continue
		}
		record.Metrics[i] = v
	}
	return record
}

// computeMetric evaluates one metric, turning a panic into an error.
func computeMetric(m evaluation.Metric, yTrue, yPred, labels []int) (v float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v, err = 0, fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return m.Func(yTrue, yPred, labels)
}

// fitPredict builds, trains and queries one classifier. Panics are turned
// into errors carrying the stack.
func fitPredict(fold evaluation.Fold, d models.Descriptor, seed int64) (predictions []int, trainTime, predictTime time.Duration, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()

	clf, err := d.NewBatch(fold.NFeatures(), len(fold.Labels), seed)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to create classifier: %w", err)
	}

	var classes []int
	if d.AcceptsClasses {
		classes = fold.Labels
	}

	start := time.Now()
	if err := clf.Fit(fold.XTrain, fold.YTrain, classes); err != nil {
		return nil, 0, 0, fmt.Errorf("fit failed: %w", err)
	}
	trainTime = time.Since(start)

	start = time.Now()
	predictions, err = clf.Predict(fold.XTest)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("predict failed: %w", err)
	}
	predictTime = time.Since(start)

	if len(predictions) != len(fold.YTest) {
		return nil, 0, 0, fmt.Errorf("classifier returned %d predictions for %d samples", len(predictions), len(fold.YTest))
	}
	return predictions, trainTime, predictTime, nil
}

func checkpointPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("comparison_%d.csv", n))
}

// writeCheckpoint durably writes checkpoint n before removing n-1.
func writeCheckpoint(dir string, n int, metricNames []string, records []Record) error {
	if err := WriteCSV(checkpointPath(dir, n), metricNames, records); err != nil {
		return err
	}
	checkpointsWritten.Inc()
	if n > 1 {
		if err := os.Remove(checkpointPath(dir, n-1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove previous checkpoint: %w", err)
		}
	}
	return nil
}

// removeCheckpoints deletes numbered checkpoints a previous run left in dir.
func removeCheckpoints(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "comparison_*.csv"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		n := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "comparison_"), ".csv")
		if _, err := strconv.Atoi(n); err != nil {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale checkpoint: %w", err)
		}
	}
	return nil
}

func metricColumns(metrics []evaluation.Metric) []string {
	names := make([]string, len(metrics))
	for i, m := range metrics {
		names[i] = m.Name
	}
	return UniqueNames(names)
}
