package comparison

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sylwekczmil/cacp/internal/data"
	"github.com/sylwekczmil/cacp/internal/evaluation"
	"github.com/sylwekczmil/cacp/internal/models"
)

// IncrementalPlan describes one prequential comparison.
type IncrementalPlan struct {
	Streams     []data.Stream
	Classifiers []models.Descriptor
	Metrics     []evaluation.IncrementalMetric
	OutputDir   string
	Seed        int64
}

func (p IncrementalPlan) Validate() error {
	if len(p.Streams) == 0 {
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
		if d.Kind != models.Incremental {
			return fmt.Errorf("%w: %s is not an incremental classifier", ErrInvalidPlan, d.Name)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
	}
	return nil
}

// IncrementalDir is the subdirectory of the output directory holding
// incremental results.
const IncrementalDir = "incremental"

// ResultPath is where the per-sample rows of one (classifier, dataset) pair
// are written.
func ResultPath(outputDir, classifier, dataset string) string {
	return filepath.Join(outputDir, IncrementalDir, "result", SafeName(classifier), SafeName(dataset)+".csv")
}

// IncrementalRunner replays every stream through every incremental
// classifier, scoring each labeled sample before learning from it.
type IncrementalRunner struct {
	options
}

func NewIncrementalRunner(opts ...Option) *IncrementalRunner {
	return &IncrementalRunner{options: newOptions(opts)}
}

// Run returns one summary record per (dataset, classifier) pair with the
// final metric values and the accumulated predict and learn times. The
// summary is rewritten to incremental/comparison.csv after each dataset.
func (r *IncrementalRunner) Run(ctx context.Context, plan IncrementalPlan) ([]Record, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	dir := filepath.Join(plan.OutputDir, IncrementalDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	classifiers := UniqueDescriptors(plan.Classifiers)
	metricNames := incrementalColumns(plan.Metrics)
	tracker := newProgress(len(plan.Streams)*len(classifiers), r.progress)

	names := make([]string, len(plan.Streams))
	for i, stream := range plan.Streams {
		names[i] = stream.Name()
	}
	names = UniqueSafeNames(names)

	var records []Record
	for k, stream := range plan.Streams {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		name := names[k]
		log := r.log.WithField("dataset", name)
		log.Info("describing stream")
		// one sequential pass so the label set is known before workers start
		info, err := data.Describe(ctx, stream)
		if err != nil {
			return records, fmt.Errorf("dataset %s: %w", name, err)
		}

		results := make([]Record, len(classifiers))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(len(classifiers))
		for i, d := range classifiers {
			g.Go(func() error {
				record, err := r.runPair(gctx, stream, name, info, d, plan, metricNames)
				if err != nil && isIOError(err) {
					return err
				}
				results[i] = record
				tracker.add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return records, err
		}

		records = append(records, results...)
		SortRecords(records)
		if err := WriteCSV(filepath.Join(dir, "comparison.csv"), metricNames, records); err != nil {
			return records, err
		}
		checkpointsWritten.Inc()
	}
	return records, nil
}

// ioError marks failures writing a result file; those abort the run instead
// of being isolated to the pair.
type ioError struct {
	err error
}

func (e *ioError) Error() string {
	return e.err.Error()
}

func (e *ioError) Unwrap() error {
	return e.err
}

func isIOError(err error) bool {
	var target *ioError
	return errors.As(err, &target)
}

// runPair evaluates one classifier on one stream. Classifier failures are
// logged and returned with a zeroed record; only an *ioError should stop
// the run.
func (r *IncrementalRunner) runPair(ctx context.Context, stream data.Stream, dataset string, info data.StreamInfo, d models.Descriptor, plan IncrementalPlan, metricNames []string) (Record, error) {
	record := Record{
		Dataset:         dataset,
		Algorithm:       d.Name,
		NumberOfClasses: len(info.Labels),
		CVIndex:         1,
		Metrics:         make([]float64, len(plan.Metrics)),
	}
	log := r.log.WithFields(logrus.Fields{
		"dataset":   dataset,
		"algorithm": d.Name,
	})

	path := ResultPath(plan.OutputDir, d.Name, dataset)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return record, &ioError{fmt.Errorf("failed to create result directory: %w", err)}
	}
	file, err := os.Create(path)
	if err != nil {
		return record, &ioError{fmt.Errorf("failed to create %s: %w", path, err)}
	}
	defer file.Close()

	buffered := bufio.NewWriter(file)
	out := csv.NewWriter(buffered)
	header := append([]string{"index", "y_true", "y_pred"}, metricNames...)
	if err := out.Write(header); err != nil {
		return record, &ioError{err}
	}

	run := &prequential{
		descriptor: d,
		info:       info,
		metrics:    plan.Metrics,
		seed:       plan.Seed,
		out:        out,
	}
	runErr := run.execute(ctx, stream)

	out.Flush()
	if err := out.Error(); err != nil {
		return record, &ioError{fmt.Errorf("failed to write %s: %w", path, err)}
	}
	if err := buffered.Flush(); err != nil {
		return record, &ioError{fmt.Errorf("failed to write %s: %w", path, err)}
	}

	if runErr != nil {
		if isIOError(runErr) {
			return record, runErr
		}
		log.WithError(runErr).Error("classifier failed")
		evaluationsTotal.WithLabelValues(modeIncremental, "failed").Inc()
		record.TrainTime = FailedTime
		record.PredictionTime = FailedTime
		return record, runErr
	}

	evaluationsTotal.WithLabelValues(modeIncremental, "ok").Inc()
	phaseDuration.WithLabelValues(modeIncremental, "learn").Observe(run.learnTime.Seconds())
	phaseDuration.WithLabelValues(modeIncremental, "predict").Observe(run.predictTime.Seconds())

	record.TrainSize = run.learned
	record.TestSize = run.scored
	record.TrainTime = run.learnTime.Seconds()
	record.PredictionTime = run.predictTime.Seconds()
	for i, acc := range run.accumulators {
		record.Metrics[i] = acc.Value()
	}
	log.WithField("samples", run.learned).Debug("stream finished")
	return record, nil
}

// prequential holds the state of one test-then-train pass.
type prequential struct {
	descriptor models.Descriptor
	info       data.StreamInfo
	metrics    []evaluation.IncrementalMetric
	seed       int64
	out        *csv.Writer

	model        models.IncrementalClassifier
	scorer       models.ProbabilisticClassifier
	accumulators []evaluation.Accumulator

	learned     int
	scored      int
	learnTime   time.Duration
	predictTime time.Duration
}

func (p *prequential) execute(ctx context.Context, stream data.Stream) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()

	p.model, err = p.descriptor.NewIncremental(stream.Features(), len(p.info.Labels), p.seed)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	p.accumulators = make([]evaluation.Accumulator, len(p.metrics))
	wantsScores := false
	for i, m := range p.metrics {
		p.accumulators[i] = m.New(p.info.Labels)
		if !p.accumulators[i].RequiresLabels() {
			wantsScores = true
		}
	}
	// decided once for the whole stream
	if scorer, ok := p.model.(models.ProbabilisticClassifier); ok && wantsScores && p.descriptor.Prediction == models.Probabilistic {
		p.scorer = scorer
	}

	reader, err := stream.Open(ctx)
	if err != nil {
		return &ioError{fmt.Errorf("failed to open stream: %w", err)}
	}
	defer reader.Close()

	pending := make(map[string]evaluation.Prediction)
	for {
		sample, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read sample: %w", err)
		}

		if !sample.Labeled {
			pred, ok, err := p.predict(sample.X)
			if err != nil {
				return err
			}
			if ok {
				pending[sample.ID] = pred
			}
			continue
		}

		pred, ok := pending[sample.ID]
		if ok {
			delete(pending, sample.ID)
		} else if pred, ok, err = p.predict(sample.X); err != nil {
			return err
		}

		if ok {
			for i, acc := range p.accumulators {
				update := pred
				if acc.RequiresLabels() {
					update = evaluation.Prediction{Label: pred.Label}
				}
				if err := acc.Update(sample.Y, update); err != nil {
					return fmt.Errorf("metric %s: %w", p.metrics[i].Name, err)
				}
			}
			p.scored++
		}

		start := time.Now()
		if err := p.model.LearnOne(sample.X, sample.Y); err != nil {
			return fmt.Errorf("learn failed at sample %d: %w", p.learned, err)
		}
		p.learnTime += time.Since(start)

		if err := p.writeRow(sample.Y, pred, ok); err != nil {
			return err
		}
		p.learned++
	}
}

// predict queries the model. A model that has not learned anything yet
// yields ok=false rather than an error.
func (p *prequential) predict(x []float64) (evaluation.Prediction, bool, error) {
	start := time.Now()
	defer func() {
		p.predictTime += time.Since(start)
	}()

	if p.scorer != nil {
		proba, err := p.scorer.PredictProbaOne(x)
		if errors.Is(err, models.ErrNotFitted) {
			return evaluation.Prediction{}, false, nil
		}
		if err != nil {
			return evaluation.Prediction{}, false, fmt.Errorf("predict failed: %w", err)
		}
		return evaluation.Prediction{Label: mostLikely(proba, p.info.Labels), Proba: proba}, true, nil
	}

	label, err := p.model.PredictOne(x)
	if errors.Is(err, models.ErrNotFitted) {
		return evaluation.Prediction{}, false, nil
	}
	if err != nil {
		return evaluation.Prediction{}, false, fmt.Errorf("predict failed: %w", err)
	}
	return evaluation.Prediction{Label: label}, true, nil
}

func (p *prequential) writeRow(yTrue int, pred evaluation.Prediction, predicted bool) error {
	row := make([]string, 0, 3+len(p.accumulators))
	row = append(row, strconv.Itoa(p.learned), strconv.Itoa(yTrue))
	if predicted {
		row = append(row, strconv.Itoa(pred.Label))
	} else {
		row = append(row, "")
	}
	for _, acc := range p.accumulators {
		row = append(row, formatFloat(acc.Value()))
	}
	if err := p.out.Write(row); err != nil {
		return &ioError{fmt.Errorf("failed to write row: %w", err)}
	}
	return nil
}

// mostLikely picks the highest scored label, the smallest label on ties.
// Labels the model has never seen score 0.
func mostLikely(proba map[int]float64, labels []int) int {
	best, bestScore := 0, -1.0
	for _, label := range labels {
		if score := proba[label]; score > bestScore {
			best, bestScore = label, score
		}
	}
	return best
}

func incrementalColumns(metrics []evaluation.IncrementalMetric) []string {
	names := make([]string, len(metrics))
	for i, m := range metrics {
		names[i] = m.Name
	}
	return UniqueNames(names)
}
