package commander

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"github.com/sylwekczmil/cacp/internal/comparison"
	"github.com/sylwekczmil/cacp/internal/config"
	"github.com/sylwekczmil/cacp/internal/evaluation"
	"github.com/sylwekczmil/cacp/internal/experiment"
	"github.com/sylwekczmil/cacp/internal/jobs"
	"github.com/sylwekczmil/cacp/internal/logging"
	"github.com/sylwekczmil/cacp/internal/models"
	"github.com/sylwekczmil/cacp/internal/persistence"
	"github.com/sylwekczmil/cacp/internal/report"
)

// Commander is the terminal front end: it starts experiments as jobs,
// renders their progress and prints result tables.
type Commander struct {
	out        io.Writer
	jobManager *jobs.Manager
	interval   time.Duration

	green  func(a ...any) string
	red    func(a ...any) string
	yellow func(a ...any) string
	cyan   func(a ...any) string
}

func NewCommander(out io.Writer) *Commander {
	return &Commander{
		out:        out,
		jobManager: jobs.NewManager(),
		interval:   200 * time.Millisecond,
		green:      color.New(color.FgGreen).SprintFunc(),
		red:        color.New(color.FgRed).SprintFunc(),
		yellow:     color.New(color.FgYellow).SprintFunc(),
		cyan:       color.New(color.FgCyan).SprintFunc(),
	}
}

func (c *Commander) Jobs() *jobs.Manager {
	return c.jobManager
}

// RunExperiment runs cfg in the background and draws a progress bar until
// it finishes. Cancelling ctx stops the run after the current dataset.
func (c *Commander) RunExperiment(ctx context.Context, cfg *config.Config) (*experiment.ExperimentResult, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	opts := []experiment.Option{experiment.WithLogger(logging.ForExperiment(logger, cfg.Name))}
	if cfg.Registry != "" {
		registry, err := persistence.OpenRegistry(cfg.Registry)
		if err != nil {
			return nil, err
		}
		defer registry.Close()
		opts = append(opts, experiment.WithRegistry(registry))
	}

	fmt.Fprintf(c.out, "%s %s (%s) -> %s\n", c.cyan("Running"), cfg.Name, cfg.Type, cfg.OutputDir)
	job := c.jobManager.Start(ctx, cfg.Type, cfg.Name, func(ctx context.Context, job *jobs.Job) (any, error) {
		runner := experiment.NewRunner(cfg, append(opts, experiment.WithProgress(job.SetProgress))...)
		return runner.Run(ctx)
	})
	c.watch(ctx, job)

	result, _ := job.GetResult().(*experiment.ExperimentResult)
	switch job.GetStatus() {
	case jobs.JobCancelled:
		fmt.Fprintln(c.out, c.yellow("Cancelled, finished datasets are kept in the last checkpoint"))
		return result, context.Canceled
	case jobs.JobFailed:
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗ Failed:"), job.GetError())
		return result, job.GetError()
	}

	fmt.Fprintf(c.out, "%s %d records written to %s\n", c.green("✓"), len(result.Records), result.OutputDir)
	if result.Summary != nil {
		result.Summary.Print(c.out)
	}
	return result, nil
}

// watch redraws the progress line until the job is done.
func (c *Commander) watch(ctx context.Context, job *jobs.Job) {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	cancelled := ctx.Done()
	for {
		select {
		case <-job.Done():
			c.drawProgress(bar, job)
			fmt.Fprintln(c.out)
			return
		case <-cancelled:
			cancelled = nil
			fmt.Fprintln(c.out)
			fmt.Fprintln(c.out, c.yellow("Stopping after the current dataset..."))
		case <-ticker.C:
			c.drawProgress(bar, job)
		}
	}
}

func (c *Commander) drawProgress(bar progress.Model, job *jobs.Job) {
	completed, total := job.GetCounts()
	fmt.Fprintf(c.out, "\r%s %d/%d", bar.ViewAs(job.GetProgress()), completed, total)
}

// Report regenerates every report of a finished run in dir.
func (c *Commander) Report(dir string, incremental bool, logger *logrus.Entry) error {
	generate := report.Generate
	if incremental {
		generate = report.GenerateIncremental
	}
	table, err := generate(dir, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s reports written to %s\n", c.green("✓"), dir)
	summary := &report.Table{Header: append([]string{"Algorithm"}, table.MetricNames...)}
	for _, s := range report.Summarize(table) {
		row := []string{s.Algorithm}
		for m := range table.MetricNames {
			row = append(row, fmt.Sprintf("%.3f ± %.3f", s.Mean[m], s.Std[m]))
		}
		summary.Append(row...)
	}
	summary.Print(c.out)
	return nil
}

// Info writes and prints the dataset and classifier tables of cfg without
// running anything.
func (c *Commander) Info(ctx context.Context, cfg *config.Config) error {
	setup, err := experiment.Prepare(cfg)
	if err != nil {
		return err
	}

	var datasets *report.Table
	if cfg.Type == config.TypeIncremental {
		datasets, err = report.StreamInfo(ctx, setup.Streams, cfg.OutputDir)
	} else {
		datasets, err = report.DatasetInfo(setup.Datasets, cfg.OutputDir)
	}
	if err != nil {
		return err
	}
	classifiers, err := report.ClassifierInfo(comparison.UniqueDescriptors(setup.Classifiers), cfg.OutputDir)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, c.cyan("Datasets"))
	datasets.Print(c.out)
	fmt.Fprintln(c.out, c.cyan("Classifiers"))
	classifiers.Print(c.out)
	return nil
}

// Catalog prints every available classifier with its default parameters and
// the metric names.
func (c *Commander) Catalog() {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Config name", "Acronym", "Type", "Library", "Parameters"})
	names := models.Available()
	for i, d := range models.Catalog() {
		table.Append([]string{
			names[i],
			d.Name,
			d.Kind.String(),
			d.Library,
			formatParams(d.Params),
		})
	}
	table.Render()
	fmt.Fprintf(c.out, "%s %s\n", c.cyan("Metrics:"), strings.Join(evaluation.AvailableMetrics(), ", "))
}

func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}

// Experiments prints the recorded experiment history.
func (c *Commander) Experiments(ctx context.Context, registryPath string) error {
	if registryPath == "" {
		return errors.New("no registry configured, set --registry or CACP_REGISTRY")
	}
	registry, err := persistence.OpenRegistry(registryPath)
	if err != nil {
		return err
	}
	defer registry.Close()

	experiments, err := registry.List(ctx)
	if err != nil {
		return err
	}
	if len(experiments) == 0 {
		fmt.Fprintln(c.out, c.yellow("No experiments recorded"))
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"ID", "Name", "Type", "Status", "Created", "Datasets", "Classifiers", "Path"})
	for _, e := range experiments {
		table.Append([]string{
			e.ID[:8],
			e.Name,
			string(e.Type),
			c.status(e.Status),
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			strings.Join(e.Datasets, ", "),
			strings.Join(e.Classifiers, ", "),
			e.Path,
		})
	}
	table.Render()
	return nil
}

func (c *Commander) status(s persistence.ExperimentStatus) string {
	switch s {
	case persistence.StatusFinished:
		return c.green(string(s))
	case persistence.StatusFailed:
		return c.red(string(s))
	default:
		return c.yellow(string(s))
	}
}

// DemoConfig compares the SVC, tree and forest trio on the bundled
// reference datasets with 10-fold DOB-SCV.
func DemoConfig(outputDir string) *config.Config {
	cfg := config.Default()
	cfg.Name = "demo"
	cfg.OutputDir = outputDir
	cfg.Datasets = []config.DatasetConfig{{Source: config.SourceReference}}
	cfg.Classifiers = []config.ClassifierConfig{{Name: "svc"}, {Name: "dt"}, {Name: "rf"}}
	return cfg
}
