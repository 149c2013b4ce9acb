package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/montanaflynn/stats"

	"github.com/sylwekczmil/cacp/internal/comparison"
)

// BoxSummary is the five-number summary drawn as one box of a boxplot.
type BoxSummary struct {
	Algorithm string
	Min       float64
	Q1        float64
	Median    float64
	Q3        float64
	Max       float64
}

func summarizeBox(algorithm string, values []float64) (BoxSummary, error) {
	box := BoxSummary{Algorithm: algorithm}
	data := stats.Float64Data(values)

	var err error
	if box.Min, err = stats.Min(data); err != nil {
		return box, err
	}
	if box.Max, err = stats.Max(data); err != nil {
		return box, err
	}
	if box.Median, err = stats.Median(data); err != nil {
		return box, err
	}
	if len(values) < 2 {
		box.Q1, box.Q3 = box.Median, box.Median
		return box, nil
	}
	q, err := stats.Quartile(data)
	if err != nil {
		return box, err
	}
	box.Q1, box.Q3 = q.Q1, q.Q3
	return box, nil
}

// Boxes summarizes a metric per algorithm, highest median first. With
// perDataset set, each dataset contributes its fold mean instead of every
// fold value.
func Boxes(table *comparison.Table, metric int, perDataset bool) ([]BoxSummary, error) {
	values := make(map[string][]float64)
	if perDataset {
		for _, dataset := range table.Datasets() {
			for a, mean := range datasetMeans(table, dataset, metric) {
				values[a] = append(values[a], mean)
			}
		}
	} else {
		for _, r := range table.Records {
			values[r.Algorithm] = append(values[r.Algorithm], r.Metrics[metric])
		}
	}

	var boxes []BoxSummary
	for _, a := range table.Algorithms() {
		box, err := summarizeBox(a, values[a])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a, err)
		}
		boxes = append(boxes, box)
	}
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Median > boxes[j].Median
	})
	return boxes, nil
}

// Plots writes plot/comparison_<metric>_per_fold and _per_dataset box
// summaries with a text rendering of the boxes.
func Plots(table *comparison.Table, dir string) error {
	plotDir := filepath.Join(dir, "plot")
	for m, metric := range table.MetricNames {
		for _, perDataset := range []bool{false, true} {
			suffix := "_per_fold"
			if perDataset {
				suffix = "_per_dataset"
			}
			boxes, err := Boxes(table, m, perDataset)
			if err != nil {
				return fmt.Errorf("plot %s: %w", metric, err)
			}

			t := &Table{
				Caption: metric + strings.ReplaceAll(suffix, "_", " "),
				Label:   "fig:comparison_" + metricDir(metric) + suffix,
				Header:  []string{"Algorithm", "Min", "Q1", "Median", "Q3", "Max"},
			}
			for _, b := range boxes {
				t.Append(b.Algorithm, raw(b.Min), raw(b.Q1), raw(b.Median), raw(b.Q3), raw(b.Max))
			}
			base := "comparison_" + metricDir(metric) + suffix
			if err := t.Write(plotDir, base); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(plotDir, base+".txt"), []byte(renderBoxes(metric, boxes)), 0o644); err != nil {
				return fmt.Errorf("failed to write plot: %w", err)
			}
		}
	}
	return nil
}

const boxWidth = 50

// renderBoxes draws one horizontal box per algorithm on a shared [0, 1]
// axis: whiskers as '-', the box as '=', the median as '|'.
func renderBoxes(metric string, boxes []BoxSummary) string {
	lo, hi := 0.0, 1.0
	for _, b := range boxes {
		if b.Min < lo {
			lo = b.Min
		}
		if b.Max > hi {
			hi = b.Max
		}
	}
	pos := func(v float64) int {
		p := int((v - lo) / (hi - lo) * (boxWidth - 1))
		return max(0, min(boxWidth-1, p))
	}

	width := len("Algorithm")
	for _, b := range boxes {
		width = max(width, len(b.Algorithm))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", metric)
	for _, b := range boxes {
		line := []byte(strings.Repeat(" ", boxWidth))
		for i := pos(b.Min); i <= pos(b.Max); i++ {
			line[i] = '-'
		}
		for i := pos(b.Q1); i <= pos(b.Q3); i++ {
			line[i] = '='
		}
		line[pos(b.Median)] = '|'
		fmt.Fprintf(&sb, "%-*s %s %s\n", width, b.Algorithm, string(line), round(b.Median, 3))
	}
	fmt.Fprintf(&sb, "%-*s %-*s%s\n", width, "", boxWidth-len(round(hi, 1)), round(lo, 1), round(hi, 1))
	return sb.String()
}

// IncrementalPlots draws, for every dataset and metric, the running metric
// value of each classifier as text line charts under incremental/plot/.
func IncrementalPlots(dir string) error {
	resultDir := filepath.Join(dir, comparison.IncrementalDir, "result")
	classifiers, err := os.ReadDir(resultDir)
	if err != nil {
		return fmt.Errorf("failed to list incremental results: %w", err)
	}

	// dataset -> metric -> classifier -> series
	series := make(map[string]map[string]map[string][]float64)
	var metricOrder []string
	for _, c := range classifiers {
		if !c.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(resultDir, c.Name()))
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".csv" {
				continue
			}
			dataset := strings.TrimSuffix(f.Name(), ".csv")
			names, columns, err := readRunningMetrics(filepath.Join(resultDir, c.Name(), f.Name()))
			if err != nil {
				return err
			}
			if metricOrder == nil {
				metricOrder = names
			}
			if series[dataset] == nil {
				series[dataset] = make(map[string]map[string][]float64)
			}
			for i, name := range names {
				if series[dataset][name] == nil {
					series[dataset][name] = make(map[string][]float64)
				}
				series[dataset][name][c.Name()] = columns[i]
			}
		}
	}

	plotDir := filepath.Join(dir, comparison.IncrementalDir, "plot")
	if err := os.MkdirAll(plotDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", plotDir, err)
	}
	for dataset, byMetric := range series {
		for _, metric := range metricOrder {
			byClassifier := byMetric[metric]
			if len(byClassifier) == 0 {
				continue
			}
			path := filepath.Join(plotDir, dataset+"_"+metricDir(metric)+".txt")
			if err := os.WriteFile(path, []byte(renderLines(dataset, metric, byClassifier)), 0o644); err != nil {
				return fmt.Errorf("failed to write plot: %w", err)
			}
		}
	}
	return nil
}

func renderLines(dataset, metric string, byClassifier map[string][]float64) string {
	names := make([]string, 0, len(byClassifier))
	for name := range byClassifier {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		values := finite(byClassifier[name])
		if len(values) == 0 {
			continue
		}
		sb.WriteString(asciigraph.Plot(values,
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.Caption(fmt.Sprintf("%s %s: %s", dataset, metric, name)),
		))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// finite drops NaN and infinite values, which the chart cannot scale.
func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// readRunningMetrics returns the metric names of a per-sample result file
// and their columns.
func readRunningMetrics(path string) ([]string, [][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(header) < 3 {
		return nil, nil, fmt.Errorf("%w: %s has no metric columns", comparison.ErrMalformedResult, path)
	}
	names := header[3:]
	columns := make([][]float64, len(names))
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		for i := range names {
			v, err := strconv.ParseFloat(row[3+i], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", path, err)
			}
			columns[i] = append(columns[i], v)
		}
	}
	return names, columns, nil
}
