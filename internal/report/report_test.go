package report

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylwekczmil/cacp/internal/comparison"
	"github.com/sylwekczmil/cacp/internal/data"
	"github.com/sylwekczmil/cacp/internal/models"
)

// sampleTable has three algorithms on three datasets with four folds each.
// A leads on d1 and d2, B leads on d3, C is last everywhere.
func sampleTable() *comparison.Table {
	base := map[string]map[string]float64{
		"d1": {"A": 0.9, "B": 0.8, "C": 0.6},
		"d2": {"A": 0.85, "B": 0.75, "C": 0.5},
		"d3": {"A": 0.7, "B": 0.85, "C": 0.4},
	}
	times := map[string]float64{"A": 2, "B": 0.5, "C": 1}

	table := &comparison.Table{MetricNames: []string{"Accuracy", "F1"}}
	for _, d := range []string{"d1", "d2", "d3"} {
		for _, a := range []string{"A", "B", "C"} {
			for fold := 1; fold <= 4; fold++ {
				v := base[d][a] - 0.01*float64(fold)
				table.Records = append(table.Records, comparison.Record{
					Dataset:         d,
					Algorithm:       a,
					NumberOfClasses: 2,
					TrainSize:       30,
					TestSize:        10,
					CVIndex:         fold,
					TrainTime:       times[a],
					PredictionTime:  times[a] / 10,
					Metrics:         []float64{v, v - 0.05},
				})
			}
		}
	}
	return table
}

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(logger)
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWilcoxonExact(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	y := make([]float64, len(x))

	statistic, p, err := Wilcoxon(x, y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, statistic)
	assert.InDelta(t, 2.0/1024, p, 1e-12)

	// Swapping the samples mirrors the ranks and keeps the p value.
	_, pSwapped, err := Wilcoxon(y, x)
	require.NoError(t, err)
	assert.InDelta(t, p, pSwapped, 1e-12)
}

func TestWilcoxonIdenticalSeries(t *testing.T) {
	x := []float64{0.5, 0.6, 0.7}
	statistic, p, err := Wilcoxon(x, x)
	require.NoError(t, err)
	assert.Equal(t, 0.0, statistic)
	assert.Equal(t, 1.0, p)
}

func TestWilcoxonNormalApproximation(t *testing.T) {
	// Balanced tied differences put the statistic on the mean.
	_, p, err := Wilcoxon([]float64{1, 0, 2, 0}, []float64{0, 1, 0, 2})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p, 1e-12)

	// Sixty distinct positive differences are far beyond the exact limit.
	x := make([]float64, 60)
	y := make([]float64, 60)
	for i := range x {
		x[i] = float64(i + 1)
	}
	statistic, p, err := Wilcoxon(x, y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, statistic)
	assert.Less(t, p, 1e-6)
}

func TestWilcoxonMismatch(t *testing.T) {
	_, _, err := Wilcoxon([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrSampleMismatch)
}

func TestExactPMatchesEnumeration(t *testing.T) {
	n := 6
	total := 1 << n
	for w := 0; w <= n*(n+1)/2; w++ {
		count := 0
		for mask := 0; mask < total; mask++ {
			sum := 0
			for r := 1; r <= n; r++ {
				if mask&(1<<(r-1)) != 0 {
					sum += r
				}
			}
			if sum <= w {
				count++
			}
		}
		want := math.Min(1, 2*float64(count)/float64(total))
		assert.InDelta(t, want, exactP(n, float64(w)), 1e-12, "w=%d", w)
	}
}

func TestSummarizeOrdersByMetrics(t *testing.T) {
	summaries := Summarize(sampleTable())
	require.Len(t, summaries, 3)

	assert.Equal(t, "A", summaries[0].Algorithm)
	assert.Equal(t, "B", summaries[1].Algorithm)
	assert.Equal(t, "C", summaries[2].Algorithm)
	for _, s := range summaries {
		assert.Greater(t, s.Std[0], 0.0)
		assert.InDelta(t, s.Mean[0]-0.05, s.Mean[1], 1e-9)
	}
}

func TestLessDescFallsThroughToSecondMetric(t *testing.T) {
	assert.True(t, lessDesc([]float64{0.5, 0.9}, []float64{0.5, 0.8}))
	assert.False(t, lessDesc([]float64{0.5, 0.8}, []float64{0.5, 0.9}))
	assert.False(t, lessDesc([]float64{0.5, 0.8}, []float64{0.5, 0.8}))
}

func TestCountPlaces(t *testing.T) {
	places, err := CountPlaces(sampleTable(), "Accuracy")
	require.NoError(t, err)
	require.Equal(t, 3, places.NPlaces)

	assert.Equal(t, []int{2, 1, 0}, places.Counts["A"])
	assert.Equal(t, []int{1, 2, 0}, places.Counts["B"])
	assert.Equal(t, []int{0, 0, 3}, places.Counts["C"])

	for p := 0; p < places.NPlaces; p++ {
		total := 0
		for _, counts := range places.Counts {
			total += counts[p]
		}
		assert.Equal(t, 3, total, "every dataset awards place %d once", p+1)
	}

	_, err = CountPlaces(sampleTable(), "missing")
	assert.Error(t, err)
}

func TestBoxesQuartiles(t *testing.T) {
	box, err := summarizeBox("A", []float64{5, 1, 4, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, BoxSummary{Algorithm: "A", Min: 1, Q1: 1.5, Median: 3, Q3: 4.5, Max: 5}, box)

	single, err := summarizeBox("B", []float64{0.7})
	require.NoError(t, err)
	assert.Equal(t, 0.7, single.Q1)
	assert.Equal(t, 0.7, single.Q3)

	boxes, err := Boxes(sampleTable(), 0, true)
	require.NoError(t, err)
	require.Len(t, boxes, 3)
	for i := 1; i < len(boxes); i++ {
		assert.GreaterOrEqual(t, boxes[i-1].Median, boxes[i].Median)
	}
}

func TestMeanTimesSortedAscending(t *testing.T) {
	times := MeanTimes(sampleTable())
	require.Len(t, times, 3)
	assert.Equal(t, "B", times[0].Algorithm)
	assert.Equal(t, "C", times[1].Algorithm)
	assert.Equal(t, "A", times[2].Algorithm)
	assert.InDelta(t, 0.05, times[0].PredictionTime, 1e-12)
}

func TestGenerateWritesEveryReport(t *testing.T) {
	dir := t.TempDir()
	table := sampleTable()
	require.NoError(t, comparison.WriteCSV(filepath.Join(dir, "comparison.csv"), table.MetricNames, table.Records))

	got, err := Generate(dir, quietLogger())
	require.NoError(t, err)
	assert.Len(t, got.Records, len(table.Records))

	for _, name := range []string{
		"comparison_result.csv",
		"comparison_result.tex",
		"plot/comparison_accuracy_per_fold.csv",
		"plot/comparison_f1_per_dataset.csv",
		"plot/comparison_f1_per_dataset.txt",
		"winner/accuracy/comparison_result.csv",
		"winner/comparison.csv",
		"winner/comparison.tex",
		"time/comparison.csv",
		"wilcoxon/accuracy/comparison_A_result.csv",
		"wilcoxon/comparison_B.csv",
		"wilcoxon/comparison_C.tex",
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	rows := readRows(t, filepath.Join(dir, "comparison_result.csv"))
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"", "Algorithm", "Accuracy", "Accuracy +/-", "F1", "F1 +/-"}, rows[0])
	assert.Equal(t, []string{"1", "A"}, rows[1][:2])

	winners := readRows(t, filepath.Join(dir, "winner", "comparison.csv"))
	assert.Equal(t, []string{"", "Algorithm", "Accuracy 1st", "Accuracy 2nd", "Accuracy 3rd", "F1 1st", "F1 2nd", "F1 3rd"}, winners[0])
	assert.Equal(t, []string{"1", "A", "2", "1", "0", "2", "1", "0"}, winners[1])

	tex, err := os.ReadFile(filepath.Join(dir, "comparison_result.tex"))
	require.NoError(t, err)
	assert.Contains(t, string(tex), "\\begin{tabular}")
	assert.Contains(t, string(tex), "$\\pm$")
}

func TestGenerateMissingComparison(t *testing.T) {
	_, err := Generate(t.TempDir(), quietLogger())
	assert.Error(t, err)
}

func TestWilcoxonTablesPValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WilcoxonTables(sampleTable(), dir))

	rows := readRows(t, filepath.Join(dir, "wilcoxon", "comparison_A.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"", "Algorithm", "Accuracy p-value", "F1 p-value"}, rows[0])
	assert.Equal(t, "B", rows[1][1])
	assert.Equal(t, "C", rows[2][1])

	tex, err := os.ReadFile(filepath.Join(dir, "wilcoxon", "comparison_A.tex"))
	require.NoError(t, err)
	// A against B: eight wins, four losses, not significant.
	assert.Contains(t, string(tex), "\\textbf{")
}

func TestIncrementalPlots(t *testing.T) {
	dir := t.TempDir()
	for _, classifier := range []string{"OnlineGNB", "Majority"} {
		resultDir := filepath.Join(dir, comparison.IncrementalDir, "result", classifier)
		require.NoError(t, os.MkdirAll(resultDir, 0o755))
		content := "index,y_true,y_pred,Accuracy,F1\n0,1,,0,0\n1,0,1,0,0\n2,1,1,0.5,0.4\n3,1,1,0.66,0.6\n"
		require.NoError(t, os.WriteFile(filepath.Join(resultDir, "stream.csv"), []byte(content), 0o644))
	}

	require.NoError(t, IncrementalPlots(dir))

	plot, err := os.ReadFile(filepath.Join(dir, comparison.IncrementalDir, "plot", "stream_accuracy.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(plot), "stream Accuracy: Majority")
	assert.Contains(t, string(plot), "stream Accuracy: OnlineGNB")
	assert.FileExists(t, filepath.Join(dir, comparison.IncrementalDir, "plot", "stream_f1.txt"))
}

func TestIncrementalPlotsWithoutResults(t *testing.T) {
	assert.Error(t, IncrementalPlots(t.TempDir()))
}

func TestDatasetInfo(t *testing.T) {
	ds, err := data.Blobs(data.BlobSpec{Name: "blobs", PerClass: []int{10, 5}, Features: 3}, 1)
	require.NoError(t, err)

	dir := t.TempDir()
	table, err := DatasetInfo([]data.Dataset{ds}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dataset", "Instances", "Features", "Classes"}, table.Header)
	assert.Equal(t, [][]string{{"blobs", "15", "3", "2"}}, table.Rows)
	assert.FileExists(t, filepath.Join(dir, "info", "datasets.tex"))
}

func TestClassifierInfoSortedAndDeduplicated(t *testing.T) {
	var descriptors []models.Descriptor
	for _, name := range []string{"rf", "majority", "svc", "online_gnb", "rf"} {
		d, err := models.Resolve(name, "", nil)
		require.NoError(t, err)
		descriptors = append(descriptors, d)
	}

	table, err := ClassifierInfo(descriptors, t.TempDir())
	require.NoError(t, err)
	require.Len(t, table.Rows, 4)

	var order []string
	for _, row := range table.Rows {
		order = append(order, row[0]+"/"+row[3])
	}
	assert.Equal(t, []string{"Majority/incremental", "OnlineGNB/incremental", "RF/offline", "SVC/offline"}, order)
	assert.Equal(t, "Random forest", table.Rows[2][1])
}

func TestLaTeXEscapesCells(t *testing.T) {
	table := &Table{Caption: "50% of a_b", Header: []string{"Algorithm", "F1"}}
	table.Append("A&B", "0.5$\\pm$0.1")
	table.Append("C", "\\textbf{0.2}")

	tex := table.LaTeX()
	assert.Contains(t, tex, "\\caption{50\\% of a b}")
	assert.Contains(t, tex, "1 & A\\&B & 0.5$\\pm$0.1 \\\\")
	assert.Contains(t, tex, "2 & C & \\textbf{0.2} \\\\")
	assert.True(t, strings.HasSuffix(tex, "\\end{table}\n"))
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "0.125", round(0.1245, 3))
	assert.Equal(t, "1.000", round(1, 3))
	assert.Equal(t, "0.5", raw(0.5))
}

// Test equal first places are ordered by the remaining places
func TestWinnersBreakTiesOnLaterPlaces(t *testing.T) {
	base := map[string]map[string]float64{
		"d1": {"A": 0.9, "B": 0.8, "C": 0.7},
		"d2": {"A": 0.5, "B": 0.9, "C": 0.8},
	}
	table := &comparison.Table{MetricNames: []string{"Accuracy"}}
	for _, d := range []string{"d1", "d2"} {
		for _, a := range []string{"A", "B", "C"} {
			table.Records = append(table.Records, comparison.Record{
				Dataset:   d,
				Algorithm: a,
				CVIndex:   1,
				Metrics:   []float64{base[d][a]},
			})
		}
	}

	dir := t.TempDir()
	require.NoError(t, Winners(table, dir))

	rows := readRows(t, filepath.Join(dir, "winner", "accuracy", "comparison_result.csv"))
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"1", "B", "1", "1", "0"}, rows[1])
	assert.Equal(t, []string{"2", "A", "1", "0", "1"}, rows[2])
	assert.Equal(t, []string{"3", "C", "0", "1", "1"}, rows[3])

	combined := readRows(t, filepath.Join(dir, "winner", "comparison.csv"))
	assert.Equal(t, "B", combined[1][1])
}
