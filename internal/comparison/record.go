package comparison

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// FailedTime is written as train and prediction time of a classifier that
// failed on a fold, so it ranks slowest in the time reports.
const FailedTime = 1e6

var ErrMalformedResult = errors.New("malformed comparison file")

var baseColumns = []string{
	"Dataset",
	"Algorithm",
	"Number of classes",
	"Train size",
	"Test size",
	"CV index",
	"Train time [s]",
	"Prediction time [s]",
}

// Record is one row of comparison.csv: a classifier evaluated on one fold of
// one dataset. Metrics follow the order of the run's metric names.
type Record struct {
	Dataset         string
	Algorithm       string
	NumberOfClasses int
	TrainSize       int
	TestSize        int
	CVIndex         int
	TrainTime       float64
	PredictionTime  float64
	Metrics         []float64
}

func (r Record) Failed() bool {
	return r.TrainTime >= FailedTime
}

// Table is a parsed comparison.csv.
type Table struct {
	MetricNames []string
	Records     []Record
}

func Header(metricNames []string) []string {
	header := append([]string(nil), baseColumns...)
	return append(header, metricNames...)
}

func (r Record) row() []string {
	row := []string{
		r.Dataset,
		r.Algorithm,
		strconv.Itoa(r.NumberOfClasses),
		strconv.Itoa(r.TrainSize),
		strconv.Itoa(r.TestSize),
		strconv.Itoa(r.CVIndex),
		formatFloat(r.TrainTime),
		formatFloat(r.PredictionTime),
	}
	for _, v := range r.Metrics {
		row = append(row, formatFloat(v))
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// SortRecords orders records by dataset, algorithm and fold index.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Dataset != b.Dataset {
			return a.Dataset < b.Dataset
		}
		if a.Algorithm != b.Algorithm {
			return a.Algorithm < b.Algorithm
		}
		return a.CVIndex < b.CVIndex
	})
}

// WriteCSV writes records to path through a synced temporary file in the
// same directory and renames it into place, so readers never see a partial
// file.
func WriteCSV(path string, metricNames []string, records []Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	writer := csv.NewWriter(tmp)
	if err := writer.Write(Header(metricNames)); err != nil {
		cleanup()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(record.row()); err != nil {
			cleanup()
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		cleanup()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open comparison: %w", err)
	}
	defer file.Close()
	return ParseCSV(file)
}

func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header: %v", ErrMalformedResult, err)
	}
	if len(header) < len(baseColumns) {
		return nil, fmt.Errorf("%w: expected at least %d columns, got %d", ErrMalformedResult, len(baseColumns), len(header))
	}
	for i, name := range baseColumns {
		if header[i] != name {
			return nil, fmt.Errorf("%w: column %d is %q, expected %q", ErrMalformedResult, i+1, header[i], name)
		}
	}

	table := &Table{MetricNames: append([]string(nil), header[len(baseColumns):]...)}
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedResult, line, err)
		}
		record, err := parseRecord(row, len(table.MetricNames))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedResult, line, err)
		}
		table.Records = append(table.Records, record)
	}
	return table, nil
}

func parseRecord(row []string, nMetrics int) (Record, error) {
	record := Record{Dataset: row[0], Algorithm: row[1]}

	ints := []*int{&record.NumberOfClasses, &record.TrainSize, &record.TestSize, &record.CVIndex}
	for i, dst := range ints {
		v, err := strconv.Atoi(row[2+i])
		if err != nil {
			return Record{}, fmt.Errorf("column %q: %w", baseColumns[2+i], err)
		}
		*dst = v
	}

	floats := []*float64{&record.TrainTime, &record.PredictionTime}
	for i, dst := range floats {
		v, err := strconv.ParseFloat(row[6+i], 64)
		if err != nil {
			return Record{}, fmt.Errorf("column %q: %w", baseColumns[6+i], err)
		}
		*dst = v
	}

	record.Metrics = make([]float64, nMetrics)
	for i := range record.Metrics {
		v, err := strconv.ParseFloat(row[len(baseColumns)+i], 64)
		if err != nil {
			return Record{}, fmt.Errorf("metric column %d: %w", i+1, err)
		}
		record.Metrics[i] = v
	}
	return record, nil
}

// Datasets returns dataset names in first-seen order.
func (t *Table) Datasets() []string {
	return distinct(t.Records, func(r Record) string { return r.Dataset })
}

// Algorithms returns algorithm names in first-seen order.
func (t *Table) Algorithms() []string {
	return distinct(t.Records, func(r Record) string { return r.Algorithm })
}

// MetricIndex returns the column of a metric, -1 when absent.
func (t *Table) MetricIndex(name string) int {
	for i, m := range t.MetricNames {
		if m == name {
			return i
		}
	}
	return -1
}

func distinct(records []Record, key func(Record) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		k := key(r)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
