package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sylwekczmil/cacp/internal/preprocessing"
)

type CSVReader struct {
	filename string
}

func NewCSVReader(filename string) (*CSVReader, error) {
	if !fileExists(filename) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, filename)
	}
	return &CSVReader{filename: filename}, nil
}

// LoadData reads a header row followed by numeric feature columns. The label
// column is the one named "class" or "label", or the last one.
func (cr *CSVReader) LoadData() ([][]float64, []int, []string, *preprocessing.LabelEncoder, error) {
	file, err := os.Open(cr.filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil, nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, cr.filename)
		}
		return nil, nil, nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedData, cr.filename, err)
	}

	if len(records) < 2 {
		return nil, nil, nil, nil, fmt.Errorf("%w: insufficient data in file %s", ErrMalformedData, cr.filename)
	}

	labelCol := labelColumn(records[0])
	headers := make([]string, 0, len(records[0])-1)
	for j, h := range records[0] {
		if j != labelCol {
			headers = append(headers, h)
		}
	}

	rows := records[1:]
	X := make([][]float64, len(rows))
	labels := make([]string, len(rows))

	for i, record := range rows {
		X[i] = make([]float64, 0, len(record)-1)
		for j, cell := range record {
			if j == labelCol {
				labels[i] = strings.TrimSpace(cell)
				continue
			}
			v, err := parseNumber(cell)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("%s row %d column %s: %w", cr.filename, i+2, records[0][j], err)
			}
			X[i] = append(X[i], v)
		}
	}

	encoder := preprocessing.NewLabelEncoder()
	y, err := encoder.FitTransform(labels)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return X, y, headers, encoder, nil
}

// LoadCSVDataset reads a whole CSV file into a MemoryDataset named after the
// file.
func LoadCSVDataset(filename string) (*MemoryDataset, error) {
	reader, err := NewCSVReader(filename)
	if err != nil {
		return nil, err
	}

	X, y, _, encoder, err := reader.LoadData()
	if err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return NewMemoryDataset(name, X, y, encoder.Classes())
}

func labelColumn(header []string) int {
	for j, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "class", "label":
			return j
		}
	}
	return len(header) - 1
}

func parseNumber(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || cell == missingValue {
		return math.NaN(), nil
	}
	value, err := decimal.NewFromString(cell)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrMalformedData, cell)
	}
	return value.InexactFloat64(), nil
}
