package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sylwekczmil/cacp/internal/evaluation"
	"github.com/sylwekczmil/cacp/internal/preprocessing"
)

// Sample is one element of a stream. Unlabeled samples are queries: the
// classifier predicts them and the label may arrive later in a sample with
// the same ID.
type Sample struct {
	ID      string
	X       []float64
	Y       int
	Labeled bool
}

type SampleReader interface {
	// Next returns io.EOF once the stream is exhausted.
	Next() (Sample, error)
	Close() error
}

type Stream interface {
	Name() string
	Features() int
	Open(ctx context.Context) (SampleReader, error)
}

type StreamInfo struct {
	Samples int
	Labeled int
	Labels  []int
}

// Describe reads a stream once to count its samples and collect the label
// set, which the incremental metrics need up front.
func Describe(ctx context.Context, s Stream) (StreamInfo, error) {
	reader, err := s.Open(ctx)
	if err != nil {
		return StreamInfo{}, err
	}
	defer reader.Close()

	info := StreamInfo{}
	seen := make(map[int]bool)
	for {
		if info.Samples%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return StreamInfo{}, err
			}
		}

		sample, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return StreamInfo{}, fmt.Errorf("stream %s: %w", s.Name(), err)
		}

		info.Samples++
		if sample.Labeled {
			info.Labeled++
			seen[sample.Y] = true
		}
	}

	for label := range seen {
		info.Labels = append(info.Labels, label)
	}
	info.Labels = evaluation.UniqueLabels(info.Labels)
	return info, nil
}

// DatasetStream replays an offline dataset as a stream: the test parts of its
// folds, in fold order.
type DatasetStream struct {
	dataset Dataset
	opts    FoldOptions
}

func NewDatasetStream(dataset Dataset, opts FoldOptions) *DatasetStream {
	return &DatasetStream{dataset: dataset, opts: opts}
}

func (s *DatasetStream) Name() string {
	return s.dataset.Name()
}

func (s *DatasetStream) Features() int {
	return s.dataset.Features()
}

func (s *DatasetStream) Open(ctx context.Context) (SampleReader, error) {
	folds, err := s.dataset.Folds(ctx, s.opts)
	if err != nil {
		return nil, err
	}
	return &foldReader{folds: folds}, nil
}

type foldReader struct {
	folds []evaluation.Fold
	fold  int
	row   int
}

func (r *foldReader) Next() (Sample, error) {
	for r.fold < len(r.folds) && r.row >= len(r.folds[r.fold].YTest) {
		r.fold++
		r.row = 0
	}
	if r.fold >= len(r.folds) {
		return Sample{}, io.EOF
	}

	f := r.folds[r.fold]
	sample := Sample{
		ID:      fmt.Sprintf("%d-%d", f.Index, r.row),
		X:       f.XTest[r.row],
		Y:       f.YTest[r.row],
		Labeled: true,
	}
	r.row++
	return sample, nil
}

func (r *foldReader) Close() error {
	return nil
}

// CSVStream reads a CSV file lazily. An "id" column, when present, names
// samples; a row with an empty label cell is a query whose label comes in a
// later row with the same id.
type CSVStream struct {
	filename string
	name     string
	header   []string
	labelCol int
	idCol    int
}

func NewCSVStream(filename string) (*CSVStream, error) {
	file, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, filename)
		}
		return nil, err
	}
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read headers of %s: %v", ErrMalformedData, filename, err)
	}

	idCol := -1
	for j, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "id") {
			idCol = j
		}
	}

	return &CSVStream{
		filename: filename,
		name:     strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
		header:   header,
		labelCol: labelColumn(header),
		idCol:    idCol,
	}, nil
}

func (s *CSVStream) Name() string {
	return s.name
}

func (s *CSVStream) Features() int {
	n := len(s.header) - 1
	if s.idCol >= 0 {
		n--
	}
	return n
}

func (s *CSVStream) GetHeaders() []string {
	return s.header
}

func (s *CSVStream) Open(ctx context.Context) (SampleReader, error) {
	encoder, err := s.fitLabels(ctx)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(s.filename)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	if _, err := reader.Read(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}

	return &csvSampleReader{stream: s, file: file, reader: reader, encoder: encoder}, nil
}

// fitLabels scans the label column so codes are stable for the whole file.
func (s *CSVStream) fitLabels(ctx context.Context) (*preprocessing.LabelEncoder, error) {
	file, err := os.Open(s.filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var labels []string
	seen := make(map[string]bool)
	for row := 0; ; row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedData, s.filename, err)
		}
		if row == 0 {
			continue
		}
		label := strings.TrimSpace(record[s.labelCol])
		if label != "" && !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}

	encoder := preprocessing.NewLabelEncoder()
	encoder.Fit(labels)
	return encoder, nil
}

type csvSampleReader struct {
	stream  *CSVStream
	file    *os.File
	reader  *csv.Reader
	encoder *preprocessing.LabelEncoder
	row     int
}

func (r *csvSampleReader) Next() (Sample, error) {
	record, err := r.reader.Read()
	if err == io.EOF {
		return Sample{}, io.EOF
	}
	if err != nil {
		return Sample{}, fmt.Errorf("error reading record: %w", err)
	}
	r.row++

	sample := Sample{ID: strconv.Itoa(r.row)}
	features := make([]float64, 0, len(record))
	for j, cell := range record {
		switch j {
		case r.stream.labelCol:
			label := strings.TrimSpace(cell)
			if label == "" {
				continue
			}
			code, err := r.encoder.TransformOne(label)
			if err != nil {
				return Sample{}, err
			}
			sample.Y = code
			sample.Labeled = true
		case r.stream.idCol:
			sample.ID = strings.TrimSpace(cell)
		default:
			v, err := parseNumber(cell)
			if err != nil {
				return Sample{}, fmt.Errorf("row %d column %s: %w", r.row, r.stream.header[j], err)
			}
			features = append(features, v)
		}
	}
	sample.X = features
	return sample, nil
}

func (r *csvSampleReader) Close() error {
	return r.file.Close()
}
