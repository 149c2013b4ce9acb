package data

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sylwekczmil/cacp/internal/evaluation"
	"github.com/sylwekczmil/cacp/internal/preprocessing"
)

const missingValue = "?"

type Attribute struct {
	Name       string
	Type       string
	Categories []string
}

func (a Attribute) Categorical() bool {
	return a.Type == "category"
}

// Description is the header of a KEEL dataset, read either from the
// <name>-names.txt file or from the header of a .dat file.
type Description struct {
	Relation   string
	Attributes []Attribute
	Inputs     []string
	Output     string
	Origin     string
	Features   int
	Classes    int
	Instances  int
}

func ParseDescription(r io.Reader) (*Description, error) {
	desc := &Description{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)

		switch {
		case strings.HasPrefix(lower, "@data"):
			return desc, nil
		case strings.HasPrefix(lower, "@relation"):
			desc.Relation = strings.TrimSpace(line[len("@relation"):])
		case strings.HasPrefix(lower, "@attribute"):
			attr, err := parseAttribute(line)
			if err != nil {
				return nil, err
			}
			desc.Attributes = append(desc.Attributes, attr)
		case strings.HasPrefix(lower, "@input"):
			desc.Inputs = splitNames(afterKeyword(line))
		case strings.HasPrefix(lower, "@output"):
			if names := splitNames(afterKeyword(line)); len(names) > 0 {
				desc.Output = names[0]
			}
		case strings.HasPrefix(line, "Origin."):
			desc.Origin = strings.TrimSpace(strings.TrimPrefix(line, "Origin."))
		case strings.HasPrefix(line, "Features."):
			desc.Features = leadingInt(strings.TrimPrefix(line, "Features."))
		case strings.HasPrefix(line, "Classes."):
			desc.Classes = leadingInt(strings.TrimPrefix(line, "Classes."))
		case strings.HasPrefix(line, "Instances."):
			desc.Instances = leadingInt(strings.TrimPrefix(line, "Instances."))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return desc, nil
}

func parseAttribute(line string) (Attribute, error) {
	if open := strings.Index(line, "{"); open >= 0 {
		fields := strings.Fields(line[:open])
		if len(fields) < 2 {
			return Attribute{}, fmt.Errorf("%w: bad attribute line %q", ErrMalformedData, line)
		}
		body := line[open+1:]
		if end := strings.LastIndex(body, "}"); end >= 0 {
			body = body[:end]
		}
		return Attribute{
			Name:       unquote(fields[1]),
			Type:       "category",
			Categories: splitNames(body),
		}, nil
	}

	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Attribute{}, fmt.Errorf("%w: bad attribute line %q", ErrMalformedData, line)
	}
	attrType := strings.ToLower(strings.TrimSpace(strings.SplitN(fields[2], "[", 2)[0]))
	return Attribute{Name: unquote(fields[1]), Type: attrType}, nil
}

func afterKeyword(line string) string {
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[i+1:]
	}
	return ""
}

func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if name := unquote(strings.TrimSpace(part)); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func unquote(s string) string {
	return strings.Trim(s, "'\"")
}

func leadingInt(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}

func (d *Description) outputName() string {
	if d.Output != "" {
		return d.Output
	}
	if len(d.Attributes) > 0 {
		return d.Attributes[len(d.Attributes)-1].Name
	}
	return "Class"
}

// columns resolves the input column indices and the output column index.
func (d *Description) columns() ([]int, int, error) {
	index := make(map[string]int, len(d.Attributes))
	for i, attr := range d.Attributes {
		index[attr.Name] = i
	}

	output, ok := index[d.outputName()]
	if !ok {
		return nil, 0, fmt.Errorf("%w: output attribute %q is not declared", ErrMalformedData, d.outputName())
	}

	var inputs []int
	if len(d.Inputs) > 0 {
		for _, name := range d.Inputs {
			i, ok := index[name]
			if !ok {
				return nil, 0, fmt.Errorf("%w: input attribute %q is not declared", ErrMalformedData, name)
			}
			inputs = append(inputs, i)
		}
		sort.Ints(inputs)
	} else {
		for i := range d.Attributes {
			if i != output {
				inputs = append(inputs, i)
			}
		}
	}
	return inputs, output, nil
}

// KEELDataset reads a dataset stored in the KEEL repository layout from a
// local directory.
type KEELDataset struct {
	name string
	dir  string
	desc *Description
}

func NewKEELDataset(dir, name string) (*KEELDataset, error) {
	d := &KEELDataset{name: name, dir: dir}

	desc, err := d.loadDescription()
	if err != nil {
		return nil, err
	}
	d.desc = desc

	if desc.Instances == 0 || desc.Classes == 0 {
		if err := d.count(); err != nil {
			return nil, err
		}
	}
	if desc.Features == 0 {
		inputs, _, err := desc.columns()
		if err != nil {
			return nil, err
		}
		desc.Features = len(inputs)
	}

	return d, nil
}

func (d *KEELDataset) Name() string {
	return d.name
}

func (d *KEELDataset) Instances() int {
	return d.desc.Instances
}

func (d *KEELDataset) Features() int {
	return d.desc.Features
}

func (d *KEELDataset) Classes() int {
	return d.desc.Classes
}

func (d *KEELDataset) Origin() string {
	return d.desc.Origin
}

func (d *KEELDataset) Description() Description {
	return *d.desc
}

func (d *KEELDataset) loadDescription() (*Description, error) {
	namesPath := filepath.Join(d.dir, d.name+"-names.txt")

	var desc *Description
	if f, err := os.Open(namesPath); err == nil {
		desc, err = ParseDescription(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", namesPath, err)
		}
	}

	if desc != nil && len(desc.Attributes) > 0 {
		return desc, nil
	}

	header := d.anyDataFile()
	if header == "" {
		if desc == nil {
			return nil, fmt.Errorf("%w: %s in %s", ErrDatasetNotFound, d.name, d.dir)
		}
		return nil, fmt.Errorf("%w: %s declares no attributes and has no data files", ErrDatasetNotFound, namesPath)
	}

	f, err := os.Open(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetNotFound, err)
	}
	defer f.Close()

	fromHeader, err := ParseDescription(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", header, err)
	}
	if len(fromHeader.Attributes) == 0 {
		return nil, fmt.Errorf("%w: %s has no attribute declarations", ErrMalformedData, header)
	}

	if desc != nil {
		fromHeader.Origin = desc.Origin
		fromHeader.Features = desc.Features
		fromHeader.Classes = desc.Classes
		fromHeader.Instances = desc.Instances
	}
	return fromHeader, nil
}

func (d *KEELDataset) fullDataPath() string {
	return filepath.Join(d.dir, d.name+".dat")
}

func (d *KEELDataset) anyDataFile() string {
	if fileExists(d.fullDataPath()) {
		return d.fullDataPath()
	}
	for _, nFolds := range evaluation.AvailableFolds {
		for _, balanced := range []bool{false, true} {
			if dir, prefix, ok := d.foldFiles(nFolds, balanced); ok {
				return filepath.Join(dir, fmt.Sprintf("%s-1tra.dat", prefix))
			}
		}
	}
	return ""
}

// foldFiles finds pre-split fold files. KEEL archives unpack either flat or
// into <name>-<k>-fold/ and <name>-<k>-dobscv/<name>/ directories.
func (d *KEELDataset) foldFiles(nFolds int, balanced bool) (string, string, bool) {
	prefix := fmt.Sprintf("%s-%d", d.name, nFolds)
	archive := fmt.Sprintf("%s-%d-fold", d.name, nFolds)
	if balanced {
		prefix = fmt.Sprintf("%s-%ddobscv", d.name, nFolds)
		archive = fmt.Sprintf("%s-%d-dobscv", d.name, nFolds)
	}

	candidates := []string{
		d.dir,
		filepath.Join(d.dir, archive),
		filepath.Join(d.dir, archive, d.name),
	}
	for _, dir := range candidates {
		if fileExists(filepath.Join(dir, prefix+"-1tra.dat")) {
			return dir, prefix, true
		}
	}
	return "", "", false
}

func (d *KEELDataset) count() error {
	opts := DefaultFoldOptions()
	var labels []string
	instances := 0

	if fileExists(d.fullDataPath()) {
		_, y, err := d.loadFile(d.fullDataPath(), opts)
		if err != nil {
			return err
		}
		labels, instances = y, len(y)
	} else {
		found := false
		for _, nFolds := range evaluation.AvailableFolds {
			for _, balanced := range []bool{false, true} {
				dir, prefix, ok := d.foldFiles(nFolds, balanced)
				if !ok || found {
					continue
				}
				found = true
				for i := 1; i <= nFolds; i++ {
					_, y, err := d.loadFile(filepath.Join(dir, fmt.Sprintf("%s-%dtst.dat", prefix, i)), opts)
					if err != nil {
						return err
					}
					labels = append(labels, y...)
					instances += len(y)
				}
			}
		}
		if !found {
			return fmt.Errorf("%w: no data files for %s in %s", ErrDatasetNotFound, d.name, d.dir)
		}
	}

	if d.desc.Instances == 0 {
		d.desc.Instances = instances
	}
	if d.desc.Classes == 0 {
		distinct := make(map[string]bool)
		for _, l := range labels {
			distinct[l] = true
		}
		d.desc.Classes = len(distinct)
	}
	return nil
}

func (d *KEELDataset) Folds(ctx context.Context, opts FoldOptions) ([]evaluation.Fold, error) {
	if err := evaluation.ValidateFolds(opts.NFolds); err != nil {
		return nil, err
	}

	if dir, prefix, ok := d.foldFiles(opts.NFolds, opts.Balanced); ok {
		return d.preSplitFolds(ctx, dir, prefix, opts)
	}

	if !fileExists(d.fullDataPath()) {
		return nil, fmt.Errorf("%w: neither %d-fold files nor %s exist", ErrDatasetNotFound, opts.NFolds, d.fullDataPath())
	}

	X, raw, err := d.loadFile(d.fullDataPath(), opts)
	if err != nil {
		return nil, err
	}
	y, err := d.encoder(raw).Transform(raw)
	if err != nil {
		return nil, err
	}
	return splitFolds(ctx, X, y, opts)
}

func (d *KEELDataset) preSplitFolds(ctx context.Context, dir, prefix string, opts FoldOptions) ([]evaluation.Fold, error) {
	type part struct {
		XTrain, XTest [][]float64
		yTrain, yTest []string
	}

	parts := make([]part, opts.NFolds)
	var allLabels []string
	for i := 1; i <= opts.NFolds; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		XTrain, yTrain, err := d.loadFile(filepath.Join(dir, fmt.Sprintf("%s-%dtra.dat", prefix, i)), opts)
		if err != nil {
			return nil, err
		}
		XTest, yTest, err := d.loadFile(filepath.Join(dir, fmt.Sprintf("%s-%dtst.dat", prefix, i)), opts)
		if err != nil {
			return nil, err
		}
		parts[i-1] = part{XTrain: XTrain, XTest: XTest, yTrain: yTrain, yTest: yTest}
		allLabels = append(allLabels, yTrain...)
		allLabels = append(allLabels, yTest...)
	}

	encoder := d.encoder(allLabels)
	folds := make([]evaluation.Fold, opts.NFolds)
	for i, p := range parts {
		yTrain, err := encoder.Transform(p.yTrain)
		if err != nil {
			return nil, err
		}
		yTest, err := encoder.Transform(p.yTest)
		if err != nil {
			return nil, err
		}
		folds[i] = evaluation.Fold{
			Index:  i + 1,
			Labels: evaluation.UniqueLabels(yTrain, yTest),
			XTrain: p.XTrain,
			YTrain: yTrain,
			XTest:  p.XTest,
			YTest:  yTest,
		}
	}
	return folds, nil
}

// encoder maps class values to codes using the declared categories of the
// output attribute together with every observed value.
func (d *KEELDataset) encoder(observed []string) *preprocessing.LabelEncoder {
	values := append([]string(nil), observed...)
	_, output, err := d.desc.columns()
	if err == nil {
		values = append(values, d.desc.Attributes[output].Categories...)
	}
	encoder := preprocessing.NewLabelEncoder()
	encoder.Fit(values)
	return encoder
}

func (d *KEELDataset) ClassNames() []string {
	_, output, err := d.desc.columns()
	if err != nil {
		return nil
	}
	names := append([]string(nil), d.desc.Attributes[output].Categories...)
	sort.Strings(names)
	return names
}

func (d *KEELDataset) loadFile(path string, opts FoldOptions) ([][]float64, []string, error) {
	inputs, output, err := d.desc.columns()
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		return nil, nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if err := skipHeader(br); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	codes := make(map[int]map[string]int)
	for _, col := range inputs {
		if attr := d.desc.Attributes[col]; attr.Categorical() {
			codes[col] = categoryCodes(attr)
		}
	}

	reader := csv.NewReader(br)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var X [][]float64
	var y []string
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedData, path, err)
		}
		line++
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) != len(d.desc.Attributes) {
			return nil, nil, fmt.Errorf("%w: %s row %d has %d values, expected %d", ErrMalformedData, path, line, len(record), len(d.desc.Attributes))
		}

		row := make([]float64, len(inputs))
		for j, col := range inputs {
			v, err := parseCell(d.desc.Attributes[col], codes[col], strings.TrimSpace(record[col]), opts)
			if err != nil {
				return nil, nil, fmt.Errorf("%s row %d: %w", path, line, err)
			}
			row[j] = v
		}
		X = append(X, row)
		y = append(y, strings.TrimSpace(record[output]))
	}

	return X, y, nil
}

func parseCell(attr Attribute, codes map[string]int, cell string, opts FoldOptions) (float64, error) {
	if cell == missingValue || cell == "" {
		return math.NaN(), nil
	}

	if attr.Categorical() {
		if !opts.CategoricalToNumerical {
			return 0, fmt.Errorf("%w: attribute %s", ErrCategoricalColumn, attr.Name)
		}
		code, ok := codes[cell]
		if !ok {
			return 0, fmt.Errorf("%w: attribute %s has undeclared category %q", ErrMalformedData, attr.Name, cell)
		}
		return float64(code), nil
	}

	value, err := decimal.NewFromString(cell)
	if err != nil {
		return 0, fmt.Errorf("%w: attribute %s value %q is not numeric", ErrMalformedData, attr.Name, cell)
	}
	return value.InexactFloat64(), nil
}

// categoryCodes numbers the declared categories in sorted order, so a value
// gets the same code in every fold file.
func categoryCodes(attr Attribute) map[string]int {
	sorted := append([]string(nil), attr.Categories...)
	sort.Strings(sorted)
	codes := make(map[string]int, len(sorted))
	for i, c := range sorted {
		codes[c] = i
	}
	return codes
}

func skipHeader(br *bufio.Reader) error {
	for {
		line, err := br.ReadString('\n')
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "@data") {
			return nil
		}
		if err == io.EOF {
			return fmt.Errorf("%w: missing @data section", ErrMalformedData)
		}
		if err != nil {
			return err
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
