package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type Kind int

const (
	Batch Kind = iota
	Incremental
)

func (k Kind) String() string {
	if k == Incremental {
		return "incremental"
	}
	return "batch"
}

type PredictionMode int

const (
	Discrete PredictionMode = iota
	Probabilistic
)

func (m PredictionMode) String() string {
	if m == Probabilistic {
		return "probabilistic"
	}
	return "discrete"
}

// Descriptor declares what a classifier can do up front, so runners never
// need to instantiate a model to find out.
type Descriptor struct {
	Name string
	// Title is the long name shown in the info tables.
	Title   string
	Kind    Kind
	Library string
	// AcceptsClasses marks batch classifiers whose Fit uses the closed label
	// set of the fold.
	AcceptsClasses bool
	// Prediction is Probabilistic when the incremental classifier implements
	// ProbabilisticClassifier.
	Prediction     PredictionMode
	Params         map[string]any
	NewBatch       func(nFeatures, nClasses int, seed int64) (Classifier, error)
	NewIncremental func(nFeatures, nClasses int, seed int64) (IncrementalClassifier, error)
}

func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: descriptor without a name", ErrInvalidParams)
	}
	switch d.Kind {
	case Batch:
		if d.NewBatch == nil {
			return fmt.Errorf("%w: batch classifier %s has no factory", ErrInvalidParams, d.Name)
		}
	case Incremental:
		if d.NewIncremental == nil {
			return fmt.Errorf("%w: incremental classifier %s has no factory", ErrInvalidParams, d.Name)
		}
	}
	return nil
}

// params reads typed values out of a YAML parameter map and remembers which
// keys were consumed so leftovers can be reported.
type params struct {
	values map[string]any
	used   map[string]bool
	err    error
}

func newParams(values map[string]any) *params {
	return &params{values: values, used: make(map[string]bool)}
}

func (p *params) Int(key string, def int) int {
	p.used[key] = true
	raw, ok := p.values[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	}
	p.fail(key, raw, "an integer")
	return def
}

func (p *params) Float(key string, def float64) float64 {
	p.used[key] = true
	raw, ok := p.values[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	p.fail(key, raw, "a number")
	return def
}

func (p *params) String(key string, def string) string {
	p.used[key] = true
	raw, ok := p.values[key]
	if !ok {
		return def
	}
	if v, ok := raw.(string); ok {
		return v
	}
	p.fail(key, raw, "a string")
	return def
}

func (p *params) fail(key string, raw any, want string) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s must be %s, got %v", ErrInvalidParams, key, want, raw)
	}
}

func (p *params) check() error {
	if p.err != nil {
		return p.err
	}
	var unknown []string
	for key := range p.values {
		if !p.used[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown parameters %s", ErrInvalidParams, strings.Join(unknown, ", "))
	}
	return nil
}

type entry struct {
	aliases []string
	build   func(p *params) Descriptor
}

var catalog = []entry{
	{
		aliases: []string{"svc", "linear_svc"},
		build: func(p *params) Descriptor {
			lambda := p.Float("lambda", 1e-3)
			epochs := p.Int("epochs", 20)
			return Descriptor{
				Name: "SVC", Title: "Linear support vector classifier", Kind: Batch, Library: "cacp",
				Params: map[string]any{"lambda": lambda, "epochs": epochs},
				NewBatch: func(_, _ int, seed int64) (Classifier, error) {
					return NewLinearSVC(lambda, epochs, seed), nil
				},
			}
		},
	},
	{
		aliases: []string{"dt", "decision_tree", "tree"},
		build: func(p *params) Descriptor {
			maxDepth := p.Int("max_depth", 5)
			minSplit := p.Int("min_samples_split", 2)
			return Descriptor{
				Name: "DT", Title: "Decision tree", Kind: Batch, Library: "cacp", AcceptsClasses: true,
				Params: map[string]any{"max_depth": maxDepth, "min_samples_split": minSplit},
				NewBatch: func(_, _ int, seed int64) (Classifier, error) {
					tree := NewDecisionTree(maxDepth, minSplit)
					tree.Seed = seed
					return tree, nil
				},
			}
		},
	},
	{
		aliases: []string{"rf", "random_forest", "forest"},
		build: func(p *params) Descriptor {
			nTrees := p.Int("n_trees", 10)
			maxDepth := p.Int("max_depth", 5)
			minSplit := p.Int("min_samples_split", 2)
			return Descriptor{
				Name: "RF", Title: "Random forest", Kind: Batch, Library: "cacp", AcceptsClasses: true,
				Params: map[string]any{"n_trees": nTrees, "max_depth": maxDepth, "min_samples_split": minSplit},
				NewBatch: func(_, _ int, seed int64) (Classifier, error) {
					return NewRandomForest(nTrees, maxDepth, minSplit, seed), nil
				},
			}
		},
	},
	{
		aliases: []string{"knn"},
		build: func(p *params) Descriptor {
			k := p.Int("k", 5)
			distance := p.String("distance", "euclidean")
			return Descriptor{
				Name: "KNN", Title: "K nearest neighbors", Kind: Batch, Library: "cacp", AcceptsClasses: true,
				Params: map[string]any{"k": k, "distance": distance},
				NewBatch: func(_, _ int, _ int64) (Classifier, error) {
					return NewKNN(k, distance), nil
				},
			}
		},
	},
	{
		aliases: []string{"gnb", "naive_bayes", "bayes"},
		build: func(p *params) Descriptor {
			smoothing := p.Float("var_smoothing", 1e-9)
			return Descriptor{
				Name: "GNB", Title: "Gaussian naive Bayes", Kind: Batch, Library: "cacp",
				Params: map[string]any{"var_smoothing": smoothing},
				NewBatch: func(_, _ int, _ int64) (Classifier, error) {
					return NewNaiveBayes(smoothing), nil
				},
			}
		},
	},
	{
		aliases: []string{"golearn_knn"},
		build: func(p *params) Descriptor {
			k := p.Int("k", 5)
			return Descriptor{
				Name: "GolearnKNN", Title: "K nearest neighbors", Kind: Batch, Library: "golearn", AcceptsClasses: true,
				Params: map[string]any{"k": k},
				NewBatch: func(_, _ int, _ int64) (Classifier, error) {
					return NewGolearnKNN(k), nil
				},
			}
		},
	},
	{
		aliases: []string{"golearn_id3", "id3"},
		build: func(p *params) Descriptor {
			return Descriptor{
				Name: "ID3", Title: "ID3 decision tree", Kind: Batch, Library: "golearn", AcceptsClasses: true,
				Params: map[string]any{},
				NewBatch: func(_, _ int, _ int64) (Classifier, error) {
					return NewGolearnID3(), nil
				},
			}
		},
	},
	{
		aliases: []string{"online_gnb", "incremental_gnb"},
		build: func(p *params) Descriptor {
			return Descriptor{
				Name: "OnlineGNB", Title: "Incremental Gaussian naive Bayes", Kind: Incremental, Library: "cacp", Prediction: Probabilistic,
				Params: map[string]any{},
				NewIncremental: func(_, _ int, _ int64) (IncrementalClassifier, error) {
					return NewOnlineGaussianNB(), nil
				},
			}
		},
	},
	{
		aliases: []string{"window_knn", "incremental_knn"},
		build: func(p *params) Descriptor {
			k := p.Int("k", 5)
			window := p.Int("window", 200)
			return Descriptor{
				Name: "WindowKNN", Title: "Sliding window K nearest neighbors", Kind: Incremental, Library: "cacp", Prediction: Probabilistic,
				Params: map[string]any{"k": k, "window": window},
				NewIncremental: func(_, _ int, _ int64) (IncrementalClassifier, error) {
					return NewWindowKNN(k, window), nil
				},
			}
		},
	},
	{
		aliases: []string{"majority"},
		build: func(p *params) Descriptor {
			return Descriptor{
				Name: "Majority", Title: "Majority class", Kind: Incremental, Library: "cacp",
				Params: map[string]any{},
				NewIncremental: func(_, _ int, _ int64) (IncrementalClassifier, error) {
					return NewMajority(), nil
				},
			}
		},
	},
	{
		aliases: []string{"no_change"},
		build: func(p *params) Descriptor {
			return Descriptor{
				Name: "NoChange", Title: "No change", Kind: Incremental, Library: "cacp",
				Params: map[string]any{},
				NewIncremental: func(_, _ int, _ int64) (IncrementalClassifier, error) {
					return NewNoChange(), nil
				},
			}
		},
	},
	{
		aliases: []string{"perceptron"},
		build: func(p *params) Descriptor {
			rate := p.Float("learning_rate", 0.1)
			return Descriptor{
				Name: "Perceptron", Title: "Online perceptron", Kind: Incremental, Library: "cacp",
				Params: map[string]any{"learning_rate": rate},
				NewIncremental: func(_, _ int, _ int64) (IncrementalClassifier, error) {
					return NewPerceptron(rate), nil
				},
			}
		},
	},
}

// Resolve turns a configured classifier name and parameters into a
// descriptor. label, when set, replaces the default display name.
func Resolve(name, label string, values map[string]any) (Descriptor, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, e := range catalog {
		for _, alias := range e.aliases {
			if alias != key {
				continue
			}
			p := newParams(values)
			d := e.build(p)
			if err := p.check(); err != nil {
				return Descriptor{}, fmt.Errorf("classifier %s: %w", name, err)
			}
			if label != "" {
				d.Name = label
			}
			return d, d.Validate()
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s (available: %s)", ErrUnknownClassifier, name, strings.Join(Available(), ", "))
}

// Available lists the primary name of every catalog entry.
func Available() []string {
	names := make([]string, len(catalog))
	for i, e := range catalog {
		names[i] = e.aliases[0]
	}
	return names
}

// Catalog returns every classifier with default parameters.
func Catalog() []Descriptor {
	descriptors := make([]Descriptor, len(catalog))
	for i, e := range catalog {
		descriptors[i] = e.build(newParams(nil))
	}
	return descriptors
}

// ReferenceClassifiers is the SVC, depth-5 tree and 10-tree depth-5 forest
// trio used by the demo experiment.
func ReferenceClassifiers() []Descriptor {
	var out []Descriptor
	for _, name := range []string{"svc", "dt", "rf"} {
		d, _ := Resolve(name, "", nil)
		out = append(out, d)
	}
	return out
}
