package preprocessing

import (
	"fmt"
	"sort"
	"sync"
)

// LabelEncoder maps string values to integer codes. Codes follow the sorted
// order of the fitted values so the same value set always yields the same
// mapping regardless of the order the values were seen in.
type LabelEncoder struct {
	ClassToInt map[string]int
	IntToClass map[int]string
	IsFitted   bool
	mu         sync.RWMutex
}

func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{
		ClassToInt: make(map[string]int),
		IntToClass: make(map[int]string),
		IsFitted:   false,
	}
}

func (le *LabelEncoder) Fit(labels []string) {
	le.mu.Lock()
	defer le.mu.Unlock()

	le.ClassToInt = make(map[string]int)
	le.IntToClass = make(map[int]string)

	unique := make(map[string]bool)
	for _, label := range labels {
		unique[label] = true
	}

	sorted := make([]string, 0, len(unique))
	for label := range unique {
		sorted = append(sorted, label)
	}
	sort.Strings(sorted)

	for idx, label := range sorted {
		le.ClassToInt[label] = idx
		le.IntToClass[idx] = label
	}

	le.IsFitted = true
}

func (le *LabelEncoder) Transform(labels []string) ([]int, error) {
	le.mu.RLock()
	defer le.mu.RUnlock()

	if !le.IsFitted {
		return nil, fmt.Errorf("LabelEncoder must be fitted before transform")
	}

	result := make([]int, len(labels))
	for i, label := range labels {
		val, ok := le.ClassToInt[label]
		if !ok {
			return nil, fmt.Errorf("unknown label: %s", label)
		}
		result[i] = val
	}

	return result, nil
}

func (le *LabelEncoder) TransformOne(label string) (int, error) {
	le.mu.RLock()
	defer le.mu.RUnlock()

	if !le.IsFitted {
		return 0, fmt.Errorf("LabelEncoder must be fitted before transform")
	}
	val, ok := le.ClassToInt[label]
	if !ok {
		return 0, fmt.Errorf("unknown label: %s", label)
	}
	return val, nil
}

func (le *LabelEncoder) FitTransform(labels []string) ([]int, error) {
	le.Fit(labels)
	return le.Transform(labels)
}

func (le *LabelEncoder) InverseTransform(encoded []int) ([]string, error) {
	le.mu.RLock()
	defer le.mu.RUnlock()

	if !le.IsFitted {
		return nil, fmt.Errorf("LabelEncoder must be fitted before inverse transform")
	}

	result := make([]string, len(encoded))
	for i, val := range encoded {
		label, ok := le.IntToClass[val]
		if !ok {
			return nil, fmt.Errorf("unknown encoding: %d", val)
		}
		result[i] = label
	}

	return result, nil
}

// Classes returns the fitted values ordered by their code.
func (le *LabelEncoder) Classes() []string {
	le.mu.RLock()
	defer le.mu.RUnlock()

	classes := make([]string, len(le.IntToClass))
	for idx, label := range le.IntToClass {
		classes[idx] = label
	}
	return classes
}

func (le *LabelEncoder) Fitted() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.IsFitted
}
