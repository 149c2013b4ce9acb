package models

import (
	"math"
	"math/rand"
	"sort"
)

type TreeNode struct {
	IsLeaf           bool
	Class            int
	Counts           map[int]int
	Feature          int
	Threshold        float64
	Left             *TreeNode
	Right            *TreeNode
	Samples          int
	Impurity         float64
	ImpurityDecrease float64
}

// DecisionTree is a CART classifier with Gini impurity. Samples go left when
// their feature value is <= the threshold; missing values go right.
type DecisionTree struct {
	BaseModel
	Root                *TreeNode
	MaxDepth            int
	MinSamplesSplit     int
	MinImpurityDecrease float64
	// MaxFeatures limits the features tried at each node; 0 tries all.
	MaxFeatures int
	Seed        int64

	classIndex map[int]int
	rng        *rand.Rand
}

func NewDecisionTree(maxDepth, minSamplesSplit int) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	if minSamplesSplit <= 0 {
		minSamplesSplit = 2
	}

	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		BaseModel: BaseModel{
			Name: "DecisionTree",
			Params: map[string]any{
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
			},
		},
	}
}

func (dt *DecisionTree) Fit(X [][]float64, y []int, classes []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}

	dt.setClasses(y, classes)
	dt.classIndex = make(map[int]int, len(dt.Classes))
	for i, class := range dt.Classes {
		dt.classIndex[class] = i
	}
	dt.rng = rand.New(rand.NewSource(dt.Seed))

	indices := make([]int, len(y))
	for i := range indices {
		indices[i] = i
	}
	dt.Root = dt.buildTree(X, y, indices, 0)
	return nil
}

func (dt *DecisionTree) buildTree(X [][]float64, y []int, indices []int, depth int) *TreeNode {
	counts := dt.countClasses(y, indices)
	node := &TreeNode{
		Samples:  len(indices),
		Counts:   make(map[int]int),
		Impurity: gini(counts, len(indices)),
	}
	for i, c := range counts {
		if c > 0 {
			node.Counts[dt.Classes[i]] = c
		}
	}
	node.Class = dt.majority(counts)

	if depth >= dt.MaxDepth ||
		len(indices) < dt.MinSamplesSplit ||
		node.Impurity == 0 {
		node.IsLeaf = true
		return node
	}

	feature, threshold, decrease, ok := dt.findBestSplit(X, y, indices, counts)
	if !ok || decrease < dt.MinImpurityDecrease {
		node.IsLeaf = true
		return node
	}

	var left, right []int
	for _, idx := range indices {
		if X[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	node.Feature = feature
	node.Threshold = threshold
	node.ImpurityDecrease = decrease
	node.Left = dt.buildTree(X, y, left, depth+1)
	node.Right = dt.buildTree(X, y, right, depth+1)
	return node
}

// findBestSplit sweeps every candidate feature in sorted order, moving one
// sample at a time from the right partition to the left one.
func (dt *DecisionTree) findBestSplit(X [][]float64, y []int, indices []int, parent []int) (int, float64, float64, bool) {
	n := len(indices)
	parentImpurity := gini(parent, n)

	bestFeature := -1
	bestThreshold := 0.0
	bestDecrease := math.Inf(-1)

	left := make([]int, len(parent))
	right := make([]int, len(parent))
	valid := make([]int, 0, n)

	for _, feature := range dt.candidateFeatures(len(X[indices[0]])) {
		valid = valid[:0]
		for _, idx := range indices {
			if !math.IsNaN(X[idx][feature]) {
				valid = append(valid, idx)
			}
		}
		if len(valid) < 2 {
			continue
		}
		sort.Slice(valid, func(i, j int) bool {
			return X[valid[i]][feature] < X[valid[j]][feature]
		})

		for i := range left {
			left[i] = 0
		}
		copy(right, parent)
		nLeft, nRight := 0, n

		for p := 0; p < len(valid)-1; p++ {
			c := dt.classIndex[y[valid[p]]]
			left[c]++
			right[c]--
			nLeft++
			nRight--

			current, next := X[valid[p]][feature], X[valid[p+1]][feature]
			if current == next {
				continue
			}

			weighted := (float64(nLeft)*gini(left, nLeft) + float64(nRight)*gini(right, nRight)) / float64(n)
			decrease := parentImpurity - weighted
			if decrease > bestDecrease {
				threshold := current + (next-current)/2
				if threshold >= next {
					threshold = current
				}
				bestFeature = feature
				bestThreshold = threshold
				bestDecrease = decrease
			}
		}
	}

	return bestFeature, bestThreshold, bestDecrease, bestFeature >= 0
}

func (dt *DecisionTree) candidateFeatures(nFeatures int) []int {
	if dt.MaxFeatures <= 0 || dt.MaxFeatures >= nFeatures {
		features := make([]int, nFeatures)
		for i := range features {
			features[i] = i
		}
		return features
	}
	return dt.rng.Perm(nFeatures)[:dt.MaxFeatures]
}

func (dt *DecisionTree) countClasses(y []int, indices []int) []int {
	counts := make([]int, len(dt.Classes))
	for _, idx := range indices {
		counts[dt.classIndex[y[idx]]]++
	}
	return counts
}

func (dt *DecisionTree) majority(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return dt.Classes[best]
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0.0
	}

	impurity := 1.0
	for _, count := range counts {
		p := float64(count) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func (dt *DecisionTree) Predict(X [][]float64) ([]int, error) {
	if dt.Root == nil {
		return nil, ErrNotFitted
	}

	predictions := make([]int, len(X))
	for i, sample := range X {
		predictions[i] = dt.leaf(sample).Class
	}
	return predictions, nil
}

// PredictProba returns the class shares of the leaf each sample falls into,
// one column per entry of Classes.
func (dt *DecisionTree) PredictProba(X [][]float64) ([][]float64, error) {
	if dt.Root == nil {
		return nil, ErrNotFitted
	}

	proba := make([][]float64, len(X))
	for i, sample := range X {
		node := dt.leaf(sample)
		proba[i] = make([]float64, len(dt.Classes))
		for j, class := range dt.Classes {
			proba[i][j] = float64(node.Counts[class]) / float64(node.Samples)
		}
	}
	return proba, nil
}

func (dt *DecisionTree) leaf(sample []float64) *TreeNode {
	node := dt.Root
	for !node.IsLeaf {
		if sample[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

func (dt *DecisionTree) Depth() int {
	var depth func(*TreeNode) int
	depth = func(node *TreeNode) int {
		if node == nil || node.IsLeaf {
			return 0
		}
		return 1 + max(depth(node.Left), depth(node.Right))
	}
	return depth(dt.Root)
}
