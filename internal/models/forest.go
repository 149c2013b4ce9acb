package models

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
)

type RandomForest struct {
	BaseModel
	NTrees          int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Seed            int64
	Trees           []*DecisionTree
	Parallel        bool
	MaxWorkers      int
}

func NewRandomForest(nTrees, maxDepth, minSamplesSplit int, seed int64) *RandomForest {
	if nTrees <= 0 {
		nTrees = 100
	}
	return &RandomForest{
		NTrees:          nTrees,
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		Seed:            seed,
		Parallel:        true,
		MaxWorkers:      4,
		BaseModel: BaseModel{
			Name: "RandomForest",
			Params: map[string]any{
				"n_trees":           nTrees,
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
			},
		},
	}
}

func (rf *RandomForest) Fit(X [][]float64, y []int, classes []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	rf.setClasses(y, classes)

	rf.MaxFeatures = int(math.Sqrt(float64(len(X[0]))))
	if rf.MaxFeatures < 1 {
		rf.MaxFeatures = 1
	}

	rf.Trees = make([]*DecisionTree, rf.NTrees)

	if rf.Parallel {
		return rf.trainParallel(X, y)
	}
	return rf.trainSequential(X, y)
}

func (rf *RandomForest) trainParallel(X [][]float64, y []int) error {
	var wg sync.WaitGroup
	errs := make([]error, rf.NTrees)

	workers := rf.MaxWorkers
	if workers > rf.NTrees {
		workers = rf.NTrees
	}

	jobs := make(chan int, rf.NTrees)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rf.Trees[i], errs[i] = rf.trainSingleTree(X, y, i)
			}
		}()
	}

	for i := 0; i < rf.NTrees; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("tree %d training failed: %w", i, err)
		}
	}

	return nil
}

func (rf *RandomForest) trainSequential(X [][]float64, y []int) error {
	for i := 0; i < rf.NTrees; i++ {
		tree, err := rf.trainSingleTree(X, y, i)
		if err != nil {
			return fmt.Errorf("tree %d training failed: %w", i, err)
		}
		rf.Trees[i] = tree
	}
	return nil
}

// trainSingleTree fits tree i on a bootstrap sample. Each tree derives its
// own generator from the forest seed, so results do not depend on which
// worker picks the tree up.
func (rf *RandomForest) trainSingleTree(X [][]float64, y []int, i int) (*DecisionTree, error) {
	seed := rf.Seed*1000003 + int64(i)
	r := rand.New(rand.NewSource(seed))

	n := len(X)
	XBoot := make([][]float64, n)
	yBoot := make([]int, n)
	for k := 0; k < n; k++ {
		idx := r.Intn(n)
		XBoot[k] = X[idx]
		yBoot[k] = y[idx]
	}

	tree := NewDecisionTree(rf.MaxDepth, rf.MinSamplesSplit)
	tree.MaxFeatures = rf.MaxFeatures
	tree.Seed = seed
	if err := tree.Fit(XBoot, yBoot, rf.Classes); err != nil {
		return nil, err
	}
	return tree, nil
}

// Predict averages the leaf class shares of all trees.
func (rf *RandomForest) Predict(X [][]float64) ([]int, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}

	predictions := make([]int, len(X))
	for i, row := range proba {
		votes := make(map[int]float64, len(rf.Classes))
		for j, class := range rf.Classes {
			votes[class] = row[j]
		}
		predictions[i] = argmaxVote(votes, rf.Classes)
	}
	return predictions, nil
}

func (rf *RandomForest) PredictProba(X [][]float64) ([][]float64, error) {
	if len(rf.Trees) == 0 || rf.Trees[0] == nil {
		return nil, ErrNotFitted
	}

	proba := make([][]float64, len(X))
	for i := range proba {
		proba[i] = make([]float64, len(rf.Classes))
	}

	for _, tree := range rf.Trees {
		treeProba, err := tree.PredictProba(X)
		if err != nil {
			return nil, err
		}
		for i := range treeProba {
			for j := range treeProba[i] {
				proba[i][j] += treeProba[i][j] / float64(len(rf.Trees))
			}
		}
	}
	return proba, nil
}
