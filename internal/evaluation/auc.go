package evaluation

import (
	"fmt"
	"sort"
)

// OneVsOneAUC averages, over every pair of labels (a, b), the ROC AUC of a
// against b and of b against a, restricted to samples whose true label is a
// or b. Pairs are weighted by their share of samples. scores[i][c] is the
// score of sample i for labels[c].
//
// Pairs where one of the labels never occurs in yTrue are skipped. If no pair
// remains the metric is undefined.
func OneVsOneAUC(yTrue []int, scores [][]float64, labels []int) (float64, error) {
	if len(yTrue) != len(scores) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(yTrue), len(scores))
	}
	if len(labels) < 2 {
		return 0, fmt.Errorf("%w: need at least two labels, got %d", ErrUndefinedMetric, len(labels))
	}

	index := make(map[int]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}

	byClass := make([][]int, len(labels))
	for i, label := range yTrue {
		idx, ok := index[label]
		if !ok {
			return 0, fmt.Errorf("%w: true label %d not in %v", ErrUnknownLabel, label, labels)
		}
		byClass[idx] = append(byClass[idx], i)
	}

	total := 0.0
	weightSum := 0.0
	for a := 0; a < len(labels); a++ {
		for b := a + 1; b < len(labels); b++ {
			if len(byClass[a]) == 0 || len(byClass[b]) == 0 {
				continue
			}

			aucA := pairAUC(scores, byClass[a], byClass[b], a)
			aucB := pairAUC(scores, byClass[b], byClass[a], b)
			weight := float64(len(byClass[a]) + len(byClass[b]))

			total += weight * (aucA + aucB) / 2
			weightSum += weight
		}
	}

	if weightSum == 0 {
		return 0, fmt.Errorf("%w: no class pair has samples of both classes", ErrUndefinedMetric)
	}
	return total / weightSum, nil
}

// pairAUC is the Mann-Whitney statistic of column c for positives against
// negatives, with tied scores counted as one half.
func pairAUC(scores [][]float64, positives, negatives []int, c int) float64 {
	type scored struct {
		value    float64
		positive bool
	}

	all := make([]scored, 0, len(positives)+len(negatives))
	for _, i := range positives {
		all = append(all, scored{value: scores[i][c], positive: true})
	}
	for _, i := range negatives {
		all = append(all, scored{value: scores[i][c]})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].value < all[j].value })

	rankSum := 0.0
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].value == all[i].value {
			j++
		}
		avgRank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if all[k].positive {
				rankSum += avgRank
			}
		}
		i = j
	}

	nPos := float64(len(positives))
	nNeg := float64(len(negatives))
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg)
}
