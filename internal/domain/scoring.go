package domain

import "math"

// CriterionScore is one weighted rubric criterion result.
type CriterionScore struct {
	Name   string
	Score  int
	Weight float64
}

// DeterministicScore computes the weighted mean of criterion scores on the
// 1..10 scale. Scores are clamped to [1,10] and weights to >= 0 before
// averaging; empty input or zero total weight yields the floor score 1.
func DeterministicScore(criteria []CriterionScore) int {
	if len(criteria) == 0 {
		return 1
	}
	var weightedSum, weights float64
	for _, item := range criteria {
		score := item.Score
		if score < 1 {
			score = 1
		}
		if score > 10 {
			score = 10
		}
		weight := item.Weight
		if weight < 0 {
			weight = 0
		}
		weightedSum += float64(score) * weight
		weights += weight
	}
	if weights == 0 {
		return 1
	}
	return int(math.Round(weightedSum / weights))
}
