package core

import (
	"math"
	"sort"
)

// TierWeights are the combo-matrix tier weights
var TierWeights = map[Tier]float64{
	TierSimple:  0.20,
	TierMedium:  0.30,
	TierComplex: 0.50,
}

// ReadinessWeights are the discovery-phase category weights
var ReadinessWeights = map[string]float64{
	"tool":            0.20,
	"rag":             0.18,
	"reasoning":       0.15,
	"intent":          0.10,
	"browser":         0.10,
	"multi_turn":      0.10,
	"boundary":        0.10,
	"fault_injection": 0.07,
}

// ReadinessOrder is the declared order of the discovery categories
var ReadinessOrder = []string{"tool", "rag", "reasoning", "intent", "browser", "multi_turn", "boundary", "fault_injection"}

// WeightedFitness evaluates a score as the rounded weighted sum of per-key scores.
// Missing keys count as 0. Keys are summed in Order so rounding is reproducible.
type WeightedFitness struct {
	Weights map[string]float64
	Order   []string
}

func NewWeightedFitness(weights map[string]float64, order []string) *WeightedFitness {
	if len(order) == 0 {
		for k := range weights {
			order = append(order, k)
		}
		sort.Strings(order)
	}
	return &WeightedFitness{Weights: weights, Order: order}
}

func (w *WeightedFitness) Score(scores map[string]int) int {
	exact := make(map[string]float64, len(scores))
	for k, v := range scores {
		exact[k] = float64(v)
	}
	return w.ScoreExact(exact)
}

// ScoreExact is Score over unrounded per-key scores
func (w *WeightedFitness) ScoreExact(scores map[string]float64) int {
	total := 0.0
	for _, k := range w.Order {
		total += scores[k] * w.Weights[k]
	}
	return int(math.Round(total))
}

func (w *WeightedFitness) Passed(score int, threshold int) bool {
	return score >= threshold
}

// TierFitness returns the fitness over the three combo tiers
func TierFitness() *WeightedFitness {
	weights := make(map[string]float64, len(TierWeights))
	order := make([]string, 0, len(Tiers))
	for _, t := range Tiers {
		weights[string(t)] = TierWeights[t]
		order = append(order, string(t))
	}
	return NewWeightedFitness(weights, order)
}

// ReadinessFitness returns the fitness over the discovery categories
func ReadinessFitness() *WeightedFitness {
	return NewWeightedFitness(ReadinessWeights, ReadinessOrder)
}

// Percent returns round(100*n/d), 0 when d is 0
func Percent(n, d int) int {
	if d == 0 {
		return 0
	}
	return int(math.Round(100 * float64(n) / float64(d)))
}

// Mean returns the rounded mean of the values, 0 when empty
func Mean(values []int) int {
	return int(math.Round(ExactMean(values)))
}

// ExactMean returns the unrounded mean of the values, 0 when empty
func ExactMean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// ScoreCombo aggregates results into a ComboScore for the pair
func ScoreCombo(main, executor string, results []TestResult) ComboScore {
	score := ComboScore{
		MainModel:      main,
		ExecutorModel:  executor,
		CategoryScores: make(map[Category]int),
		TierScores:     make(map[Tier]float64),
		TotalTests:     len(results),
		Results:        results,
	}

	byTier := make(map[Tier][]int)
	valid, mainCorrect := 0, 0
	toolTests, executorOK := 0, 0

	for _, r := range results {
		catScore := 0
		if r.Passed {
			catScore = 100
		}
		score.CategoryScores[r.Category] = catScore
		byTier[r.Tier] = append(byTier[r.Tier], catScore)

		switch {
		case r.Skipped:
			score.SkippedTests++
			continue
		case r.TimedOut:
			score.TimedOutTests++
			continue
		}

		valid++
		if !r.MainCorrect {
			continue
		}
		mainCorrect++
		if r.RequiresTool {
			toolTests++
			if r.ExecutorCorrect {
				executorOK++
			}
		}
	}

	tierScores := make(map[string]float64, len(Tiers))
	for _, t := range Tiers {
		s := ExactMean(byTier[t])
		score.TierScores[t] = s
		tierScores[string(t)] = s
	}

	score.MainScore = Percent(mainCorrect, valid)
	if toolTests == 0 {
		score.ExecutorScore = 100
	} else {
		score.ExecutorScore = Percent(executorOK, toolTests)
	}
	score.OverallScore = TierFitness().ScoreExact(tierScores)
	return score
}

// SortCombos orders combos by overall score, descending, keeping input order on ties
func SortCombos(combos []ComboScore) {
	sort.SliceStable(combos, func(i, j int) bool {
		return combos[i].OverallScore > combos[j].OverallScore
	})
}
