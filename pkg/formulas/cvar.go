package formulas

import (
	"math"
	"sort"
)

// CalculateCVaR returns the Conditional Value at Risk of a return series at
// the given confidence level: the mean of the returns in the worst
// (1-confidence) tail. Negative values are losses.
func CalculateCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	if len(returns) == 1 {
		return returns[0]
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailProbability := 1.0 - confidence
	tailCount := int(math.Ceil(float64(len(sorted)) * tailProbability))
	if tailCount == 0 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	sum := 0.0
	for _, r := range sorted[:tailCount] {
		sum += r
	}
	return sum / float64(tailCount)
}

// CalculatePortfolioCVaR aggregates per-symbol historical CVaRs into a
// portfolio-level figure as the weight-proportional average.
func CalculatePortfolioCVaR(weights map[string]float64, returns map[string][]float64, confidence float64) float64 {
	if len(weights) == 0 {
		return 0.0
	}

	portfolioCVaR := 0.0
	for symbol, weight := range weights {
		rets, ok := returns[symbol]
		if !ok {
			continue
		}
		portfolioCVaR += weight * CalculateCVaR(rets, confidence)
	}
	return portfolioCVaR
}
