package formulas

import "math"

// tradingDaysPerYear is the KRX trading-day count used to annualize daily
// series.
const tradingDaysPerYear = 252.0

// CAGRFromCloses returns the compound annual growth rate of a daily close
// series spanning tradingDays intervals, as a decimal (0.11 = 11%). Returns
// nil when the series is too short or degenerate to annualize: fewer than
// three months of trading days, or a non-positive endpoint.
func CAGRFromCloses(closes []float64, tradingDays int) *float64 {
	const minTradingDays = 63 // ~3 months

	if len(closes) < 2 || tradingDays < minTradingDays {
		return nil
	}

	start := closes[0]
	end := closes[len(closes)-1]
	if start <= 0 || end <= 0 {
		return nil
	}

	years := float64(tradingDays) / tradingDaysPerYear
	cagr := math.Pow(end/start, 1/years) - 1
	return &cagr
}
