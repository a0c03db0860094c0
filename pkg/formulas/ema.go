package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateEMA returns the latest exponential moving average of closes over
// length periods, falling back to a simple mean when the series is shorter
// than length.
func CalculateEMA(closes []float64, length int) *float64 {
	if len(closes) == 0 {
		return nil
	}

	if len(closes) < length {
		sma := Mean(closes)
		return &sma
	}

	ema := talib.Ema(closes, length)
	if len(ema) > 0 && !isNaN(ema[len(ema)-1]) {
		result := ema[len(ema)-1]
		return &result
	}

	sma := Mean(closes[len(closes)-length:])
	return &sma
}

// CalculateSMA returns the latest simple moving average of closes over
// length periods, or nil if the series is too short.
func CalculateSMA(closes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}

	sma := talib.Sma(closes, length)
	if len(sma) > 0 && !isNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}
	return nil
}

// CalculateDistanceFromEMA returns (price - EMA) / EMA for the latest close:
// positive when trading above the moving average, negative below.
func CalculateDistanceFromEMA(closes []float64, length int) *float64 {
	if len(closes) == 0 {
		return nil
	}

	ema := CalculateEMA(closes, length)
	if ema == nil || *ema == 0 {
		return nil
	}

	distance := (closes[len(closes)-1] - *ema) / *ema
	return &distance
}
