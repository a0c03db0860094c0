package formulas

import "math"

func isNaN(f float64) bool {
	return math.IsNaN(f)
}
