package pattern

import "math"

func isFiniteNonZeroDenom(d float64) bool {
	return d != 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}
