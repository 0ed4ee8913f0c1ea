package calc

import "math"

// Finalize rejects non-finite values and rounds v to precision decimal
// places, ties to even. The rounding works on the exact binary value, so
// 2.675 rounds to 2.67 at two places.
func Finalize(v float64, precision int) (float64, error) {
	if math.IsNaN(v) {
		return 0, newError(KindNotANumber, "", "result is not a number")
	}
	if math.IsInf(v, 0) {
		return 0, newError(KindOverflow, "", "result is too large to represent")
	}
	if precision < 0 {
		precision = 0
	}
	out := roundHalfEven(v, precision)
	if out == 0 {
		// drop negative zero
		out = 0
	}
	return out, nil
}
