package dynamics

import (
	"math"

	approx "github.com/meko-christian/algo-approx"
)

const ln2 = 0.693147180559945309417232121458

func mathLog2(x float64) float64 {
	return approx.FastLog(x) / ln2
}

func mathPower2(x float64) float64 {
	return approx.FastExp(x * ln2)
}

// mathPower10 runs once per parameter change, not per sample.
func mathPower10(x float64) float64 {
	return math.Pow(10, x)
}
