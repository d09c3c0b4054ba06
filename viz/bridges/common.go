// Package bridges holds the per-plugin visual simulations. Each bridge owns
// its state exclusively and advances it only inside Process.
package bridges

import (
	"math"

	approx "github.com/meko-christian/algo-approx"

	"github.com/cwbudde/algo-mixx/viz"
)

// Point is a 2-D position in canvas pixels.
type Point struct {
	X, Y float64
}

// clock turns the monotonic signal time into per-tick steps.
type clock struct {
	prev float64
}

func newClock() clock {
	return clock{prev: -1}
}

func (c *clock) step(now float64) float64 {
	dt := viz.Step(c.prev, now)
	c.prev = now

	return dt
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}

	return math.Min(math.Max(v, lo), hi)
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

const ln10 = 2.302585092994046

// toDB converts an amplitude to dB with a -120 dB floor.
func toDB(x float64) float64 {
	if x < 1e-6 {
		return -120
	}

	return approx.FastLog(x) * (20 / ln10)
}

func fromDB(db float64) float64 {
	return math.Pow(10, db/20)
}

// polyline spreads values across the canvas width; value 0 sits on the
// top edge and full scale on the bottom edge.
func polyline(values []float64, fullScale, width, height float64) []Point {
	pts := make([]Point, len(values))
	if len(values) == 0 {
		return pts
	}

	step := 0.0
	if len(values) > 1 {
		step = width / float64(len(values)-1)
	}

	for i, v := range values {
		pts[i] = Point{X: float64(i) * step, Y: height * clamp01(v/fullScale)}
	}

	return pts
}
