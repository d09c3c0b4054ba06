// Package signal produces the per-tick viz.Signal snapshots bridges consume:
// a seeded synthetic source for headless runs and a meter that listens to
// rendered audio.
package signal

import (
	"math"
	"time"

	approx "github.com/meko-christian/algo-approx"

	"github.com/cwbudde/algo-mixx/viz"
)

// Source yields a signal snapshot for the tick at now.
type Source interface {
	Snapshot(now time.Duration) viz.Signal
}

// Level maps an RMS amplitude onto 0..100 so that a full-scale sine reads 100.
func Level(rms float64) float64 {
	return clamp(rms*math.Sqrt2*100, 0, 100)
}

// Peak maps an absolute sample peak onto 0..255.
func Peak(p float64) float64 {
	return clamp(p*255, 0, 255)
}

const ln10 = 2.302585092994046

// DB converts an amplitude to decibels with a -120 dB floor.
func DB(x float64) float64 {
	if x <= 1e-6 {
		return -120
	}

	return approx.FastLog(x) * (20 / ln10)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}

	return math.Min(math.Max(v, lo), hi)
}
