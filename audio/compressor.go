package audio

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-mixx/dsp/effects/dynamics"
)

// DynamicsCompressor is a stereo-linked feed-forward peak compressor with a
// soft knee. Threshold and knee are in dB, attack and release in seconds.
// It applies no makeup gain.
type DynamicsCompressor struct {
	*nodeCore

	threshold *Param
	knee      *Param
	ratio     *Param
	attack    *Param
	release   *Param

	comp      *dynamics.Compressor
	settings  [5]float64
	reduction atomic.Uint64
	out       Bus
}

// NewDynamicsCompressor creates a compressor with the common defaults
// (−24 dB threshold, 30 dB knee, 12:1, 3 ms attack, 250 ms release).
func NewDynamicsCompressor(ac *Context) *DynamicsCompressor {
	comp, err := dynamics.NewCompressor(ac.sampleRate)
	if err != nil {
		// the context validated its rate
		panic(err)
	}

	_ = comp.SetMakeupGain(0)

	c := &DynamicsCompressor{
		threshold: newParam("threshold", -24, -100, 0),
		knee:      newParam("knee", 30, dynamics.MinKneeDB, dynamics.MaxKneeDB),
		ratio:     newParam("ratio", 12, 1, 20),
		attack:    newParam("attack", 0.003, 0, 1),
		release:   newParam("release", 0.25, 0, 1),
		comp:      comp,
		settings:  [5]float64{math.NaN()},
	}
	c.nodeCore = ac.attach("compressor", 1, 1, 0, c)

	return c
}

// Threshold returns the threshold parameter in dB.
func (c *DynamicsCompressor) Threshold() *Param { return c.threshold }

// Knee returns the knee width parameter in dB.
func (c *DynamicsCompressor) Knee() *Param { return c.knee }

// Ratio returns the compression ratio parameter.
func (c *DynamicsCompressor) Ratio() *Param { return c.ratio }

// Attack returns the attack time parameter in seconds.
func (c *DynamicsCompressor) Attack() *Param { return c.attack }

// Release returns the release time parameter in seconds.
func (c *DynamicsCompressor) Release() *Param { return c.release }

// Reduction returns the current gain reduction in dB (zero or negative).
func (c *DynamicsCompressor) Reduction() float64 {
	return math.Float64frombits(c.reduction.Load())
}

// configure pushes changed parameter values into the gain computer. Times
// are clamped to the ranges it accepts, so the setters cannot fail.
func (c *DynamicsCompressor) configure(threshold, knee, ratio, attack, release float64) {
	next := [5]float64{threshold, knee, ratio, attack, release}
	if next == c.settings {
		return
	}

	c.settings = next

	_ = c.comp.SetThreshold(threshold)
	_ = c.comp.SetKnee(clamp(knee, dynamics.MinKneeDB, dynamics.MaxKneeDB))
	_ = c.comp.SetRatio(clamp(ratio, dynamics.MinRatio, dynamics.MaxRatio))
	_ = c.comp.SetAttack(clamp(attack*1000, dynamics.MinAttackMs, dynamics.MaxAttackMs))
	_ = c.comp.SetRelease(clamp(release*1000, dynamics.MinReleaseMs, dynamics.MaxReleaseMs))
}

func (c *DynamicsCompressor) render(in []Bus, frames int, t0 float64) []Bus {
	sr := c.ac.sampleRate
	threshold, _ := c.threshold.advance(frames, t0, sr, nil)
	knee, _ := c.knee.advance(frames, t0, sr, nil)
	ratio, _ := c.ratio.advance(frames, t0, sr, nil)
	attack, _ := c.attack.advance(frames, t0, sr, nil)
	release, _ := c.release.advance(frames, t0, sr, nil)

	c.configure(threshold, knee, ratio, attack, release)

	src := in[0]
	c.out = sizeBus(c.out, src.Channels(), frames)

	for i := range frames {
		peak := 0.0
		for ch := range src {
			peak = math.Max(peak, math.Abs(src[ch][i]))
		}

		gain := c.comp.Gain(peak)

		for ch := range src {
			c.out[ch][i] = src[ch][i] * gain
		}
	}

	reduction := 0.0
	if g := c.comp.LastGain(); g < 1 {
		reduction = 20 * math.Log10(g)
	}

	c.reduction.Store(math.Float64bits(reduction))

	return []Bus{c.out}
}
