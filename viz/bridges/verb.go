package bridges

import (
	"math"

	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/viz"
)

// VerbTailCap bounds the tail history.
const VerbTailCap = 120

// mean comb length of the verb engine, in seconds
const verbMeanComb = 1367.25 / 44100

// VerbDecayScale multiplies the room's RT60 on screen: 1.5x at intensity 0
// down to 0.5x at 100.
func VerbDecayScale(intensity float64) float64 {
	return viz.Remap(intensity, 1.5, 0.5)
}

// VerbRT60 is the decay time in seconds for a 0..100 size setting.
func VerbRT60(size float64) float64 {
	g := 0.7 + 0.28*clamp01(size/100)

	return -3 * verbMeanComb / math.Log10(g)
}

// Verb draws the room as a haze whose energy swells after the pre-delay and
// bleeds away over the decay time, with a strip of recent tail energy.
//
// Output keys: tail ([]Point), energy (0..1), decay (seconds), preDelayX
// (pixels), haze (0..1, brighter with less damping).
type Verb struct {
	cfg   viz.Config
	s     settings.Settings
	clock clock

	energy float64
	tail   *viz.Ring[float64]
}

// NewVerb creates a verb bridge.
func NewVerb(opts ...viz.Option) *Verb {
	return &Verb{
		cfg:   viz.NewConfig("verb", opts...),
		clock: newClock(),
		tail:  viz.NewRing[float64](VerbTailCap),
	}
}

// SetParameters replaces the settings snapshot.
func (v *Verb) SetParameters(s settings.Settings) {
	v.s = s
}

// Process swells towards the input level and decays at the room's RT60.
func (v *Verb) Process(f viz.Frame) (viz.Data, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	dt := v.clock.step(f.Signal.Time)

	size := clamp(v.s.Num("size", 50), 0, 100)
	damping := clamp01(v.s.Num("damping", 50) / 100)
	preDelay := clamp(v.s.Num("predelay", 20), 0, 200) / 1000
	mix := clamp01(v.s.Num("mix", 30) / 100)

	target := clamp01(f.Signal.Level/100) * (0.3 + 0.7*mix)
	rt60 := VerbRT60(size)

	if target > v.energy {
		v.energy = viz.Approach(v.energy, target, dt, preDelay+0.01)
	} else {
		// 60 dB of amplitude is ln(1000) time constants
		v.energy = viz.Decay(v.energy, dt, rt60*VerbDecayScale(f.Global.AnimationIntensity)/6.9)
	}

	v.tail.Push(v.energy)

	n := viz.Density(f.Global.Complexity, VerbTailCap)

	return viz.Data{
		"tail":      polyline(v.tail.Last(n), 1, f.Width, f.Height),
		"energy":    v.energy,
		"decay":     rt60,
		"preDelayX": f.Width * preDelay / 0.2,
		"haze":      1 - 0.8*damping,
	}, nil
}
