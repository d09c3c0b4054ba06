package bridges

import (
	"math"

	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/viz"
)

// DelayMaxEchoes caps the live echo rings.
const DelayMaxEchoes = 32

const delayMinAlpha = 0.02

// Echo is one expanding ring.
type Echo struct {
	Radius float64
	Alpha  float64
	Age    float64
	Life   float64
	Hue    float64

	amp float64
}

// DelayEchoLife is the base ring lifetime: 3 s at intensity 0 down to 1 s.
func DelayEchoLife(intensity float64) float64 {
	return viz.Remap(intensity, 3, 1)
}

// Delay spawns a ring per transient; each ring fades by the feedback
// amount once per delay period.
//
// Output keys: echoes ([]Echo), feedbackArc (degrees, 0..270).
type Delay struct {
	cfg   viz.Config
	s     settings.Settings
	clock clock

	echoes *viz.Ring[Echo]
}

// NewDelay creates a delay bridge.
func NewDelay(opts ...viz.Option) *Delay {
	return &Delay{
		cfg:    viz.NewConfig("delay", opts...),
		clock:  newClock(),
		echoes: viz.NewRing[Echo](DelayMaxEchoes),
	}
}

// SetParameters replaces the settings snapshot.
func (d *Delay) SetParameters(s settings.Settings) {
	d.s = s
}

// Process grows, fades and spawns echo rings.
func (d *Delay) Process(f viz.Frame) (viz.Data, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	dt := d.clock.step(f.Signal.Time)

	period := clamp(d.s.Num("time", 280), 20, 1200) / 1000
	feedback := clamp(d.s.Num("feedback", 35), 0, 92) / 100
	mix := clamp01(d.s.Num("mix", 24) / 100)
	tone := clamp01(d.s.Num("tone", 55) / 100)
	level := clamp01(f.Signal.Level / 100)

	maxRadius := math.Hypot(f.Width, f.Height) / 2
	speed := maxRadius / (4 * period)

	d.echoes.Update(func(e *Echo) bool {
		e.Age += dt
		e.Radius += speed * dt
		e.Alpha = e.amp * math.Pow(feedback, e.Age/period)

		return e.Age < e.Life && e.Alpha >= delayMinAlpha && e.Radius <= maxRadius
	})

	life := DelayEchoLife(f.Global.AnimationIntensity) * (0.5 + feedback)

	spawn := f.Signal.Transients && level > 0.01
	// ambient rings keep quiet material alive
	if !spawn && d.cfg.Rand.Float64() < level*dt*2 {
		spawn = true
		level *= 0.5
	}

	if spawn {
		amp := level * (0.3 + 0.7*mix)
		d.echoes.Push(Echo{
			Alpha: amp,
			Life:  life,
			Hue:   200 - 160*tone + 20*(d.cfg.Rand.Float64()-0.5),
			amp:   amp,
		})
	}

	n := viz.Density(f.Global.Complexity, DelayMaxEchoes)

	return viz.Data{
		"echoes":      d.echoes.Last(n),
		"feedbackArc": 270 * feedback / 0.92,
	}, nil
}
