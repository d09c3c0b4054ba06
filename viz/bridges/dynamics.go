package bridges

import (
	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/viz"
)

const (
	// GlueTrailCap bounds the pump trail.
	GlueTrailCap = 120
	// LimiterHistoryCap bounds the gain-reduction history.
	LimiterHistoryCap = 180

	glueFullScaleDB    = 24.0
	limiterFullScaleDB = 12.0
	glueAttack         = 0.01
)

// GlueReleaseScale multiplies the user release time: 1.5x at intensity 0
// down to 0.5x at 100.
func GlueReleaseScale(intensity float64) float64 {
	return viz.Remap(intensity, 1.5, 0.5)
}

// LimiterPeakDecay is the peak-hold decay time constant: 1.2 s down to 0.2 s.
func LimiterPeakDecay(intensity float64) float64 {
	return viz.Remap(intensity, 1.2, 0.2)
}

// LimiterFlashDecay is the clip flash fade: 0.5 s down to 0.1 s.
func LimiterFlashDecay(intensity float64) float64 {
	return viz.Remap(intensity, 0.5, 0.1)
}

// Glue shows the bus compressor as a VU needle with a trail of recent
// gain reduction.
//
// Output keys: reduction (dB, positive), trail ([]Point), needleAngle (degrees,
// -45 at rest to 45 at full scale).
type Glue struct {
	cfg   viz.Config
	s     settings.Settings
	clock clock

	reduction float64
	trail     *viz.Ring[float64]
}

// NewGlue creates a glue bridge.
func NewGlue(opts ...viz.Option) *Glue {
	return &Glue{
		cfg:   viz.NewConfig("glue", opts...),
		clock: newClock(),
		trail: viz.NewRing[float64](GlueTrailCap),
	}
}

// SetParameters replaces the settings snapshot.
func (g *Glue) SetParameters(s settings.Settings) {
	g.s = s
}

// Process follows the static compressor curve with attack/release ballistics.
func (g *Glue) Process(f viz.Frame) (viz.Data, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	dt := g.clock.step(f.Signal.Time)

	threshold := g.s.Num("threshold", -20)
	ratio := max(g.s.Num("ratio", 4), 1)
	release := max(g.s.Num("release", 100)/1000, 0.001)

	levelDB := toDB(clamp01(f.Signal.Level / 100))

	target := 0.0
	if over := levelDB - threshold; over > 0 {
		target = over * (1 - 1/ratio)
	}

	tau := release * GlueReleaseScale(f.Global.AnimationIntensity)
	if target > g.reduction {
		tau = glueAttack
	}

	g.reduction = viz.Approach(g.reduction, target, dt, tau)
	g.trail.Push(g.reduction)

	n := viz.Density(f.Global.Complexity, GlueTrailCap)

	return viz.Data{
		"reduction":   g.reduction,
		"trail":       polyline(g.trail.Last(n), glueFullScaleDB, f.Width, f.Height),
		"needleAngle": -45 + 90*clamp01(g.reduction/glueFullScaleDB),
	}, nil
}

// Limiter draws a peak meter against the ceiling with a gain-reduction
// history strip.
//
// Output keys: peakHold (0..1 linear), history ([]Point), ceilingY (pixels),
// clip (bool), flash (0..1).
type Limiter struct {
	cfg   viz.Config
	s     settings.Settings
	clock clock

	hold    float64
	flash   float64
	history *viz.Ring[float64]
}

// NewLimiter creates a limiter bridge.
func NewLimiter(opts ...viz.Option) *Limiter {
	return &Limiter{
		cfg:     viz.NewConfig("limiter", opts...),
		clock:   newClock(),
		history: viz.NewRing[float64](LimiterHistoryCap),
	}
}

// SetParameters replaces the settings snapshot.
func (l *Limiter) SetParameters(s settings.Settings) {
	l.s = s
}

// Process updates the peak hold and clip state.
func (l *Limiter) Process(f viz.Frame) (viz.Data, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	dt := l.clock.step(f.Signal.Time)
	intensity := f.Global.AnimationIntensity

	ceiling := fromDB(clamp(l.s.Num("ceiling", -0.3), -6, 0))
	drive := 1 + clamp01(l.s.Num("drive", 0)/100)*6
	driven := clamp01(f.Signal.Peak/255) * drive

	if driven > l.hold {
		l.hold = driven
	} else {
		l.hold = viz.Decay(l.hold, dt, LimiterPeakDecay(intensity))
	}

	gr := 0.0
	clipping := driven > ceiling

	if clipping {
		gr = toDB(driven / ceiling)
		l.flash = 1
	} else {
		l.flash = viz.Decay(l.flash, dt, LimiterFlashDecay(intensity))
	}

	l.history.Push(gr)

	n := viz.Density(f.Global.Complexity, LimiterHistoryCap)

	return viz.Data{
		"peakHold": min(l.hold, ceiling),
		"history":  polyline(l.history.Last(n), limiterFullScaleDB, f.Width, f.Height),
		"ceilingY": f.Height * (1 - ceiling),
		"clip":     clipping,
		"flash":    l.flash,
	}, nil
}
