package plugins

import (
	"log/slog"
	"math"

	"github.com/cwbudde/algo-mixx/audio"
	"github.com/cwbudde/algo-mixx/engine"
)

const (
	glueAttack = 0.010
	glueKnee   = 6.0

	limiterRatio   = 20.0
	limiterAttack  = 0.0005
	limiterRelease = 0.050
	// limiterLookahead is the delay at lookahead = 100.
	limiterLookahead = 0.005
	clipCurvePoints  = 2049
)

// Glue is a bus compressor with parallel blend.
type Glue struct {
	*engine.Base

	ac   *audio.Context
	io   *mixStage
	comp *audio.DynamicsCompressor
}

// NewGlue creates an uninitialized glue compressor (−20 dB, 4:1, 100 ms release).
func NewGlue(logger *slog.Logger) *Glue {
	g := &Glue{}
	specs := append([]engine.ParamSpec{
		{Name: "threshold", Min: -48, Max: 0, Default: -20},
		{Name: "ratio", Min: 1, Max: 20, Default: 4},
		{Name: "release", Min: 20, Max: 1000, Default: 100},
	}, mixSpecs(100)...)
	g.Base = engine.NewBase(KindGlue, specs, engine.Hooks{
		Build: g.build,
		Apply: g.apply,
		Reset: func() { g.io, g.comp = nil, nil },
	}, logger)

	return g
}

func (g *Glue) build(ac *audio.Context) (engine.Ports, error) {
	b := newBuilder(ac)
	g.ac = ac
	g.io = newMixStage(b)

	g.comp = audio.NewDynamicsCompressor(ac)
	g.comp.Knee().SetValue(glueKnee)
	g.comp.Attack().SetValue(glueAttack)
	b.track(g.comp)

	b.chain(g.io.in, g.comp, g.io.wet)

	return b.ports(g.io.in, g.io.out)
}

func (g *Glue) apply(name string, v engine.Values) {
	if g.io.apply(name, v) {
		return
	}

	switch name {
	case "threshold":
		g.comp.Threshold().SetValue(v("threshold"))
	case "ratio":
		g.comp.Ratio().SetValue(v("ratio"))
	case "release":
		g.comp.Release().SetValue(v("release") / 1000)
	}
}

// Reduction returns the compressor's current gain reduction in dB, or 0
// while inactive.
func (g *Glue) Reduction() float64 {
	var db float64

	g.Inspect(func() { db = g.comp.Reduction() })

	return db
}

// Limiter is a brickwall limiter: drive, lookahead delay, fast compressor and
// a final clamp at the ceiling.
type Limiter struct {
	*engine.Base

	ac        *audio.Context
	io        *mixStage
	drive     *audio.Gain
	lookahead *audio.Delay
	comp      *audio.DynamicsCompressor
	clip      *audio.WaveShaper
}

// NewLimiter creates an uninitialized limiter (ceiling −0.3 dB, no drive).
func NewLimiter(logger *slog.Logger) *Limiter {
	l := &Limiter{}
	specs := append([]engine.ParamSpec{
		{Name: "ceiling", Min: -6, Max: 0, Default: -0.3},
		{Name: "drive", Default: 0},
		{Name: "lookahead", Default: 50},
	}, mixSpecs(100)...)
	l.Base = engine.NewBase(KindLimiter, specs, engine.Hooks{
		Build: l.build,
		Apply: l.apply,
		Reset: func() { l.io, l.drive, l.lookahead, l.comp, l.clip = nil, nil, nil, nil, nil },
	}, logger)

	return l
}

// LimiterDriveGain is the pre-gain for a 0..100 drive knob.
func LimiterDriveGain(drive float64) float64 {
	return 1 + norm(drive)*6
}

// CeilingLinear converts the ceiling in dB to a linear amplitude.
func CeilingLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func (l *Limiter) build(ac *audio.Context) (engine.Ports, error) {
	b := newBuilder(ac)
	l.ac = ac
	l.io = newMixStage(b)

	l.drive = b.gain(1)

	l.lookahead = audio.NewDelay(ac, limiterLookahead)
	b.track(l.lookahead)

	l.comp = audio.NewDynamicsCompressor(ac)
	l.comp.Ratio().SetValue(limiterRatio)
	l.comp.Knee().SetValue(0)
	l.comp.Attack().SetValue(limiterAttack)
	l.comp.Release().SetValue(limiterRelease)
	b.track(l.comp)

	l.clip = audio.NewWaveShaper(ac)
	b.track(l.clip)

	b.chain(l.io.in, l.drive, l.lookahead, l.comp, l.clip, l.io.wet)

	return b.ports(l.io.in, l.io.out)
}

func (l *Limiter) apply(name string, v engine.Values) {
	if l.io.apply(name, v) {
		return
	}

	switch name {
	case "ceiling":
		ceiling := v("ceiling")
		l.comp.Threshold().SetValue(ceiling)
		l.clip.SetCurve(audio.HardClipCurve(clipCurvePoints, CeilingLinear(ceiling)))
	case "drive":
		glide(l.ac, l.drive.Gain(), LimiterDriveGain(v("drive")), smoothing)
	case "lookahead":
		l.lookahead.DelayTime().SetValue(norm(v("lookahead")) * limiterLookahead)
	}
}

// Reduction returns the current gain reduction in dB, or 0 while inactive.
func (l *Limiter) Reduction() float64 {
	var db float64

	l.Inspect(func() { db = l.comp.Reduction() })

	return db
}

// Clipper drives the signal into a soft-knee clip curve at the ceiling.
type Clipper struct {
	*engine.Base

	ac    *audio.Context
	io    *mixStage
	drive *audio.Gain
	clip  *audio.WaveShaper
}

// NewClipper creates an uninitialized clipper (ceiling −1 dB, softness 30, no drive).
func NewClipper(logger *slog.Logger) *Clipper {
	c := &Clipper{}
	specs := append([]engine.ParamSpec{
		{Name: "ceiling", Min: -12, Max: 0, Default: -1},
		{Name: "softness", Default: 30},
		{Name: "drive", Default: 0},
	}, mixSpecs(100)...)
	c.Base = engine.NewBase(KindClipper, specs, engine.Hooks{
		Build: c.build,
		Apply: c.apply,
		Reset: func() { c.io, c.drive, c.clip = nil, nil, nil },
	}, logger)

	return c
}

// ClipperDriveGain is the pre-gain for a 0..100 drive knob: unity up to +18 dB.
func ClipperDriveGain(drive float64) float64 {
	return math.Pow(10, norm(drive)*18/20)
}

func (c *Clipper) build(ac *audio.Context) (engine.Ports, error) {
	b := newBuilder(ac)
	c.ac = ac
	c.io = newMixStage(b)

	c.drive = b.gain(1)

	c.clip = audio.NewWaveShaper(ac)
	b.track(c.clip)

	b.chain(c.io.in, c.drive, c.clip, c.io.wet)

	return b.ports(c.io.in, c.io.out)
}

func (c *Clipper) apply(name string, v engine.Values) {
	if c.io.apply(name, v) {
		return
	}

	switch name {
	case "ceiling", "softness":
		c.clip.SetCurve(audio.SoftClipCurve(clipCurvePoints, CeilingLinear(v("ceiling")), norm(v("softness"))))
	case "drive":
		glide(c.ac, c.drive.Gain(), ClipperDriveGain(v("drive")), smoothing)
	}
}
