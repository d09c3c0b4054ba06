package bridges

import (
	"math"

	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/viz"
)

const (
	// CurvePoints caps the sampled transfer curves.
	CurvePoints = 64

	clipperFullScaleDB = 18.0
)

// DriveHeatTau is the glow smoothing time constant: 0.6 s at intensity 0
// down to 0.1 s at 100.
func DriveHeatTau(intensity float64) float64 {
	return viz.Remap(intensity, 0.6, 0.1)
}

// ClipperFlashDecay is the clip flash fade: 0.4 s down to 0.08 s.
func ClipperFlashDecay(intensity float64) float64 {
	return viz.Remap(intensity, 0.4, 0.08)
}

// transfer samples fn over x in [-1, 1] onto the canvas; y = 1 sits on the
// top edge.
func transfer(n int, width, height float64, fn func(x float64) float64) []Point {
	pts := make([]Point, n)
	if n < 2 {
		return pts
	}

	for i := range pts {
		x := float64(i)*2/float64(n-1) - 1
		pts[i] = Point{
			X: width * (x + 1) / 2,
			Y: height * (1 - (clamp(fn(x), -1, 1)+1)/2),
		}
	}

	return pts
}

// Drive draws the saturator's transfer curve and a glow that heats up with
// level and drive.
//
// Output keys: curve ([]Point), heat (0..1), hue (degrees), harmonics (0..1,
// how far the curve has bent below its small-signal slope at the current
// peak).
type Drive struct {
	cfg   viz.Config
	s     settings.Settings
	clock clock

	heat float64
}

// NewDrive creates a drive bridge.
func NewDrive(opts ...viz.Option) *Drive {
	return &Drive{
		cfg:   viz.NewConfig("drive", opts...),
		clock: newClock(),
	}
}

// SetParameters replaces the settings snapshot.
func (d *Drive) SetParameters(s settings.Settings) {
	d.s = s
}

// Process bends the curve by the drive amount and tints the glow with the
// warmth and color shelves.
func (d *Drive) Process(f viz.Frame) (viz.Data, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	dt := d.clock.step(f.Signal.Time)

	drive := clamp01(d.s.Num("drive", 30) / 100)
	warmth := clamp01(d.s.Num("warmth", 50) / 100)
	color := clamp01(d.s.Num("color", 50) / 100)
	level := clamp01(f.Signal.Level / 100)
	peak := clamp01(f.Signal.Peak / 255)

	k := 1 + drive*8
	norm := math.Tanh(k)
	shape := func(x float64) float64 { return math.Tanh(k*x) / norm }

	d.heat = viz.Approach(d.heat, level*drive, dt, DriveHeatTau(f.Global.AnimationIntensity))

	harmonics := 0.0
	if kp := k * peak; kp > 0 {
		harmonics = clamp01(1 - math.Tanh(kp)/kp)
	}

	n := viz.Density(f.Global.Complexity, CurvePoints)

	return viz.Data{
		"curve":     transfer(n, f.Width, f.Height, shape),
		"heat":      d.heat,
		"hue":       40 - 30*warmth + 40*(color-0.5),
		"harmonics": harmonics,
	}, nil
}

// Clipper draws the soft-knee clip curve with the driven peak against the
// ceiling.
//
// Output keys: curve ([]Point), reduction (dB, positive), ceilingY (pixels),
// clip (bool), flash (0..1).
type Clipper struct {
	cfg   viz.Config
	s     settings.Settings
	clock clock

	flash float64
}

// NewClipper creates a clipper bridge.
func NewClipper(opts ...viz.Option) *Clipper {
	return &Clipper{
		cfg:   viz.NewConfig("clipper", opts...),
		clock: newClock(),
	}
}

// SetParameters replaces the settings snapshot.
func (c *Clipper) SetParameters(s settings.Settings) {
	c.s = s
}

// Process measures how far the driven peak runs past the ceiling.
func (c *Clipper) Process(f viz.Frame) (viz.Data, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	dt := c.clock.step(f.Signal.Time)

	ceiling := fromDB(clamp(c.s.Num("ceiling", -1), -12, 0))
	softness := clamp01(c.s.Num("softness", 30) / 100)
	drive := fromDB(clamp01(c.s.Num("drive", 0)/100) * 18)
	driven := clamp01(f.Signal.Peak/255) * drive

	knee := ceiling * (1 - softness)
	shape := func(x float64) float64 {
		ax := math.Abs(x)
		switch {
		case ax <= knee:
		case softness == 0:
			ax = ceiling
		default:
			ax = knee + (ceiling-knee)*math.Tanh((ax-knee)/(ceiling-knee))
		}

		return math.Copysign(ax, x)
	}

	reduction := 0.0
	clipping := driven > knee

	if clipping {
		reduction = min(toDB(driven/shape(driven)), clipperFullScaleDB)
		c.flash = 1
	} else {
		c.flash = viz.Decay(c.flash, dt, ClipperFlashDecay(f.Global.AnimationIntensity))
	}

	n := viz.Density(f.Global.Complexity, CurvePoints)

	return viz.Data{
		"curve":     transfer(n, f.Width, f.Height, shape),
		"reduction": reduction,
		"ceilingY":  f.Height * (1 - ceiling) / 2,
		"clip":      clipping,
		"flash":     c.flash,
	}, nil
}
