package plugins

import (
	"log/slog"
	"math"

	"github.com/cwbudde/algo-mixx/audio"
	"github.com/cwbudde/algo-mixx/engine"
)

const (
	driveCurvePoints = 4097
	driveWarmthHz    = 250.0
	driveColorHz     = 3000.0

	polishLowHz      = 220.0
	polishPresenceHz = 3000.0
	polishPresenceQ  = 0.8
	polishAirHz      = 8000.0

	delayMaxSeconds = 1.3
	delayMinToneHz  = 800.0
	delayMaxToneHz  = 12000.0
)

// Drive is a tanh saturator with warmth and color shelves.
type Drive struct {
	*engine.Base

	ac     *audio.Context
	io     *mixStage
	shaper *audio.WaveShaper
	trim   *audio.Gain
	warmth *audio.BiquadFilter
	color  *audio.BiquadFilter
}

// NewDrive creates an uninitialized drive engine (drive 30, mix 50).
func NewDrive(logger *slog.Logger) *Drive {
	d := &Drive{}
	specs := append([]engine.ParamSpec{
		{Name: "drive", Default: 30},
		{Name: "warmth", Default: 50},
		{Name: "color", Default: 50},
	}, mixSpecs(50)...)
	d.Base = engine.NewBase(KindDrive, specs, engine.Hooks{
		Build: d.build,
		Apply: d.apply,
		Reset: func() { d.io, d.shaper, d.trim, d.warmth, d.color = nil, nil, nil, nil, nil },
	}, logger)

	return d
}

// DriveAmount is the saturation factor k for a 0..100 drive knob.
func DriveAmount(drive float64) float64 {
	return 1 + norm(drive)*8
}

func (d *Drive) build(ac *audio.Context) (engine.Ports, error) {
	b := newBuilder(ac)
	d.ac = ac
	d.io = newMixStage(b)

	d.shaper = audio.NewWaveShaper(ac)
	b.track(d.shaper)

	d.trim = b.gain(1)
	d.warmth = b.filter(audio.Lowshelf, driveWarmthHz, 0.7071)
	d.color = b.filter(audio.Highshelf, driveColorHz, 0.7071)

	b.chain(d.io.in, d.shaper, d.trim, d.warmth, d.color, d.io.wet)

	return b.ports(d.io.in, d.io.out)
}

func (d *Drive) apply(name string, v engine.Values) {
	if d.io.apply(name, v) {
		return
	}

	switch name {
	case "drive":
		k := DriveAmount(v("drive"))
		d.shaper.SetCurve(audio.TanhCurve(driveCurvePoints, k))
		// the curve yields tanh(kx)/tanh(k); trim to tanh(kx)/sqrt(k)
		glide(d.ac, d.trim.Gain(), math.Tanh(k)/math.Sqrt(k), smoothing)
	case "warmth":
		glide(d.ac, d.warmth.Gain(), norm(v("warmth"))*6, smoothing)
	case "color":
		glide(d.ac, d.color.Gain(), (norm(v("color"))-0.5)*12, smoothing)
	}
}

// Polish is a three-band tonal balance: low shelf, presence peak and air shelf.
type Polish struct {
	*engine.Base

	ac       *audio.Context
	io       *mixStage
	low      *audio.BiquadFilter
	presence *audio.BiquadFilter
	air      *audio.BiquadFilter
}

// NewPolish creates an uninitialized polish engine with every band at 50.
func NewPolish(logger *slog.Logger) *Polish {
	p := &Polish{}
	specs := append([]engine.ParamSpec{
		{Name: "clarity", Default: 50},
		{Name: "air", Default: 50},
		{Name: "balance", Default: 50},
	}, mixSpecs(100)...)
	p.Base = engine.NewBase(KindPolish, specs, engine.Hooks{
		Build: p.build,
		Apply: p.apply,
		Reset: func() { p.io, p.low, p.presence, p.air = nil, nil, nil, nil },
	}, logger)

	return p
}

// PolishBalanceDB is the low shelf gain for a 0..100 balance knob.
func PolishBalanceDB(balance float64) float64 {
	return (balance - 50) / 50 * 6
}

// PolishAirDB is the high shelf gain for a 0..100 air knob.
func PolishAirDB(air float64) float64 {
	return air * 0.09
}

// PolishClarityDB is the presence gain for a 0..100 clarity knob.
func PolishClarityDB(clarity float64) float64 {
	return clarity * 0.06
}

func (p *Polish) build(ac *audio.Context) (engine.Ports, error) {
	b := newBuilder(ac)
	p.ac = ac
	p.io = newMixStage(b)

	p.low = b.filter(audio.Lowshelf, polishLowHz, 0.7071)
	p.presence = b.filter(audio.Peaking, polishPresenceHz, polishPresenceQ)
	p.air = b.filter(audio.Highshelf, polishAirHz, 0.7071)

	b.chain(p.io.in, p.low, p.presence, p.air, p.io.wet)

	return b.ports(p.io.in, p.io.out)
}

func (p *Polish) apply(name string, v engine.Values) {
	if p.io.apply(name, v) {
		return
	}

	switch name {
	case "balance":
		glide(p.ac, p.low.Gain(), PolishBalanceDB(v("balance")), smoothing)
	case "clarity":
		glide(p.ac, p.presence.Gain(), PolishClarityDB(v("clarity")), smoothing)
	case "air":
		glide(p.ac, p.air.Gain(), PolishAirDB(v("air")), smoothing)
	}
}

// Response returns the combined magnitude of the three bands at freqs, or
// nil while inactive.
func (p *Polish) Response(freqs []float64) []float64 {
	var bands []*audio.BiquadFilter

	if !p.Inspect(func() { bands = []*audio.BiquadFilter{p.low, p.presence, p.air} }) {
		return nil
	}

	out := make([]float64, len(freqs))
	tmp := make([]float64, len(freqs))

	for i := range out {
		out[i] = 1
	}

	for _, f := range bands {
		f.FrequencyResponse(freqs, tmp)

		for i := range out {
			out[i] *= tmp[i]
		}
	}

	return out
}

// Delay is a feedback echo with a darkening lowpass in the loop.
type Delay struct {
	*engine.Base

	ac       *audio.Context
	io       *mixStage
	line     *audio.Delay
	tone     *audio.BiquadFilter
	feedback *audio.Gain
}

// NewDelay creates an uninitialized delay engine (280 ms, 35% feedback, 24% mix).
func NewDelay(logger *slog.Logger) *Delay {
	d := &Delay{}
	specs := append([]engine.ParamSpec{
		{Name: "time", Min: 20, Max: 1200, Default: 280},
		{Name: "feedback", Min: 0, Max: 92, Default: 35},
		{Name: "tone", Default: 55},
	}, mixSpecs(24)...)
	d.Base = engine.NewBase(KindDelay, specs, engine.Hooks{
		Build: d.build,
		Apply: d.apply,
		Reset: func() { d.io, d.line, d.tone, d.feedback = nil, nil, nil, nil },
	}, logger)

	return d
}

// DelayToneHz is the feedback lowpass corner for a 0..100 tone knob.
func DelayToneHz(tone float64) float64 {
	return delayMinToneHz + (delayMaxToneHz-delayMinToneHz)*norm(tone)
}

func (d *Delay) build(ac *audio.Context) (engine.Ports, error) {
	b := newBuilder(ac)
	d.ac = ac
	d.io = newMixStage(b)

	d.line = audio.NewDelay(ac, delayMaxSeconds)
	b.track(d.line)

	d.tone = b.filter(audio.Lowpass, delayMaxToneHz, 0.7071)
	d.feedback = b.gain(0)

	b.chain(d.io.in, d.line, d.io.wet)
	b.chain(d.line, d.tone, d.feedback, d.line)

	return b.ports(d.io.in, d.io.out)
}

func (d *Delay) apply(name string, v engine.Values) {
	if d.io.apply(name, v) {
		return
	}

	switch name {
	case "time":
		glide(d.ac, d.line.DelayTime(), v("time")/1000, smoothing)
	case "feedback":
		glide(d.ac, d.feedback.Gain(), norm(v("feedback")), smoothing)
	case "tone":
		glide(d.ac, d.tone.Frequency(), DelayToneHz(v("tone")), smoothing)
	}
}
