package bridges

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-mixx/dsp/window"
	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/viz"
)

// PolishMaxBars is the spectrum bar count at high complexity.
const PolishMaxBars = 32

const (
	polishFFTSize = viz.WaveformLength
	polishFloorDB = -60.0
)

// PolishFalloff is the time a bar takes to fall from full scale to zero:
// 0.8 s at intensity 0 down to 0.2 s.
func PolishFalloff(intensity float64) float64 {
	return viz.Remap(intensity, 0.8, 0.2)
}

// Polish renders the waveform spectrum as log-spaced bars tilted by the
// balance control, with an air glow over the top band.
//
// Output keys: bars ([]float64, 0..1, low to high), airGlow (0..1),
// balanceTilt (-1..1).
type Polish struct {
	cfg   viz.Config
	s     settings.Settings
	clock clock

	plan   *algofft.Plan[complex128]
	window []float64
	scale  float64
	in     []complex128
	out    []complex128
	re, im []float64
	mag    []float64
	bars   []float64
	glow   float64
}

// NewPolish creates a polish bridge.
func NewPolish(opts ...viz.Option) (*Polish, error) {
	plan, err := algofft.NewPlan64(polishFFTSize)
	if err != nil {
		return nil, fmt.Errorf("bridges: polish fft plan: %w", err)
	}

	bins := polishFFTSize / 2
	w, err := window.Hann(polishFFTSize, window.WithPeriodic())
	if err != nil {
		return nil, fmt.Errorf("bridges: polish window: %w", err)
	}

	return &Polish{
		cfg:    viz.NewConfig("polish", opts...),
		clock:  newClock(),
		plan:   plan,
		window: w,
		scale:  2 / (float64(polishFFTSize) * window.CoherentGain(w)),
		in:     make([]complex128, polishFFTSize),
		out:    make([]complex128, polishFFTSize),
		re:     make([]float64, bins),
		im:     make([]float64, bins),
		mag:    make([]float64, bins),
	}, nil
}

// SetParameters replaces the settings snapshot.
func (p *Polish) SetParameters(s settings.Settings) {
	p.s = s
}

// Process analyses the frame waveform and moves the bars.
func (p *Polish) Process(f viz.Frame) (viz.Data, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	dt := p.clock.step(f.Signal.Time)

	clarity := clamp01(p.s.Num("clarity", 50) / 100)
	air := clamp01(p.s.Num("air", 50) / 100)
	tilt := clamp(p.s.Num("balance", 50)/50-1, -1, 1)

	err = p.spectrum(f.Signal.Waveform)
	if err != nil {
		return nil, err
	}

	n := viz.Density(f.Global.Complexity, PolishMaxBars)
	if len(p.bars) != n {
		p.bars = make([]float64, n)
	}

	fall := dt / PolishFalloff(f.Global.AnimationIntensity)
	edges := logEdges(len(p.mag), n)

	for i := range n {
		v := bandLevel(p.mag[edges[i]:edges[i+1]])

		pos := 0.0
		if n > 1 {
			pos = float64(i) / float64(n-1)
		}

		// balance tilts lows against highs, clarity lifts the mids
		v *= 1 + 0.5*tilt*(pos-0.5)*2
		v *= 1 + 0.3*(clarity-0.5)*math.Exp(-sq((pos-0.5)*4))

		if pos > 2.0/3 {
			v += 0.15 * air * clamp01(f.Signal.Level/100)
		}

		p.bars[i] = max(clamp01(v), p.bars[i]-fall)
	}

	p.glow = viz.Approach(p.glow, air*clamp01(f.Signal.Level/100), dt, PolishFalloff(f.Global.AnimationIntensity))

	return viz.Data{
		"bars":        append([]float64(nil), p.bars...),
		"airGlow":     p.glow,
		"balanceTilt": tilt,
	}, nil
}

// spectrum fills p.mag with the windowed magnitude spectrum of wave,
// zero-padding short input.
func (p *Polish) spectrum(wave []float64) error {
	for i := range p.in {
		v := 0.0
		if i < len(wave) {
			v = wave[i]
		}

		p.in[i] = complex(v*p.window[i], 0)
	}

	err := p.plan.Forward(p.out, p.in)
	if err != nil {
		return fmt.Errorf("bridges: polish fft: %w", err)
	}

	for k := range p.re {
		p.re[k] = real(p.out[k])
		p.im[k] = imag(p.out[k])
	}

	vecmath.Magnitude(p.mag, p.re, p.im)
	// a full-scale sine reads 1 in its bin
	vecmath.ScaleBlock(p.mag, p.mag, p.scale)

	return nil
}

// bandLevel maps the mean magnitude of a band onto 0..1 over the display range.
func bandLevel(band []float64) float64 {
	if len(band) == 0 {
		return 0
	}

	sum := 0.0
	for _, m := range band {
		sum += m
	}

	return clamp01((toDB(sum/float64(len(band))) - polishFloorDB) / -polishFloorDB)
}

// logEdges splits bins 1..bins into n log-spaced bands with at least one bin
// each. The result has n+1 entries.
func logEdges(bins, n int) []int {
	edges := make([]int, n+1)
	edges[0] = 1

	ratio := math.Pow(float64(bins), 1/float64(n))

	for i := 1; i <= n; i++ {
		e := int(math.Round(math.Pow(ratio, float64(i))))
		edges[i] = min(max(e, edges[i-1]+1), bins)
	}

	edges[n] = bins

	// a crowded top can leave empty bands; back-fill them downward
	for i := n - 1; i > 0; i-- {
		if edges[i] >= edges[i+1] {
			edges[i] = edges[i+1] - 1
		}
	}

	return edges
}

func sq(x float64) float64 {
	return x * x
}
