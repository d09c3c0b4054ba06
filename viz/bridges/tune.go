package bridges

import (
	"fmt"
	"math"
	"strings"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/viz"
)

// TuneHistoryCap bounds the needle history.
const TuneHistoryCap = 90

const (
	tuneMaxWindow   = 4096
	tuneMinHz       = 70.0
	tuneMaxHz       = 1500.0
	tuneClarity     = 0.5 // minimum normalized autocorrelation peak
	tuneMinLevel    = 2.0
	tuneMaxWobble   = 8.0 // cents at humanize 100
	tuneDefaultRate = 48000.0
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var scaleSteps = map[string][]int{
	"chromatic": {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	"major":     {0, 2, 4, 5, 7, 9, 11},
	"minor":     {0, 2, 3, 5, 7, 8, 10},
}

// TuneNeedleTau is the needle time constant at full retune speed: 0.3 s at
// intensity 0 down to 0.05 s.
func TuneNeedleTau(intensity float64) float64 {
	return viz.Remap(intensity, 0.3, 0.05)
}

// Tune estimates the pitch of the frame audio and draws a tuner needle
// snapped to the key and scale carried in viz.TuneExtra. It reads
// Signal.History when the source provides one and the waveform otherwise;
// a period must fit twice into the analysed samples, so the waveform alone
// only reaches down to SampleRate/128 Hz.
//
// Output keys: note (string, empty when unvoiced), cents (-50..50),
// needle (smoothed cents), history ([]Point), hz (0 when unvoiced).
type Tune struct {
	cfg   viz.Config
	s     settings.Settings
	clock clock

	size    int
	plan    *algofft.Plan[complex128]
	in, out []complex128
	re, im  []float64
	pow     []float64
	acf     []complex128

	note    string
	cents   float64
	needle  float64
	phase   float64
	history *viz.Ring[float64]
}

// NewTune creates a tune bridge.
func NewTune(opts ...viz.Option) (*Tune, error) {
	t := &Tune{
		cfg:     viz.NewConfig("tune", opts...),
		clock:   newClock(),
		history: viz.NewRing[float64](TuneHistoryCap),
	}

	err := t.resize(2 * viz.WaveformLength)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// resize prepares the FFT buffers for size points.
func (t *Tune) resize(size int) error {
	if size == t.size {
		return nil
	}

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return fmt.Errorf("bridges: tune fft plan: %w", err)
	}

	t.size = size
	t.plan = plan
	t.in = make([]complex128, size)
	t.out = make([]complex128, size)
	t.re = make([]float64, size)
	t.im = make([]float64, size)
	t.pow = make([]float64, size)
	t.acf = make([]complex128, size)

	return nil
}

// SetParameters replaces the settings snapshot.
func (t *Tune) SetParameters(s settings.Settings) {
	t.s = s
}

// Process updates the pitch estimate and moves the needle.
func (t *Tune) Process(f viz.Frame) (viz.Data, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	dt := t.clock.step(f.Signal.Time)

	retune := clamp01(t.s.Num("retuneSpeed", 50) / 100)
	humanize := clamp01(t.s.Num("humanize", 50) / 100)

	key, scale := "C", "chromatic"
	if extra, ok := f.Extra.(viz.TuneExtra); ok {
		if extra.Key != "" {
			key = extra.Key
		}

		if extra.Scale != "" {
			scale = extra.Scale
		}
	}

	rate := f.Signal.SampleRate
	if rate <= 0 {
		rate = tuneDefaultRate
	}

	wave := f.Signal.History
	if len(wave) < len(f.Signal.Waveform) {
		wave = f.Signal.Waveform
	}

	hz := 0.0
	if f.Signal.Level >= tuneMinLevel {
		hz, err = t.detect(wave, rate)
		if err != nil {
			return nil, err
		}
	}

	if hz > 0 {
		midi := 69 + 12*math.Log2(hz/440)
		snapped := SnapNote(midi, key, scale)
		t.note = NoteName(snapped)
		t.cents = clamp((midi-float64(snapped))*100, -50, 50)
	} else {
		t.note = ""
		t.cents = viz.Decay(t.cents, dt, 0.2)
	}

	wobble := tuneMaxWobble * humanize * math.Sin(t.phase)
	if t.s.Bool("emotiveLock") {
		wobble *= 0.25
	}

	t.phase = math.Mod(t.phase+dt*2*math.Pi*(3+t.cfg.Rand.Float64()), 2*math.Pi)

	tau := TuneNeedleTau(f.Global.AnimationIntensity) * (1.1 - retune)
	t.needle = viz.Approach(t.needle, t.cents+wobble, dt, tau)
	t.history.Push(t.needle + 50)

	n := viz.Density(f.Global.Complexity, TuneHistoryCap)

	return viz.Data{
		"note":    t.note,
		"cents":   t.cents,
		"needle":  t.needle,
		"history": polyline(t.history.Last(n), 100, f.Width, f.Height),
		"hz":      hz,
	}, nil
}

// detect returns the fundamental of wave in Hz, or 0 when no clear period
// is found. The autocorrelation comes from the zero-padded power spectrum.
func (t *Tune) detect(wave []float64, rate float64) (float64, error) {
	n := min(len(wave), tuneMaxWindow)
	if n == 0 {
		return 0, nil
	}

	// newest samples
	wave = wave[len(wave)-n:]

	err := t.resize(nextPow2(2 * n))
	if err != nil {
		return 0, err
	}

	mean := 0.0
	for _, v := range wave {
		mean += v
	}

	mean /= float64(n)

	for i := range t.in {
		v := 0.0
		if i < n {
			v = wave[i] - mean
		}

		t.in[i] = complex(v, 0)
	}

	err = t.plan.Forward(t.out, t.in)
	if err != nil {
		return 0, fmt.Errorf("bridges: tune fft: %w", err)
	}

	for k, c := range t.out {
		t.re[k] = real(c)
		t.im[k] = imag(c)
	}

	vecmath.Power(t.pow, t.re, t.im)

	for k, p := range t.pow {
		t.in[k] = complex(p, 0)
	}

	err = t.plan.Inverse(t.acf, t.in)
	if err != nil {
		return 0, fmt.Errorf("bridges: tune ifft: %w", err)
	}

	r0 := real(t.acf[0])
	if r0 <= 0 {
		return 0, nil
	}

	// two periods must fit into the window
	minLag := max(int(rate/tuneMaxHz), 2)
	maxLag := min(int(rate/tuneMinHz), n/2)

	if minLag >= maxLag {
		return 0, nil
	}

	// unbiased autocorrelation normalized to lag zero
	u := func(lag int) float64 {
		return real(t.acf[lag]) / r0 * float64(n) / float64(n-lag)
	}

	// leave the lobe around lag zero: stop at the first zero crossing or
	// at the first dip below the clarity threshold
	start := 0

	for lag := 1; lag < maxLag; lag++ {
		v := u(lag)
		if v <= 0 || (v < tuneClarity && u(lag+1) > v) {
			start = lag
			break
		}
	}

	if start == 0 {
		return 0, nil
	}

	start = max(start, minLag)

	peak := 0.0
	for lag := start; lag <= maxLag; lag++ {
		peak = max(peak, u(lag))
	}

	if peak < tuneClarity {
		return 0, nil
	}

	// first local maximum near the peak avoids octave errors; a rise that
	// is still climbing at maxLag belongs to a period the window cannot hold
	best := 0

	for lag := max(start, 1); lag < maxLag; lag++ {
		v := u(lag)
		if v < 0.9*peak || u(lag-1) > v || u(lag+1) > v {
			continue
		}

		best = lag

		break
	}

	if best == 0 {
		return 0, nil
	}

	a, b, c := u(best-1), u(best), u(best+1)

	lag := float64(best)
	if d := a - 2*b + c; d != 0 {
		lag += 0.5 * (a - c) / d
	}

	return rate / lag, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}

// SnapNote rounds a fractional MIDI note to the nearest note of the scale
// rooted at key. Unknown keys fall back to C and unknown scales to chromatic.
func SnapNote(midi float64, key, scale string) int {
	root := 0

	for i, name := range noteNames {
		if strings.EqualFold(name, key) {
			root = i
			break
		}
	}

	steps, ok := scaleSteps[strings.ToLower(scale)]
	if !ok {
		steps = scaleSteps["chromatic"]
	}

	center := int(math.Round(midi))
	best, bestDist := center, math.Inf(1)

	for cand := center - 6; cand <= center+6; cand++ {
		deg := ((cand-root)%12 + 12) % 12

		inScale := false
		for _, s := range steps {
			if s == deg {
				inScale = true
				break
			}
		}

		if !inScale {
			continue
		}

		if d := math.Abs(midi - float64(cand)); d < bestDist {
			best, bestDist = cand, d
		}
	}

	return best
}

// NoteName formats a MIDI note number such as 69 as "A4".
func NoteName(midi int) string {
	return fmt.Sprintf("%s%d", noteNames[((midi%12)+12)%12], midi/12-1)
}
