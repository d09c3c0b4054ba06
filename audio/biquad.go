package audio

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-mixx/dsp/filter/biquad"
	"github.com/cwbudde/algo-mixx/dsp/filter/design"
)

// FilterType selects the biquad response.
type FilterType int

const (
	// Lowpass is a second-order resonant lowpass.
	Lowpass FilterType = iota
	// Highpass is a second-order resonant highpass.
	Highpass
	// Lowshelf boosts or cuts below the corner frequency.
	Lowshelf
	// Highshelf boosts or cuts above the corner frequency.
	Highshelf
	// Peaking boosts or cuts a band around the centre frequency.
	Peaking
)

// String returns the lower-case filter type name.
func (t FilterType) String() string {
	switch t {
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	case Lowshelf:
		return "lowshelf"
	case Highshelf:
		return "highshelf"
	case Peaking:
		return "peaking"
	default:
		return "unknown"
	}
}

type designPoint struct {
	freq, gain, q float64
}

// BiquadFilter is a second-order IIR filter with automatable frequency,
// gain (dB, shelves and peaking only) and Q. Coefficients are recomputed once
// per block from the smoothed parameter values.
type BiquadFilter struct {
	*nodeCore

	typ       FilterType
	frequency *Param
	gain      *Param
	q         *Param

	coeffs   atomic.Pointer[biquad.Coefficients]
	designed designPoint
	sections []*biquad.Section
	out      Bus
}

// NewBiquadFilter creates a filter of the given type with default settings
// (350 Hz, 0 dB, Q = 1/sqrt(2)).
func NewBiquadFilter(ac *Context, typ FilterType) *BiquadFilter {
	nyquist := ac.sampleRate / 2
	f := &BiquadFilter{
		typ:       typ,
		frequency: newParam("frequency", 350, 10, nyquist*0.999),
		gain:      newParam("gain", 0, -40, 40),
		q:         newParam("Q", 1/math.Sqrt2, 0.0001, 1000),
	}
	f.nodeCore = ac.attach("biquad", 1, 1, 0, f)
	f.updateCoefficients(f.frequency.Default(), f.gain.Default(), f.q.Default())

	return f
}

// Type returns the filter response type.
func (f *BiquadFilter) Type() FilterType { return f.typ }

// Frequency returns the corner or centre frequency parameter in Hz.
func (f *BiquadFilter) Frequency() *Param { return f.frequency }

// Gain returns the gain parameter in dB.
func (f *BiquadFilter) Gain() *Param { return f.gain }

// Q returns the quality factor parameter.
func (f *BiquadFilter) Q() *Param { return f.q }

// Coefficients returns the coefficients used for the last rendered block.
func (f *BiquadFilter) Coefficients() biquad.Coefficients {
	return *f.coeffs.Load()
}

// FrequencyResponse writes the magnitude response for freqs (Hz) into mag
// using the current coefficients.
func (f *BiquadFilter) FrequencyResponse(freqs, mag []float64) {
	c := f.Coefficients()
	sr := f.ac.sampleRate

	for i := range min(len(freqs), len(mag)) {
		mag[i] = c.Magnitude(freqs[i], sr)
	}
}

func (f *BiquadFilter) render(in []Bus, frames int, t0 float64) []Bus {
	sr := f.ac.sampleRate
	freq, _ := f.frequency.advance(frames, t0, sr, nil)
	gain, _ := f.gain.advance(frames, t0, sr, nil)
	q, _ := f.q.advance(frames, t0, sr, nil)

	if d := (designPoint{freq, gain, q}); d != f.designed {
		f.updateCoefficients(freq, gain, q)
	}

	src := in[0]
	f.out = sizeBus(f.out, src.Channels(), frames)

	for len(f.sections) < src.Channels() {
		f.sections = append(f.sections, biquad.NewSection(biquad.Passthrough))
	}

	c := *f.coeffs.Load()

	for ch := range src {
		sec := f.sections[ch]
		sec.Coefficients = c
		sec.ProcessBlockTo(f.out[ch], src[ch])
	}

	return []Bus{f.out}
}

func (f *BiquadFilter) updateCoefficients(freq, gain, q float64) {
	c := designBiquad(f.typ, freq, gain, q, f.ac.sampleRate)
	f.designed = designPoint{freq, gain, q}
	f.coeffs.Store(&c)
}

// designBiquad returns Audio EQ Cookbook coefficients for typ. Shelves use a
// slope of 1 whatever q is.
func designBiquad(typ FilterType, freq, gainDB, q, sampleRate float64) biquad.Coefficients {
	freq = clamp(freq, 1, sampleRate*0.4999)
	q = math.Max(q, 1e-4)

	switch typ {
	case Lowpass:
		return design.Lowpass(freq, q, sampleRate)
	case Highpass:
		return design.Highpass(freq, q, sampleRate)
	case Lowshelf:
		return design.LowShelf(freq, gainDB, design.DefaultQ, sampleRate)
	case Highshelf:
		return design.HighShelf(freq, gainDB, design.DefaultQ, sampleRate)
	case Peaking:
		return design.Peak(freq, gainDB, q, sampleRate)
	default:
		return biquad.Passthrough
	}
}
