package audio

import (
	"math"
	"sync/atomic"
)

// WaveShaper maps each sample through a transfer curve sampled uniformly over
// [-1, 1]. Inputs outside that range use the curve end points; a nil curve
// passes the signal through.
type WaveShaper struct {
	*nodeCore

	curve atomic.Pointer[[]float64]
	out   Bus
}

// NewWaveShaper creates a shaper without a curve.
func NewWaveShaper(ac *Context) *WaveShaper {
	w := &WaveShaper{}
	w.nodeCore = ac.attach("waveshaper", 1, 1, 0, w)

	return w
}

// SetCurve installs a copy of curve. Curves shorter than two points disable shaping.
func (w *WaveShaper) SetCurve(curve []float64) {
	if len(curve) < 2 {
		w.curve.Store(nil)
		return
	}

	c := make([]float64, len(curve))
	copy(c, curve)
	w.curve.Store(&c)
}

// Curve returns the installed curve, or nil.
func (w *WaveShaper) Curve() []float64 {
	p := w.curve.Load()
	if p == nil {
		return nil
	}

	return *p
}

func (w *WaveShaper) render(in []Bus, frames int, _ float64) []Bus {
	src := in[0]
	w.out = sizeBus(w.out, src.Channels(), frames)

	p := w.curve.Load()
	if p == nil {
		copyBus(w.out, src)
		return []Bus{w.out}
	}

	curve := *p
	last := float64(len(curve) - 1)

	for c := range src {
		dst := w.out[c]
		for i, x := range src[c] {
			dst[i] = shape(curve, last, x)
		}
	}

	return []Bus{w.out}
}

func shape(curve []float64, last, x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}

	pos := (clamp(x, -1, 1) + 1) * 0.5 * last

	i := int(pos)
	if i >= len(curve)-1 {
		return curve[len(curve)-1]
	}

	frac := pos - float64(i)

	return curve[i] + frac*(curve[i+1]-curve[i])
}

// TanhCurve returns an n-point saturation curve tanh(k*x) normalized to ±1 at the edges.
func TanhCurve(n int, k float64) []float64 {
	n = max(n, 2)
	k = math.Max(k, 1e-3)
	norm := math.Tanh(k)
	curve := make([]float64, n)

	for i := range curve {
		x := float64(i)*2/float64(n-1) - 1
		curve[i] = math.Tanh(k*x) / norm
	}

	return curve
}

// HardClipCurve returns an n-point curve clamping at ±ceiling.
func HardClipCurve(n int, ceiling float64) []float64 {
	n = max(n, 2)
	curve := make([]float64, n)

	for i := range curve {
		x := float64(i)*2/float64(n-1) - 1
		curve[i] = clamp(x, -ceiling, ceiling)
	}

	return curve
}

// SoftClipCurve returns an n-point curve that is linear up to
// (1-softness)*ceiling and bends from there into ±ceiling along a tanh
// knee. softness is in [0, 1]; 0 gives HardClipCurve.
func SoftClipCurve(n int, ceiling, softness float64) []float64 {
	softness = clamp(softness, 0, 1)
	if softness == 0 {
		return HardClipCurve(n, ceiling)
	}

	n = max(n, 2)
	knee := ceiling * (1 - softness)
	span := ceiling - knee
	curve := make([]float64, n)

	for i := range curve {
		x := float64(i)*2/float64(n-1) - 1

		ax := math.Abs(x)
		if ax > knee {
			ax = knee + span*math.Tanh((ax-knee)/span)
		}

		curve[i] = math.Copysign(ax, x)
	}

	return curve
}
