package audio

import (
	"math"
	"sync"
)

// settleEpsilon ends an exponential approach once the remaining distance is negligible.
const settleEpsilon = 1e-9

// Param is an automatable node parameter.
//
// Writers (the UI side) call SetValue or SetTargetAtTime; the renderer
// advances the value sample by sample. Both may run on different goroutines.
type Param struct {
	mu sync.Mutex

	name     string
	min, max float64
	def      float64

	value   float64
	target  float64
	start   float64
	tau     float64
	ramping bool
}

func newParam(name string, def, minV, maxV float64) *Param {
	return &Param{
		name:   name,
		min:    minV,
		max:    maxV,
		def:    def,
		value:  def,
		target: def,
	}
}

// Name returns the parameter name.
func (p *Param) Name() string {
	return p.name
}

// Default returns the initial value.
func (p *Param) Default() float64 {
	return p.def
}

// Range returns the nominal [min, max] range.
func (p *Param) Range() (float64, float64) {
	return p.min, p.max
}

// SetValue jumps to v immediately, cancelling any pending approach.
func (p *Param) SetValue(v float64) {
	if math.IsNaN(v) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	v = clamp(v, p.min, p.max)
	p.value = v
	p.target = v
	p.ramping = false
}

// SetTargetAtTime starts an exponential approach towards target beginning at
// startTime (context seconds) with the given time constant in seconds:
//
//	v(t) = target + (v0 - target) * exp(-(t - startTime) / timeConstant)
//
// A non-positive time constant jumps immediately.
func (p *Param) SetTargetAtTime(target, startTime, timeConstant float64) {
	if math.IsNaN(target) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	target = clamp(target, p.min, p.max)
	p.target = target

	if timeConstant <= 0 || math.IsNaN(timeConstant) {
		p.value = target
		p.ramping = false

		return
	}

	p.start = startTime
	p.tau = timeConstant
	p.ramping = true
}

// Value returns the most recently rendered value.
func (p *Param) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.value
}

// Target returns the value the parameter is heading to.
func (p *Param) Target() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.target
}

// advance moves the parameter through one block starting at context time t0.
// When buf is non-nil it receives the per-sample values. The returned flag is
// true when the value was constant over the whole block.
func (p *Param) advance(frames int, t0, sampleRate float64, buf []float64) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ramping {
		return p.value, true
	}

	coef := math.Exp(-1 / (p.tau * sampleRate))
	dt := 1 / sampleRate
	v := p.value

	for i := range frames {
		if t0+float64(i)*dt >= p.start && p.ramping {
			v = p.target + (v-p.target)*coef
			if math.Abs(v-p.target) < settleEpsilon {
				v = p.target
				p.ramping = false
			}
		}

		if buf != nil {
			buf[i] = v
		}
	}

	p.value = v

	return v, false
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}

	if v > maxV {
		return maxV
	}

	return v
}
