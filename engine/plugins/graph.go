// Package plugins holds the concrete audio engines: aura, glue, limiter,
// clipper, drive, delay, verb and polish. Every engine composes engine.Base
// and only supplies its graph builder and parameter mapping.
package plugins

import (
	"github.com/cwbudde/algo-mixx/audio"
	"github.com/cwbudde/algo-mixx/engine"
)

// Kinds served by this package.
const (
	KindAura    = "aura"
	KindGlue    = "glue"
	KindLimiter = "limiter"
	KindDrive   = "drive"
	KindDelay   = "delay"
	KindPolish  = "polish"
	KindVerb    = "verb"
	KindClipper = "clipper"
)

const (
	// smoothing is the time constant for knob-driven gain and filter moves.
	smoothing = 0.05
	// makeupSmoothing is the slower time constant for output level moves.
	makeupSmoothing = 0.1
)

// norm maps a 0..100 knob onto 0..1.
func norm(v float64) float64 {
	return v / 100
}

// glide starts a smoothed move of p towards target at the context's current time.
func glide(ac *audio.Context, p *audio.Param, target, tau float64) {
	p.SetTargetAtTime(target, ac.CurrentTime(), tau)
}

// builder allocates nodes on one context, remembering them for Dispose and
// keeping the first wiring error.
type builder struct {
	ac    *audio.Context
	nodes []audio.Node
	err   error
}

func newBuilder(ac *audio.Context) *builder {
	return &builder{ac: ac}
}

func (b *builder) track(n audio.Node) {
	b.nodes = append(b.nodes, n)
}

func (b *builder) gain(v float64) *audio.Gain {
	n := audio.NewGain(b.ac, v)
	b.track(n)

	return n
}

func (b *builder) filter(typ audio.FilterType, freq, q float64) *audio.BiquadFilter {
	n := audio.NewBiquadFilter(b.ac, typ)
	n.Frequency().SetValue(freq)
	n.Q().SetValue(q)
	b.track(n)

	return n
}

// delay allocates a line fixed at sec seconds.
func (b *builder) delay(sec float64) *audio.Delay {
	n := audio.NewDelay(b.ac, sec)
	n.DelayTime().SetValue(sec)
	b.track(n)

	return n
}

// allpass appends a Schroeder allpass of length sec and gain g after src
// and returns its output:
//
//	src ─┬─ sum ─ line ─┬─ out
//	     │   └─── g ────┘   │
//	     └────── −1 ────────┘
func (b *builder) allpass(src audio.Node, sec, g float64) audio.Node {
	sum := b.gain(1)
	line := b.delay(sec)
	fb := b.gain(g)
	invert := b.gain(-1)
	out := b.gain(1)

	b.chain(src, sum, line, out)
	b.chain(line, fb, sum)
	b.chain(src, invert, out)

	return out
}

func (b *builder) connect(src, dst audio.Node) {
	b.connectPort(src, 0, dst, 0)
}

func (b *builder) connectPort(src audio.Node, output int, dst audio.Node, input int) {
	if b.err != nil {
		return
	}

	b.err = audio.ConnectPort(src, output, dst, input)
}

// chain connects nodes in series.
func (b *builder) chain(nodes ...audio.Node) {
	for i := 1; i < len(nodes); i++ {
		b.connect(nodes[i-1], nodes[i])
	}
}

func (b *builder) ports(in, out audio.Node) (engine.Ports, error) {
	return engine.Ports{Input: in, Output: out, Nodes: b.nodes}, b.err
}

// mixStage is the dry/wet blend and output trim shared by every engine:
//
//	in ─┬─ dry ──────────┐
//	    └─ (effect) ─ wet ┴─ out
type mixStage struct {
	ac  *audio.Context
	in  *audio.Gain
	dry *audio.Gain
	wet *audio.Gain
	out *audio.Gain
}

func newMixStage(b *builder) *mixStage {
	m := &mixStage{
		ac:  b.ac,
		in:  b.gain(1),
		dry: b.gain(0),
		wet: b.gain(1),
		out: b.gain(1),
	}
	b.chain(m.in, m.dry, m.out)
	b.connect(m.wet, m.out)

	return m
}

// apply handles the shared mix and output parameters. It reports whether
// name was one of them.
func (m *mixStage) apply(name string, v engine.Values) bool {
	switch name {
	case "mix":
		wet := norm(v("mix"))
		glide(m.ac, m.wet.Gain(), wet, smoothing)
		glide(m.ac, m.dry.Gain(), 1-wet, smoothing)
	case "output":
		glide(m.ac, m.out.Gain(), OutputGain(v("output")), makeupSmoothing)
	default:
		return false
	}

	return true
}

// OutputGain maps the 0..100 output knob onto 0..2 linear gain; 50 is unity.
func OutputGain(output float64) float64 {
	return output / 50
}

// mixSpecs returns the shared mix and output declarations.
func mixSpecs(mixDefault float64) []engine.ParamSpec {
	return []engine.ParamSpec{
		{Name: "mix", Default: mixDefault},
		{Name: "output", Default: 50},
	}
}
