package audio

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Source emits the block handed to Context.Render as a stereo signal.
type Source struct {
	*nodeCore

	bus Bus
}

func newSource(ac *Context) *Source {
	s := &Source{}
	s.nodeCore = ac.attach("source", 0, 1, 0, s)

	return s
}

func (s *Source) feed(in [][]float64, frames int) {
	s.bus = sizeBus(s.bus, 2, frames)
	clearBus(s.bus)

	switch len(in) {
	case 0:
	case 1:
		copy(s.bus[0], in[0])
		copy(s.bus[1], in[0])
	default:
		copy(s.bus[0], in[0])
		copy(s.bus[1], in[1])
	}
}

func (s *Source) render(_ []Bus, _ int, _ float64) []Bus {
	return []Bus{s.bus}
}

// Destination collects the final stereo mix of the graph.
type Destination struct {
	*nodeCore

	bus Bus
}

func newDestination(ac *Context) *Destination {
	d := &Destination{}
	d.nodeCore = ac.attach("destination", 1, 0, 2, d)

	return d
}

func (d *Destination) render(in []Bus, frames int, _ float64) []Bus {
	d.bus = sizeBus(d.bus, 2, frames)
	copyBus(d.bus, in[0])

	return nil
}

func (d *Destination) drain(out [][]float64, frames int) {
	if len(d.bus) != 2 || len(d.bus[0]) < frames {
		for _, ch := range out {
			clear(ch)
		}

		return
	}

	switch len(out) {
	case 1:
		for i := range frames {
			out[0][i] = 0.5 * (d.bus[0][i] + d.bus[1][i])
		}
	default:
		copy(out[0], d.bus[0])
		copy(out[1], d.bus[1])

		for _, ch := range out[2:] {
			clear(ch)
		}
	}
}

// Gain multiplies its input by an automatable gain.
type Gain struct {
	*nodeCore

	gain *Param
	out  Bus
	ramp []float64
}

// NewGain creates a gain node with the given initial gain.
func NewGain(ac *Context, initial float64) *Gain {
	g := &Gain{gain: newParam("gain", initial, -math.MaxFloat64, math.MaxFloat64)}
	g.nodeCore = ac.attach("gain", 1, 1, 0, g)

	return g
}

// Gain returns the gain parameter.
func (g *Gain) Gain() *Param {
	return g.gain
}

func (g *Gain) render(in []Bus, frames int, t0 float64) []Bus {
	src := in[0]
	g.out = sizeBus(g.out, src.Channels(), frames)

	if cap(g.ramp) < frames {
		g.ramp = make([]float64, frames)
	}

	ramp := g.ramp[:frames]

	v, constant := g.gain.advance(frames, t0, g.ac.sampleRate, ramp)
	for c := range g.out {
		if constant {
			vecmath.ScaleBlock(g.out[c], src[c], v)
			continue
		}

		vecmath.MulBlock(g.out[c], src[c], ramp)
	}

	return []Bus{g.out}
}

// ChannelSplitter routes each input channel to its own mono output.
type ChannelSplitter struct {
	*nodeCore

	outs []Bus
}

// NewChannelSplitter creates a splitter with n outputs. The input is mixed to n channels.
func NewChannelSplitter(ac *Context, n int) *ChannelSplitter {
	n = max(n, 1)
	s := &ChannelSplitter{outs: make([]Bus, n)}
	s.nodeCore = ac.attach("splitter", 1, n, n, s)

	return s
}

func (s *ChannelSplitter) render(in []Bus, frames int, _ float64) []Bus {
	for c := range s.outs {
		s.outs[c] = sizeBus(s.outs[c], 1, frames)
		copy(s.outs[c][0], in[0][c])
	}

	return s.outs
}

// ChannelMerger combines n mono inputs into one n-channel output.
type ChannelMerger struct {
	*nodeCore

	out Bus
}

// NewChannelMerger creates a merger with n inputs.
func NewChannelMerger(ac *Context, n int) *ChannelMerger {
	n = max(n, 1)
	m := &ChannelMerger{}
	m.nodeCore = ac.attach("merger", n, 1, 1, m)

	return m
}

func (m *ChannelMerger) render(in []Bus, frames int, _ float64) []Bus {
	m.out = sizeBus(m.out, len(in), frames)
	for c := range in {
		copy(m.out[c], in[c][0])
	}

	return []Bus{m.out}
}
