package audio

import (
	"math"

	"github.com/cwbudde/algo-mixx/dsp/delay"
)

// Delay delays its input by an automatable time in seconds. A Delay inside
// a feedback loop is rendered ahead of its input, so the effective delay in a
// loop is never shorter than one render block.
type Delay struct {
	*nodeCore

	delayTime *Param
	maxDelay  float64

	lines []*delay.Line
	out   Bus
}

// NewDelay creates a delay line able to hold maxDelay seconds.
func NewDelay(ac *Context, maxDelay float64) *Delay {
	if maxDelay <= 0 || math.IsNaN(maxDelay) || math.IsInf(maxDelay, 0) {
		maxDelay = 1
	}

	d := &Delay{
		delayTime: newParam("delayTime", 0, 0, maxDelay),
		maxDelay:  maxDelay,
	}
	d.nodeCore = ac.attach("delay", 1, 1, 0, d)

	return d
}

// DelayTime returns the delay time parameter in seconds.
func (d *Delay) DelayTime() *Param {
	return d.delayTime
}

// MaxDelay returns the capacity in seconds.
func (d *Delay) MaxDelay() float64 {
	return d.maxDelay
}

func (d *Delay) ensureLines(channels int) {
	size := int(math.Ceil(d.maxDelay*d.ac.sampleRate)) + maxBlockSize + 4
	for len(d.lines) < channels {
		line, err := delay.New(size)
		if err != nil {
			panic(err)
		}

		d.lines = append(d.lines, line)
	}
}

func (d *Delay) render(in []Bus, frames int, t0 float64) []Bus {
	src := in[0]
	d.ensureLines(src.Channels())
	d.out = sizeBus(d.out, src.Channels(), frames)

	sec, _ := d.delayTime.advance(frames, t0, d.ac.sampleRate, nil)
	samples := sec * d.ac.sampleRate

	for c := range src {
		line := d.lines[c]
		dst := d.out[c]

		for i, x := range src[c] {
			line.Write(x)
			dst[i] = line.ReadFractional(samples + 1)
		}
	}

	return []Bus{d.out}
}

func (d *Delay) renderDeferred(frames int, t0 float64) []Bus {
	d.ensureLines(1)
	d.out = sizeBus(d.out, len(d.lines), frames)

	sec, _ := d.delayTime.advance(frames, t0, d.ac.sampleRate, nil)
	samples := math.Max(sec*d.ac.sampleRate, float64(frames))

	for c, line := range d.lines {
		dst := d.out[c]
		for i := range frames {
			dst[i] = line.ReadFractional(samples - float64(i))
		}
	}

	return []Bus{d.out}
}

func (d *Delay) commit(in []Bus, frames int) {
	src := in[0]
	d.ensureLines(src.Channels())

	for c, line := range d.lines {
		ch := src[min(c, src.Channels()-1)]
		for i := range frames {
			line.Write(ch[i])
		}
	}
}
