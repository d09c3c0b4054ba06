package plugins

import (
	"log/slog"
	"math"

	"github.com/cwbudde/algo-mixx/audio"
	"github.com/cwbudde/algo-mixx/engine"
)

// Comb and allpass lengths in seconds, tuned at 44.1 kHz.
var (
	verbCombTimes = [...]float64{
		1116.0 / 44100, 1188.0 / 44100, 1277.0 / 44100, 1356.0 / 44100,
		1422.0 / 44100, 1491.0 / 44100, 1557.0 / 44100, 1617.0 / 44100,
	}
	verbAllpassTimes = [...]float64{
		556.0 / 44100, 441.0 / 44100, 341.0 / 44100, 225.0 / 44100,
	}
)

const (
	verbInputGain   = 0.015
	verbWetGain     = 3.0
	verbAllpassGain = 0.5
	verbMaxPreDelay = 0.2 // seconds

	verbMaxDampHz = 16000.0
	verbMinDampHz = 1500.0
)

// Verb is a Freeverb-style room: a pre-delay feeding eight parallel
// lowpass-feedback combs, then four series allpasses.
type Verb struct {
	*engine.Base

	ac       *audio.Context
	io       *mixStage
	preDelay *audio.Delay
	damping  []*audio.BiquadFilter
	feedback []*audio.Gain
}

// NewVerb creates an uninitialized verb (size 50, damping 50, 20 ms pre-delay, mix 30).
func NewVerb(logger *slog.Logger) *Verb {
	r := &Verb{}
	specs := append([]engine.ParamSpec{
		{Name: "size", Default: 50},
		{Name: "damping", Default: 50},
		{Name: "predelay", Min: 0, Max: verbMaxPreDelay * 1000, Default: 20},
	}, mixSpecs(30)...)
	r.Base = engine.NewBase(KindVerb, specs, engine.Hooks{
		Build: r.build,
		Apply: r.apply,
		Reset: func() { r.io, r.preDelay, r.damping, r.feedback = nil, nil, nil, nil },
	}, logger)

	return r
}

// VerbFeedback is the comb feedback for a 0..100 size knob.
func VerbFeedback(size float64) float64 {
	return 0.7 + 0.28*norm(size)
}

// VerbDampingHz is the comb lowpass corner for a 0..100 damping knob,
// falling logarithmically from 16 kHz to 1.5 kHz.
func VerbDampingHz(damping float64) float64 {
	return verbMaxDampHz * math.Pow(verbMinDampHz/verbMaxDampHz, norm(damping))
}

// VerbDecayTime estimates the RT60 in seconds for a 0..100 size knob from
// the mean comb length and its feedback.
func VerbDecayTime(size float64) float64 {
	mean := 0.0
	for _, d := range verbCombTimes {
		mean += d
	}

	mean /= float64(len(verbCombTimes))

	return -3 * mean / math.Log10(VerbFeedback(size))
}

func (r *Verb) build(ac *audio.Context) (engine.Ports, error) {
	b := newBuilder(ac)
	r.ac = ac
	r.io = newMixStage(b)

	r.preDelay = audio.NewDelay(ac, verbMaxPreDelay)
	b.track(r.preDelay)

	feed := b.gain(verbInputGain)
	combs := b.gain(1)

	b.chain(r.io.in, r.preDelay, feed)

	r.damping = make([]*audio.BiquadFilter, 0, len(verbCombTimes))
	r.feedback = make([]*audio.Gain, 0, len(verbCombTimes))

	//	feed ─ sum ─ line ─┬─ combs
	//	        └ fb ─ lp ─┘
	for _, sec := range verbCombTimes {
		sum := b.gain(1)
		line := b.delay(sec)
		lp := b.filter(audio.Lowpass, verbMaxDampHz, 0.5)
		fb := b.gain(0)

		b.chain(feed, sum, line, lp, fb, sum)
		b.connect(line, combs)

		r.damping = append(r.damping, lp)
		r.feedback = append(r.feedback, fb)
	}

	stage := audio.Node(combs)
	for _, sec := range verbAllpassTimes {
		stage = b.allpass(stage, sec, verbAllpassGain)
	}

	wet := b.gain(verbWetGain)
	b.chain(stage, wet, r.io.wet)

	return b.ports(r.io.in, r.io.out)
}

func (r *Verb) apply(name string, v engine.Values) {
	if r.io.apply(name, v) {
		return
	}

	switch name {
	case "size":
		g := VerbFeedback(v("size"))
		for _, fb := range r.feedback {
			glide(r.ac, fb.Gain(), g, smoothing)
		}
	case "damping":
		hz := VerbDampingHz(v("damping"))
		for _, lp := range r.damping {
			glide(r.ac, lp.Frequency(), hz, smoothing)
		}
	case "predelay":
		glide(r.ac, r.preDelay.DelayTime(), v("predelay")/1000, smoothing)
	}
}
