package plugins

import (
	"log/slog"

	"github.com/cwbudde/algo-mixx/audio"
	"github.com/cwbudde/algo-mixx/engine"
)

// Aura is the stereo widener with a "shine" shelf on the side channel. The
// input is encoded to mid = (L+R)/2 and side = (L−R)/2, each through its own
// gain; the side passes a high shelf and the pair is decoded back to
// L′ = mid + side and R′ = mid − side ahead of the makeup gain.
type Aura struct {
	*engine.Base

	ac       *audio.Context
	io       *mixStage
	midGain  *audio.Gain
	sideGain *audio.Gain
	shelf    *audio.BiquadFilter
	makeup   *audio.Gain
}

// NewAura creates an uninitialized aura engine with the default settings
// (tone 50, width 50, shine 50, moodLock 0).
func NewAura(logger *slog.Logger) *Aura {
	a := &Aura{}
	specs := append([]engine.ParamSpec{
		{Name: "tone", Default: 50},
		{Name: "width", Default: 50},
		{Name: "shine", Default: 50},
		{Name: "moodLock", Default: 0},
	}, mixSpecs(100)...)
	a.Base = engine.NewBase(KindAura, specs, engine.Hooks{
		Build: a.build,
		Apply: a.apply,
		Reset: a.reset,
	}, logger)

	return a
}

// AuraMidGain is the mid gain for a normalized width.
func AuraMidGain(width float64) float64 {
	return 0.7 + (1-width)*0.3
}

// AuraSideGain is the side gain for normalized width and mood lock.
func AuraSideGain(width, moodLock float64) float64 {
	return 0.7 + width*(1-moodLock*0.65)*0.5
}

// AuraShelfGainDB is the side shelf gain in dB for a normalized shine.
func AuraShelfGainDB(shine float64) float64 {
	return shine * 6
}

// AuraShelfFrequency is the side shelf corner in Hz for a normalized tone.
func AuraShelfFrequency(tone float64) float64 {
	return 6000 + tone*6000
}

// AuraMakeup is the makeup gain for a normalized tone.
func AuraMakeup(tone float64) float64 {
	return 1 + (tone-0.5)*0.2
}

// MidGain returns the mid gain implied by the current settings.
func (a *Aura) MidGain() float64 {
	return AuraMidGain(norm(a.GetParameter("width")))
}

// SideGain returns the side gain implied by the current settings.
func (a *Aura) SideGain() float64 {
	return AuraSideGain(norm(a.GetParameter("width")), norm(a.GetParameter("moodLock")))
}

// ShelfGainDB returns the shelf gain implied by the current settings.
func (a *Aura) ShelfGainDB() float64 {
	return AuraShelfGainDB(norm(a.GetParameter("shine")))
}

// ShelfFrequency returns the shelf corner implied by the current settings.
func (a *Aura) ShelfFrequency() float64 {
	return AuraShelfFrequency(norm(a.GetParameter("tone")))
}

// Makeup returns the makeup gain implied by the current settings.
func (a *Aura) Makeup() float64 {
	return AuraMakeup(norm(a.GetParameter("tone")))
}

func (a *Aura) build(ac *audio.Context) (engine.Ports, error) {
	b := newBuilder(ac)
	a.ac = ac
	a.io = newMixStage(b)

	split := audio.NewChannelSplitter(ac, 2)
	b.track(split)

	mid := b.gain(0.5)
	side := b.gain(0.5)
	invertR := b.gain(-1)
	a.midGain = b.gain(1)
	a.sideGain = b.gain(1)
	a.shelf = b.filter(audio.Highshelf, 9000, 0.7071)
	invertSide := b.gain(-1)

	merge := audio.NewChannelMerger(ac, 2)
	b.track(merge)

	a.makeup = b.gain(1)

	b.connect(a.io.in, split)
	b.connectPort(split, 0, mid, 0)
	b.connectPort(split, 1, mid, 0)
	b.connectPort(split, 0, side, 0)
	b.connectPort(split, 1, invertR, 0)
	b.connect(invertR, side)

	b.chain(mid, a.midGain)
	b.chain(side, a.sideGain, a.shelf)

	b.connectPort(a.midGain, 0, merge, 0)
	b.connectPort(a.midGain, 0, merge, 1)
	b.connectPort(a.shelf, 0, merge, 0)
	b.connect(a.shelf, invertSide)
	b.connectPort(invertSide, 0, merge, 1)

	b.chain(merge, a.makeup, a.io.wet)

	return b.ports(a.io.in, a.io.out)
}

func (a *Aura) apply(name string, v engine.Values) {
	if a.io.apply(name, v) {
		return
	}

	width, moodLock := norm(v("width")), norm(v("moodLock"))
	tone, shine := norm(v("tone")), norm(v("shine"))

	switch name {
	case "width", "moodLock":
		glide(a.ac, a.midGain.Gain(), AuraMidGain(width), smoothing)
		glide(a.ac, a.sideGain.Gain(), AuraSideGain(width, moodLock), smoothing)
	case "shine":
		glide(a.ac, a.shelf.Gain(), AuraShelfGainDB(shine), smoothing)
	case "tone":
		glide(a.ac, a.shelf.Frequency(), AuraShelfFrequency(tone), smoothing)
		glide(a.ac, a.makeup.Gain(), AuraMakeup(tone), makeupSmoothing)
	}
}

func (a *Aura) reset() {
	a.io, a.midGain, a.sideGain, a.shelf, a.makeup = nil, nil, nil, nil, nil
}

// Targets reports the values the live graph is heading to, for inspection.
// ok is false while the engine is inactive.
func (a *Aura) Targets() (mid, side, shelfDB, shelfHz, makeup float64, ok bool) {
	ok = a.Inspect(func() {
		mid, side = a.midGain.Gain().Target(), a.sideGain.Gain().Target()
		shelfDB, shelfHz = a.shelf.Gain().Target(), a.shelf.Frequency().Target()
		makeup = a.makeup.Gain().Target()
	})

	return mid, side, shelfDB, shelfHz, makeup, ok
}
