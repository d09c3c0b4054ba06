package signal

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cwbudde/algo-mixx/viz"
)

const (
	defaultTempo    = 120.0
	defaultPitch    = 220.0
	synthWaveRate   = 24000.0
	synthNoiseFloor = 0.02

	synthHistoryLength = 4 * viz.WaveformLength
)

// SynthOption configures a Synth.
type SynthOption func(*Synth)

// WithSeed seeds the jitter source.
func WithSeed(seed uint64) SynthOption {
	return func(s *Synth) {
		s.rng = viz.NewRand(seed)
	}
}

// WithTempo sets the beat rate in BPM.
func WithTempo(bpm float64) SynthOption {
	return func(s *Synth) {
		if bpm > 0 {
			s.tempo = bpm
		}
	}
}

// WithPitch sets the fundamental of the generated waveform.
func WithPitch(hz float64) SynthOption {
	return func(s *Synth) {
		if hz > 0 && hz < synthWaveRate/2 {
			s.pitch = hz
		}
	}
}

// Synth generates a beat-driven test signal: a decaying harmonic tone that
// re-triggers on every beat, with a transient flagged on the first snapshot
// of each beat. Output is fully determined by the seed and the snapshot times.
type Synth struct {
	mu       sync.Mutex
	rng      *rand.Rand
	tempo    float64
	pitch    float64
	lastBeat int64
}

// NewSynth creates a synthetic source.
func NewSynth(opts ...SynthOption) *Synth {
	s := &Synth{
		tempo:    defaultTempo,
		pitch:    defaultPitch,
		lastBeat: -1,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rng == nil {
		s.rng = viz.NewRand(viz.SeedFor("synth"))
	}

	return s
}

// Snapshot renders the signal at now.
func (s *Synth) Snapshot(now time.Duration) viz.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := now.Seconds()
	period := 60 / s.tempo
	beat := int64(math.Floor(t / period))
	env := math.Exp(-6 * (t/period - float64(beat)))

	transient := beat != s.lastBeat
	s.lastBeat = beat

	amp := 0.15 + 0.75*env*(0.9+0.1*s.rng.Float64())
	wave := make([]float64, viz.WaveformLength)
	w := 2 * math.Pi * s.pitch / synthWaveRate

	peak, sum := 0.0, 0.0

	// the history is noise-free and ends where the waveform ends
	hist := make([]float64, synthHistoryLength)
	start := t*synthWaveRate + float64(viz.WaveformLength-synthHistoryLength)

	for i := range hist {
		x := start + float64(i)
		hist[i] = amp * (0.7*math.Sin(w*x) + 0.2*math.Sin(2*w*x) + 0.1*math.Sin(3*w*x))
	}

	for i := range wave {
		x := t*synthWaveRate + float64(i)
		v := amp * (0.7*math.Sin(w*x) + 0.2*math.Sin(2*w*x) + 0.1*math.Sin(3*w*x))
		v += synthNoiseFloor * (2*s.rng.Float64() - 1)

		wave[i] = v
		peak = max(peak, math.Abs(v))
		sum += v * v
	}

	return viz.Signal{
		Level:      Level(math.Sqrt(sum / float64(len(wave)))),
		Peak:       Peak(peak),
		Waveform:   wave,
		SampleRate: synthWaveRate,
		History:    hist,
		Transients: transient,
		Time:       t,
	}
}
