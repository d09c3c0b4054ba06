// Package viz defines the contract between a plugin's visual simulation and
// the frame scheduler: per-tick inputs (Signal, GlobalSettings, Extra),
// per-tick output (Data) and small helpers shared by every bridge.
package viz

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-mixx/settings"
)

// WaveformLength is the fixed number of samples in Signal.Waveform.
const WaveformLength = 256

// ErrBadFrame is returned by bridges for frames they cannot draw.
var ErrBadFrame = errors.New("viz: invalid frame")

// Signal is one audio snapshot as seen by the visual layer.
type Signal struct {
	// Level is the loudness on a 0..100 scale.
	Level float64
	// Peak is the absolute peak on a 0..255 scale.
	Peak float64
	// Waveform holds WaveformLength samples in [-1, 1].
	Waveform []float64
	// SampleRate of the waveform samples in Hz; zero when unknown.
	SampleRate float64
	// History is an optional longer run of mono samples at SampleRate,
	// oldest first, ending where Waveform ends. Nil when the source keeps
	// no more than the waveform.
	History []float64
	// Transients is set on a detected onset.
	Transients bool
	// Time is a monotonic clock in seconds.
	Time float64
}

// Complexity selects visual density.
type Complexity string

const (
	ComplexityLow  Complexity = "low"
	ComplexityHigh Complexity = "high"
)

// GlobalSettings are session-wide visual preferences.
type GlobalSettings struct {
	// AnimationIntensity in 0..100; higher means faster decays.
	AnimationIntensity float64
	Complexity         Complexity
}

// DefaultGlobalSettings returns intensity 50 at high complexity.
func DefaultGlobalSettings() GlobalSettings {
	return GlobalSettings{AnimationIntensity: 50, Complexity: ComplexityHigh}
}

// GlobalStore shares GlobalSettings between the UI and every scheduler.
type GlobalStore struct {
	p atomic.Pointer[GlobalSettings]
}

// NewGlobalStore creates a store holding g.
func NewGlobalStore(g GlobalSettings) *GlobalStore {
	s := &GlobalStore{}
	s.Store(g)

	return s
}

// Load returns the current settings.
func (s *GlobalStore) Load() GlobalSettings {
	return *s.p.Load()
}

// Store replaces the settings. Intensity is clamped to 0..100 and an unknown
// complexity falls back to high.
func (s *GlobalStore) Store(g GlobalSettings) {
	g.AnimationIntensity = clamp(g.AnimationIntensity, 0, 100)
	if g.Complexity != ComplexityLow {
		g.Complexity = ComplexityHigh
	}

	s.p.Store(&g)
}

// Data is the per-tick output of a bridge, keyed by what the render layer
// for that plugin expects.
type Data map[string]any

// Extra is the typed side channel for context a bridge cannot derive from
// settings or signal.
type Extra interface {
	extra()
}

// AuraExtra carries the session mood tag.
type AuraExtra struct {
	Mood string
}

func (AuraExtra) extra() {}

// TuneExtra carries the session key and scale used for note snapping.
type TuneExtra struct {
	// Key is a pitch class name such as "C" or "F#".
	Key string
	// Scale is "chromatic", "major" or "minor".
	Scale string
}

func (TuneExtra) extra() {}

// Frame is everything a bridge receives for one tick.
type Frame struct {
	Signal Signal
	Width  float64
	Height float64
	Global GlobalSettings
	Extra  Extra
}

// Validate reports frames with unusable geometry.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 || math.IsNaN(f.Width) || math.IsNaN(f.Height) ||
		math.IsInf(f.Width, 0) || math.IsInf(f.Height, 0) {
		return ErrBadFrame
	}

	return nil
}

// Bridge is a per-instance visual simulation. SetParameters receives whole
// settings snapshots; Process advances the simulation by one tick. State is
// only touched from these two methods and they are never called concurrently.
type Bridge interface {
	SetParameters(s settings.Settings)
	Process(f Frame) (Data, error)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}

	return math.Min(math.Max(v, lo), hi)
}
