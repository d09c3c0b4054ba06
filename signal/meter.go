package signal

import (
	"math"
	"sync"
	"time"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-mixx/viz"
)

const (
	defaultDecimation = 2
	meterAttack       = 0.5
	meterRelease      = 0.15
	transientRatioDB  = 6.0
	transientFloorDB  = -40.0
	averageWeight     = 0.05
)

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithDecimation keeps every n-th sample for the snapshot waveform.
func WithDecimation(n int) MeterOption {
	return func(m *Meter) {
		if n > 0 {
			m.decimation = n
		}
	}
}

// Tap reads the newest time-domain samples of the metered output, oldest
// first. An audio.Analyser placed before the destination satisfies it.
type Tap interface {
	FloatTimeDomainData(dst []float64) int
	FFTSize() int
}

// WithTap makes snapshots carry a History read from t, decimated like the
// waveform.
func WithTap(t Tap) MeterOption {
	return func(m *Meter) {
		m.tap = t
	}
}

// Meter derives signals from rendered audio blocks. Observe is called from
// the render side and Snapshot from the frame loop; both are safe to call
// concurrently.
type Meter struct {
	mu         sync.Mutex
	sampleRate float64
	decimation int
	tap        Tap
	raw        []float64

	hist   []float64
	write  int
	mono   []float64
	sq     []float64
	rms    float64
	avgDB  float64
	peak   float64
	onset  bool
	primed bool
}

// NewMeter creates a meter for audio at sampleRate.
func NewMeter(sampleRate float64, opts ...MeterOption) *Meter {
	m := &Meter{
		sampleRate: sampleRate,
		decimation: defaultDecimation,
		avgDB:      -120,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.hist = make([]float64, viz.WaveformLength*m.decimation)

	return m
}

// Observe consumes one rendered block, one slice per channel.
func (m *Meter) Observe(block [][]float64) {
	if len(block) == 0 || len(block[0]) == 0 {
		return
	}

	frames := len(block[0])

	m.mu.Lock()
	defer m.mu.Unlock()

	if cap(m.mono) < frames {
		m.mono = make([]float64, frames)
		m.sq = make([]float64, frames)
	}

	mono := m.mono[:frames]
	copy(mono, block[0])

	for _, ch := range block[1:] {
		vecmath.AddBlockInPlace(mono, ch[:frames])
	}

	if len(block) > 1 {
		vecmath.ScaleBlock(mono, mono, 1/float64(len(block)))
	}

	sq := m.sq[:frames]
	vecmath.MulBlock(sq, mono, mono)

	sum := 0.0
	for i, v := range mono {
		sum += sq[i]
		m.peak = max(m.peak, math.Abs(v))

		m.hist[m.write] = v
		m.write = (m.write + 1) % len(m.hist)
	}

	blockRMS := math.Sqrt(sum / float64(frames))
	coef := meterRelease
	if blockRMS > m.rms {
		coef = meterAttack
	}

	m.rms += (blockRMS - m.rms) * coef

	db := DB(blockRMS)
	if m.primed && db > transientFloorDB && db-m.avgDB > transientRatioDB {
		m.onset = true
	}

	m.avgDB += (db - m.avgDB) * averageWeight
	m.primed = true
}

// Snapshot returns the metered signal. Peak and transient flags accumulate
// between snapshots and are reset by this call.
func (m *Meter) Snapshot(now time.Duration) viz.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	wave := make([]float64, viz.WaveformLength)
	for i := range wave {
		wave[i] = m.hist[(m.write+i*m.decimation)%len(m.hist)]
	}

	sig := viz.Signal{
		Level:      Level(m.rms),
		Peak:       Peak(m.peak),
		Waveform:   wave,
		SampleRate: m.sampleRate / float64(m.decimation),
		History:    m.history(),
		Transients: m.onset,
		Time:       now.Seconds(),
	}

	m.peak = 0
	m.onset = false

	return sig
}

// history reads the tap and keeps every decimation-th sample, aligned so
// the last kept sample is the newest one.
func (m *Meter) history() []float64 {
	if m.tap == nil {
		return nil
	}

	if n := m.tap.FFTSize(); cap(m.raw) < n {
		m.raw = make([]float64, n)
	}

	raw := m.raw[:m.tap.FFTSize()]

	n := m.tap.FloatTimeDomainData(raw)
	if n <= 0 {
		return nil
	}

	raw = raw[:n]

	out := make([]float64, 0, n/m.decimation+1)
	for i := (n - 1) % m.decimation; i < n; i += m.decimation {
		out = append(out, raw[i])
	}

	return out
}
