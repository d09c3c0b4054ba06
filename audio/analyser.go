package audio

import (
	"fmt"
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-mixx/dsp/window"
)

const (
	defaultMinDecibels = -100.0
	defaultMaxDecibels = -30.0
	defaultSmoothing   = 0.8
)

// Analyser passes its input through unchanged and keeps the most recent
// fftSize samples (mixed to mono) for time- and frequency-domain readouts.
type Analyser struct {
	*nodeCore

	mu     sync.Mutex
	size   int
	hist   []float64
	write  int
	filled int

	// frequency analysis state, owned by the reader
	fmu       sync.Mutex
	plan      *algofft.Plan[complex128]
	window    []float64
	frame     []float64
	fftIn     []complex128
	fftOut    []complex128
	re, im    []float64
	mag       []float64
	smoothed  []float64
	smoothing float64

	minDB, maxDB float64
	out          Bus
}

// NewAnalyser creates an analyser with a power-of-two FFT size in [32, 32768].
func NewAnalyser(ac *Context, fftSize int) (*Analyser, error) {
	if fftSize < 32 || fftSize > 32768 || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("audio: analyser fft size must be a power of two in [32, 32768]: %d", fftSize)
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("audio: analyser fft plan: %w", err)
	}

	win, err := window.Blackman(fftSize, window.WithPeriodic())
	if err != nil {
		return nil, fmt.Errorf("audio: analyser window: %w", err)
	}

	bins := fftSize / 2
	a := &Analyser{
		size:      fftSize,
		hist:      make([]float64, fftSize),
		plan:      plan,
		window:    win,
		frame:     make([]float64, fftSize),
		fftIn:     make([]complex128, fftSize),
		fftOut:    make([]complex128, fftSize),
		re:        make([]float64, bins),
		im:        make([]float64, bins),
		mag:       make([]float64, bins),
		smoothed:  make([]float64, bins),
		smoothing: defaultSmoothing,
		minDB:     defaultMinDecibels,
		maxDB:     defaultMaxDecibels,
	}
	a.nodeCore = ac.attach("analyser", 1, 1, 0, a)

	return a, nil
}

// FFTSize returns the analysis window length.
func (a *Analyser) FFTSize() int {
	return a.size
}

// FrequencyBinCount returns FFTSize/2.
func (a *Analyser) FrequencyBinCount() int {
	return a.size / 2
}

// SetSmoothing sets the averaging constant applied between successive
// frequency readouts, in [0, 1).
func (a *Analyser) SetSmoothing(s float64) {
	a.fmu.Lock()
	defer a.fmu.Unlock()

	a.smoothing = clamp(s, 0, 0.999)
}

// SetDecibelRange sets the dB range mapped onto 0..255 by ByteFrequencyData.
func (a *Analyser) SetDecibelRange(minDB, maxDB float64) {
	if minDB >= maxDB {
		return
	}

	a.fmu.Lock()
	defer a.fmu.Unlock()

	a.minDB, a.maxDB = minDB, maxDB
}

func (a *Analyser) render(in []Bus, frames int, _ float64) []Bus {
	src := in[0]
	a.out = sizeBus(a.out, src.Channels(), frames)
	copyBus(a.out, src)

	a.mu.Lock()
	defer a.mu.Unlock()

	scale := 1 / float64(src.Channels())

	for i := range frames {
		sum := 0.0
		for c := range src {
			sum += src[c][i]
		}

		a.hist[a.write] = sum * scale

		a.write++
		if a.write >= a.size {
			a.write = 0
		}
	}

	a.filled = min(a.filled+frames, a.size)

	return []Bus{a.out}
}

// FloatTimeDomainData copies the most recent samples, oldest first, into dst.
// It returns the number of samples written.
func (a *Analyser) FloatTimeDomainData(dst []float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := min(len(dst), a.size)
	start := a.write - n

	for i := range n {
		dst[i] = a.hist[(start+i+a.size)%a.size]
	}

	return n
}

// FloatFrequencyData writes smoothed magnitudes in dB for the first
// min(len(dst), FrequencyBinCount) bins.
func (a *Analyser) FloatFrequencyData(dst []float64) {
	a.fmu.Lock()
	defer a.fmu.Unlock()

	a.analyse()

	for i := range min(len(dst), len(a.smoothed)) {
		dst[i] = 20 * math.Log10(math.Max(a.smoothed[i], 1e-12))
	}
}

// ByteFrequencyData maps the smoothed dB spectrum onto 0..255.
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.fmu.Lock()
	defer a.fmu.Unlock()

	a.analyse()

	span := a.maxDB - a.minDB

	for i := range min(len(dst), len(a.smoothed)) {
		db := 20 * math.Log10(math.Max(a.smoothed[i], 1e-12))
		v := 255 * (db - a.minDB) / span
		dst[i] = byte(clamp(v, 0, 255))
	}
}

// analyse runs one windowed FFT over the history. Must be called with fmu held.
func (a *Analyser) analyse() {
	a.FloatTimeDomainData(a.frame)
	vecmath.MulBlockInPlace(a.frame, a.window)

	for i, v := range a.frame {
		a.fftIn[i] = complex(v, 0)
	}

	err := a.plan.Forward(a.fftOut, a.fftIn)
	if err != nil {
		return
	}

	for k := range a.re {
		a.re[k] = real(a.fftOut[k])
		a.im[k] = imag(a.fftOut[k])
	}

	vecmath.Magnitude(a.mag, a.re, a.im)

	norm := 1 / float64(a.size)
	for k, m := range a.mag {
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*m*norm
	}
}

// Ready reports whether a full analysis window has been captured.
func (a *Analyser) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.filled >= a.size
}

// Level returns the RMS of the captured window.
func (a *Analyser) Level() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.filled == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range a.hist {
		sum += v * v
	}

	return math.Sqrt(sum / float64(a.filled))
}

// Peak returns the largest absolute sample in the captured window.
func (a *Analyser) Peak() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	peak := 0.0
	for _, v := range a.hist {
		peak = math.Max(peak, math.Abs(v))
	}

	return peak
}
