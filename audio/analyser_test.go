package audio

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-mixx/internal/testutil"
)

func TestNewAnalyserValidatesSize(t *testing.T) {
	t.Parallel()

	ac := newTestContext(t)

	for _, n := range []int{0, 16, 100, 65536} {
		if _, err := NewAnalyser(ac, n); err == nil {
			t.Errorf("NewAnalyser(%d) succeeded", n)
		}
	}
}

func TestAnalyserTimeDomain(t *testing.T) {
	t.Parallel()

	ac := newTestContext(t)

	a, err := NewAnalyser(ac, 256)
	if err != nil {
		t.Fatal(err)
	}

	mustConnect(t, ac.Source(), a)
	mustConnect(t, a, ac.Destination())

	ramp := make([]float64, 128)
	for i := range ramp {
		ramp[i] = float64(i)
	}

	outL, _ := renderStereo(t, ac, ramp, ramp)
	testutil.RequireSliceNearlyEqual(t, outL, ramp, 0)

	if a.Ready() {
		t.Fatal("analyser ready after half a window")
	}

	dst := make([]float64, 4)
	if n := a.FloatTimeDomainData(dst); n != 4 {
		t.Fatalf("wrote %d samples", n)
	}

	testutil.RequireSliceNearlyEqual(t, dst, []float64{124, 125, 126, 127}, 0)

	renderStereo(t, ac, ramp, ramp)

	if !a.Ready() {
		t.Fatal("analyser not ready after a full window")
	}
}

func TestAnalyserFrequencyPeak(t *testing.T) {
	t.Parallel()

	ac := newTestContext(t)

	a, err := NewAnalyser(ac, 1024)
	if err != nil {
		t.Fatal(err)
	}

	a.SetSmoothing(0)
	mustConnect(t, ac.Source(), a)

	// bin 64 of a 1024-point FFT at 48 kHz
	const freq = 64 * 48000.0 / 1024

	sine := testutil.DeterministicSine(freq, 48000, 1, 1024)
	for b := range 8 {
		block := sine[b*128 : (b+1)*128]
		renderStereo(t, ac, block, block)
	}

	spec := make([]float64, a.FrequencyBinCount())
	a.FloatFrequencyData(spec)

	peak := 0
	for k := range spec {
		if spec[k] > spec[peak] {
			peak = k
		}
	}

	if peak != 64 {
		t.Fatalf("peak bin = %d, want 64", peak)
	}

	bytes := make([]byte, a.FrequencyBinCount())
	a.ByteFrequencyData(bytes)

	if bytes[64] != 255 {
		t.Fatalf("byte spectrum at peak = %d, want 255", bytes[64])
	}

	if bytes[400] != 0 {
		t.Fatalf("byte spectrum far from peak = %d, want 0", bytes[400])
	}

	if math.IsNaN(spec[0]) {
		t.Fatal("NaN in spectrum")
	}
}

func TestAnalyserLevelAndPeak(t *testing.T) {
	t.Parallel()

	ac := newTestContext(t)

	a, err := NewAnalyser(ac, 128)
	if err != nil {
		t.Fatal(err)
	}

	mustConnect(t, ac.Source(), a)

	if a.Level() != 0 || a.Peak() != 0 {
		t.Fatal("empty analyser reports signal")
	}

	renderStereo(t, ac, testutil.DC(0.5, 128), testutil.DC(-0.5, 128))

	// opposite channels cancel in the mono history
	if a.Peak() != 0 {
		t.Fatalf("Peak = %v, want 0", a.Peak())
	}

	renderStereo(t, ac, testutil.DC(0.5, 128), testutil.DC(0.5, 128))

	if math.Abs(a.Level()-0.5) > 1e-12 || a.Peak() != 0.5 {
		t.Fatalf("Level = %v, Peak = %v", a.Level(), a.Peak())
	}
}
