package audio

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-mixx/internal/testutil"
)

func TestCompressorReducesLoudSignal(t *testing.T) {
	t.Parallel()

	ac := newTestContext(t)
	c := NewDynamicsCompressor(ac)
	c.Threshold().SetValue(-20)
	c.Knee().SetValue(0)
	c.Ratio().SetValue(10)
	c.Attack().SetValue(0.001)

	mustConnect(t, ac.Source(), c)
	mustConnect(t, c, ac.Destination())

	in := testutil.DeterministicSine(1000, 48000, 0.9, 128)

	var outL []float64
	for range 40 {
		outL, _ = renderStereo(t, ac, in, in)
	}

	if r := c.Reduction(); r >= -5 {
		t.Fatalf("Reduction = %v dB, want substantial reduction", r)
	}

	peak := 0.0
	for _, v := range outL {
		peak = math.Max(peak, math.Abs(v))
	}

	if peak >= 0.9 {
		t.Fatalf("output peak %v not reduced", peak)
	}
}

func TestCompressorQuietSignalUntouched(t *testing.T) {
	t.Parallel()

	ac := newTestContext(t)
	c := NewDynamicsCompressor(ac)
	c.Threshold().SetValue(-6)
	c.Knee().SetValue(0)

	mustConnect(t, ac.Source(), c)
	mustConnect(t, c, ac.Destination())

	in := testutil.DeterministicSine(440, 48000, 0.1, 128)
	outL, _ := renderStereo(t, ac, in, in)

	if c.Reduction() != 0 {
		t.Fatalf("Reduction = %v for a signal below threshold", c.Reduction())
	}

	testutil.RequireSliceNearlyEqual(t, outL, in, 1e-12)
}

func TestCompressorZeroTimesAreClamped(t *testing.T) {
	t.Parallel()

	ac := newTestContext(t)
	c := NewDynamicsCompressor(ac)
	c.Threshold().SetValue(-30)
	c.Attack().SetValue(0)
	c.Release().SetValue(0)

	mustConnect(t, ac.Source(), c)
	mustConnect(t, c, ac.Destination())

	in := testutil.DeterministicSine(1000, 48000, 0.8, 128)
	outL, _ := renderStereo(t, ac, in, in)

	testutil.RequireFinite(t, outL)

	if c.Reduction() >= 0 {
		t.Fatalf("Reduction = %v, want the signal compressed", c.Reduction())
	}
}

func TestWaveShaper(t *testing.T) {
	t.Parallel()

	t.Run("nil curve passes through", func(t *testing.T) {
		t.Parallel()

		ac := newTestContext(t)
		w := NewWaveShaper(ac)
		mustConnect(t, ac.Source(), w)
		mustConnect(t, w, ac.Destination())

		in := testutil.DeterministicNoise(1, 2, 64)
		outL, _ := renderStereo(t, ac, in, in)
		testutil.RequireSliceNearlyEqual(t, outL, in, 0)
	})

	t.Run("hard clip bounds output", func(t *testing.T) {
		t.Parallel()

		ac := newTestContext(t)
		w := NewWaveShaper(ac)
		w.SetCurve(HardClipCurve(1025, 0.5))
		mustConnect(t, ac.Source(), w)
		mustConnect(t, w, ac.Destination())

		in := testutil.DeterministicNoise(2, 3, 256)
		outL, _ := renderStereo(t, ac, in, in)

		for i, v := range outL {
			if math.Abs(v) > 0.5+1e-12 {
				t.Fatalf("out[%d] = %v exceeds ceiling", i, v)
			}
		}
	})

	t.Run("short curve disables shaping", func(t *testing.T) {
		t.Parallel()

		ac := newTestContext(t)
		w := NewWaveShaper(ac)
		w.SetCurve([]float64{1})

		if w.Curve() != nil {
			t.Fatal("expected nil curve")
		}
	})
}

func TestTanhCurve(t *testing.T) {
	t.Parallel()

	curve := TanhCurve(257, 4)

	if math.Abs(curve[0]+1) > 1e-12 || math.Abs(curve[256]-1) > 1e-12 {
		t.Fatalf("edges = %v, %v; want -1, 1", curve[0], curve[256])
	}

	if math.Abs(curve[128]) > 1e-12 {
		t.Fatalf("centre = %v, want 0", curve[128])
	}

	for i := 1; i < len(curve); i++ {
		if curve[i] <= curve[i-1] {
			t.Fatalf("curve not increasing at %d", i)
		}
	}
}

func TestSoftClipCurve(t *testing.T) {
	t.Parallel()

	curve := SoftClipCurve(257, 0.5, 0.4)

	for i, v := range curve {
		x := float64(i)*2/256 - 1

		if math.Abs(x) <= 0.3 && math.Abs(v-x) > 1e-12 {
			t.Fatalf("curve[%d] = %v, want linear %v below the knee", i, v, x)
		}

		if math.Abs(v) >= 0.5 {
			t.Fatalf("curve[%d] = %v reaches the ceiling", i, v)
		}

		if i > 0 && v < curve[i-1] {
			t.Fatalf("curve decreases at %d", i)
		}
	}

	testutil.RequireSliceNearlyEqual(t, SoftClipCurve(65, 0.7, 0), HardClipCurve(65, 0.7), 0)
}
