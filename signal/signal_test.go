package signal

import (
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-mixx/internal/testutil"
	"github.com/cwbudde/algo-mixx/viz"
)

func TestScales(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		got, want float64
	}{
		{"full-scale sine", Level(1 / math.Sqrt2), 100},
		{"half sine", Level(0.5 / math.Sqrt2), 50},
		{"level clamps", Level(3), 100},
		{"level NaN", Level(math.NaN()), 0},
		{"peak", Peak(0.5), 127.5},
		{"peak clamps", Peak(2), 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if math.Abs(tt.got-tt.want) > 1e-9 {
				t.Fatalf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if db := DB(0.1); math.Abs(db+20) > 0.05 {
		t.Fatalf("DB(0.1) = %v", db)
	}

	if DB(0) != -120 {
		t.Fatal("DB floor")
	}
}

func TestSynthIsDeterministic(t *testing.T) {
	t.Parallel()

	a := NewSynth(WithSeed(3))
	b := NewSynth(WithSeed(3))

	for i := range 50 {
		now := time.Duration(i) * time.Second / 60

		sa := a.Snapshot(now)
		sb := b.Snapshot(now)

		if len(sa.Waveform) != viz.WaveformLength {
			t.Fatalf("waveform length %d", len(sa.Waveform))
		}

		testutil.RequireSliceNearlyEqual(t, sa.Waveform, sb.Waveform, 0)

		if sa.Level != sb.Level || sa.Transients != sb.Transients {
			t.Fatalf("tick %d diverged", i)
		}

		if sa.Level < 0 || sa.Level > 100 || sa.Peak < 0 || sa.Peak > 255 {
			t.Fatalf("tick %d out of range: %+v", i, sa)
		}
	}
}

func TestSynthTransientsOnBeats(t *testing.T) {
	t.Parallel()

	s := NewSynth(WithTempo(120))

	times := []float64{0, 0.1, 0.2, 0.5, 0.6, 1.05}
	want := []bool{true, false, false, true, false, true}

	for i, sec := range times {
		sig := s.Snapshot(time.Duration(sec * float64(time.Second)))
		if sig.Transients != want[i] {
			t.Fatalf("t=%v: transient %v, want %v", sec, sig.Transients, want[i])
		}
	}

	// decay between beats
	early := s.Snapshot(1500 * time.Millisecond).Level
	late := s.Snapshot(1900 * time.Millisecond).Level

	if late >= early {
		t.Fatalf("level did not decay: %v then %v", early, late)
	}
}

func sineBlocks(amp float64, blocks, frames int) [][][]float64 {
	return testutil.Blocks(testutil.DeterministicSine(1500, 48000, amp, blocks*frames), frames)
}

func TestMeterLevelAndPeak(t *testing.T) {
	t.Parallel()

	m := NewMeter(48000)
	for _, block := range sineBlocks(0.5, 40, 128) {
		m.Observe(block)
	}

	sig := m.Snapshot(time.Second)

	testutil.RequireNear(t, "Level", sig.Level, 50, 1)
	testutil.RequireNear(t, "Peak", sig.Peak, 127.5, 1)

	if sig.SampleRate != 24000 || len(sig.Waveform) != viz.WaveformLength || sig.Time != 1 {
		t.Fatalf("unexpected snapshot shape: rate %v len %d time %v", sig.SampleRate, len(sig.Waveform), sig.Time)
	}

	testutil.RequireFinite(t, sig.Waveform)

	if again := m.Snapshot(time.Second); again.Peak != 0 {
		t.Fatalf("peak not reset: %v", again.Peak)
	}
}

func TestMeterDownmixCancels(t *testing.T) {
	t.Parallel()

	m := NewMeter(48000)
	l := testutil.DeterministicSine(500, 48000, 0.8, 256)
	r := make([]float64, len(l))

	for i, v := range l {
		r[i] = -v
	}

	m.Observe([][]float64{l, r})

	if sig := m.Snapshot(0); sig.Peak != 0 || sig.Level != 0 {
		t.Fatalf("anti-phase stereo metered %+v", sig)
	}
}

func TestMeterTransient(t *testing.T) {
	t.Parallel()

	m := NewMeter(48000, WithDecimation(1))

	quiet := testutil.DeterministicNoise(1, 0.001, 128)
	for range 20 {
		m.Observe([][]float64{quiet})
	}

	if m.Snapshot(0).Transients {
		t.Fatal("steady quiet signal flagged a transient")
	}

	m.Observe([][]float64{testutil.DeterministicSine(200, 48000, 0.9, 128)})

	sig := m.Snapshot(0)
	if !sig.Transients {
		t.Fatal("onset not detected")
	}

	if sig.SampleRate != 48000 {
		t.Fatalf("SampleRate = %v", sig.SampleRate)
	}

	if m.Snapshot(0).Transients {
		t.Fatal("transient flag not cleared")
	}

	// empty blocks are ignored
	m.Observe(nil)
	m.Observe([][]float64{{}})
}

// rampTap holds the samples 0, 1, ..., size-1, oldest first.
type rampTap int

func (r rampTap) FFTSize() int {
	return int(r)
}

func (r rampTap) FloatTimeDomainData(dst []float64) int {
	n := min(len(dst), int(r))
	for i := range n {
		dst[i] = float64(int(r) - n + i)
	}

	return n
}

func TestMeterHistoryFromTap(t *testing.T) {
	t.Parallel()

	if sig := NewMeter(48000).Snapshot(0); sig.History != nil {
		t.Fatalf("meter without tap has history %v", sig.History)
	}

	m := NewMeter(48000, WithTap(rampTap(10)))
	m.Observe([][]float64{make([]float64, 128)})

	// every second sample, ending on the newest
	testutil.RequireSliceNearlyEqual(t, m.Snapshot(0).History, []float64{1, 3, 5, 7, 9}, 0)

	m = NewMeter(48000, WithTap(rampTap(9)), WithDecimation(3))
	testutil.RequireSliceNearlyEqual(t, m.Snapshot(0).History, []float64{2, 5, 8}, 0)
}

func TestSynthHistoryEndsWithWaveform(t *testing.T) {
	t.Parallel()

	sig := NewSynth(WithSeed(5), WithPitch(110)).Snapshot(700 * time.Millisecond)

	if len(sig.History) != synthHistoryLength {
		t.Fatalf("history length %d", len(sig.History))
	}

	tail := sig.History[len(sig.History)-viz.WaveformLength:]
	testutil.RequireSliceNearlyEqual(t, tail, sig.Waveform, synthNoiseFloor+1e-9)
}
