package bridges

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-mixx/internal/testutil"
	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/viz"
)

type bridge interface {
	SetParameters(settings.Settings)
	Process(viz.Frame) (viz.Data, error)
}

func allBridges(t *testing.T, opts ...viz.Option) map[string]bridge {
	t.Helper()

	polish, err := NewPolish(opts...)
	if err != nil {
		t.Fatal(err)
	}

	tune, err := NewTune(opts...)
	if err != nil {
		t.Fatal(err)
	}

	return map[string]bridge{
		"aura":    NewAura(opts...),
		"glue":    NewGlue(opts...),
		"limiter": NewLimiter(opts...),
		"clipper": NewClipper(opts...),
		"drive":   NewDrive(opts...),
		"delay":   NewDelay(opts...),
		"verb":    NewVerb(opts...),
		"polish":  polish,
		"tune":    tune,
	}
}

// loudFrame is a busy 60 Hz tick: a 440 Hz sine with a transient every fifth frame.
func loudFrame(tick int, c viz.Complexity) viz.Frame {
	return viz.Frame{
		Signal: viz.Signal{
			Level:      80,
			Peak:       250,
			Waveform:   testutil.DeterministicSine(440, 48000, 0.8, viz.WaveformLength),
			SampleRate: 48000,
			Transients: tick%5 == 0,
			Time:       float64(tick) / 60,
		},
		Width:  400,
		Height: 200,
		Global: viz.GlobalSettings{AnimationIntensity: 100, Complexity: c},
	}
}

// collections returns the length of every slice-valued key.
func collections(d viz.Data) map[string]int {
	out := map[string]int{}

	for k, v := range d {
		switch s := v.(type) {
		case []Particle:
			out[k] = len(s)
		case []Point:
			out[k] = len(s)
		case []Echo:
			out[k] = len(s)
		case []float64:
			out[k] = len(s)
		}
	}

	return out
}

var collectionCaps = map[string]int{
	"particles": AuraMaxParticles,
	"trail":     GlueTrailCap,
	"history":   LimiterHistoryCap,
	"echoes":    DelayMaxEchoes,
	"bars":      PolishMaxBars,
	"curve":     CurvePoints,
	"tail":      VerbTailCap,
}

func TestCollectionsStayCapped(t *testing.T) {
	t.Parallel()

	for name, b := range allBridges(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			for tick := range 10000 {
				d, err := b.Process(loudFrame(tick, viz.ComplexityHigh))
				if err != nil {
					t.Fatalf("tick %d: %v", tick, err)
				}

				for key, n := range collections(d) {
					limit := collectionCaps[key]
					if name == "tune" && key == "history" {
						limit = TuneHistoryCap
					}

					if n > limit {
						t.Fatalf("tick %d: %s has %d items, cap %d", tick, key, n, limit)
					}
				}
			}
		})
	}

	a := NewAura()
	for tick := range 2000 {
		if _, err := a.Process(loudFrame(tick, viz.ComplexityHigh)); err != nil {
			t.Fatal(err)
		}

		if a.Particles() > AuraMaxParticles {
			t.Fatalf("live particles %d", a.Particles())
		}
	}
}

func TestLowComplexityDrawsLess(t *testing.T) {
	t.Parallel()

	low := allBridges(t)
	high := allBridges(t)

	for name := range low {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			totals := map[viz.Complexity]int{}

			for tick := range 600 {
				for c, b := range map[viz.Complexity]bridge{viz.ComplexityLow: low[name], viz.ComplexityHigh: high[name]} {
					d, err := b.Process(loudFrame(tick, c))
					if err != nil {
						t.Fatal(err)
					}

					for key, n := range collections(d) {
						if limit, ok := collectionCaps[key]; ok && name != "tune" && n > viz.Density(c, limit) {
							t.Fatalf("%s %s: %d items above density", c, key, n)
						}

						totals[c] += n
					}
				}
			}

			if totals[viz.ComplexityLow] > totals[viz.ComplexityHigh] {
				t.Fatalf("low drew %d items, high %d", totals[viz.ComplexityLow], totals[viz.ComplexityHigh])
			}
		})
	}
}

func TestDecayTimesShrinkWithIntensity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(float64) float64
	}{
		{"aura life", AuraParticleLife},
		{"aura width", AuraWidthSmoothing},
		{"glue release", GlueReleaseScale},
		{"limiter peak", LimiterPeakDecay},
		{"limiter flash", LimiterFlashDecay},
		{"clipper flash", ClipperFlashDecay},
		{"drive heat", DriveHeatTau},
		{"delay echo", DelayEchoLife},
		{"verb decay", VerbDecayScale},
		{"polish falloff", PolishFalloff},
		{"tune needle", TuneNeedleTau},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			prev := math.Inf(1)

			for i := 0; i <= 100; i += 10 {
				v := tt.fn(float64(i))
				if v <= 0 || v >= prev {
					t.Fatalf("intensity %d: %v after %v", i, v, prev)
				}

				prev = v
			}
		})
	}
}

func TestBadFrameRejected(t *testing.T) {
	t.Parallel()

	for name, b := range allBridges(t) {
		for _, f := range []viz.Frame{{}, {Width: math.NaN(), Height: 10}, {Width: 10, Height: -1}} {
			if _, err := b.Process(f); !errors.Is(err, viz.ErrBadFrame) {
				t.Fatalf("%s: Process(%+v) = %v", name, f, err)
			}
		}
	}
}

func TestSeededBridgesReplay(t *testing.T) {
	t.Parallel()

	a := NewAura(viz.WithSeed(42))
	b := NewAura(viz.WithSeed(42))

	for tick := range 120 {
		da, _ := a.Process(loudFrame(tick, viz.ComplexityHigh))
		db, _ := b.Process(loudFrame(tick, viz.ComplexityHigh))

		pa := da["particles"].([]Particle)
		pb := db["particles"].([]Particle)

		if len(pa) != len(pb) {
			t.Fatalf("tick %d: %d vs %d particles", tick, len(pa), len(pb))
		}

		for i := range pa {
			if pa[i] != pb[i] {
				t.Fatalf("tick %d: particle %d diverged", tick, i)
			}
		}
	}
}

func TestAuraFollowsSettings(t *testing.T) {
	t.Parallel()

	a := NewAura()
	a.SetParameters(settings.New(map[string]any{"width": 100.0}))

	f := loudFrame(0, viz.ComplexityHigh)
	f.Extra = viz.AuraExtra{Mood: "calm"}

	var d viz.Data

	for tick := range 300 {
		f.Signal.Time = float64(tick) / 60

		var err error

		d, err = a.Process(f)
		if err != nil {
			t.Fatal(err)
		}
	}

	e := d["ellipse"].(Ellipse)
	if math.Abs(e.RX-400*0.45) > 1 {
		t.Fatalf("RX = %v, want about %v", e.RX, 400*0.45)
	}

	if d["mood"] != "calm" {
		t.Fatalf("mood = %v", d["mood"])
	}
}

func TestGlueSettlesOnStaticCurve(t *testing.T) {
	t.Parallel()

	g := NewGlue()
	g.SetParameters(settings.New(map[string]any{"threshold": -20.0, "ratio": 4.0}))

	f := loudFrame(0, viz.ComplexityHigh)
	f.Signal.Level = 100

	var d viz.Data

	for tick := range 120 {
		f.Signal.Time = float64(tick) / 60
		d, _ = g.Process(f)
	}

	if r := d["reduction"].(float64); math.Abs(r-15) > 0.1 {
		t.Fatalf("reduction = %v, want 15", r)
	}

	// silence releases
	f.Signal.Level = 0

	for tick := 120; tick < 600; tick++ {
		f.Signal.Time = float64(tick) / 60
		d, _ = g.Process(f)
	}

	if r := d["reduction"].(float64); r > 0.1 {
		t.Fatalf("reduction after release = %v", r)
	}
}

func TestLimiterClipAndHold(t *testing.T) {
	t.Parallel()

	l := NewLimiter()
	l.SetParameters(settings.New(map[string]any{"ceiling": -1.0}))

	f := loudFrame(0, viz.ComplexityHigh)
	f.Signal.Peak = 255

	d, _ := l.Process(f)
	if d["clip"] != true {
		t.Fatal("full-scale peak should clip a -1 dB ceiling")
	}

	ceiling := math.Pow(10, -1.0/20)
	if h := d["peakHold"].(float64); h > ceiling+1e-9 {
		t.Fatalf("peakHold %v above ceiling %v", h, ceiling)
	}

	f.Signal.Peak = 0
	prev := math.Inf(1)

	for tick := 1; tick < 60; tick++ {
		f.Signal.Time = float64(tick) / 60
		d, _ = l.Process(f)

		flash := d["flash"].(float64)
		if flash >= prev {
			t.Fatalf("flash did not fade: %v after %v", flash, prev)
		}

		prev = flash
	}

	if d["clip"] != false {
		t.Fatal("silence still clips")
	}
}

func TestLimiterCeilingClamped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ceiling float64
		want    float64 // dB
	}{
		{-40, -6},
		{-6, -6},
		{-1, -1},
		{3, 0},
	}

	for _, tt := range tests {
		l := NewLimiter()
		l.SetParameters(settings.New(map[string]any{"ceiling": tt.ceiling}))

		f := loudFrame(0, viz.ComplexityHigh)
		f.Signal.Peak = 0

		d, err := l.Process(f)
		if err != nil {
			t.Fatal(err)
		}

		want := f.Height * (1 - math.Pow(10, tt.want/20))
		testutil.RequireNear(t, "ceilingY", d["ceilingY"].(float64), want, 1e-9)
	}
}

func TestDriveFollowsSettings(t *testing.T) {
	t.Parallel()

	run := func(drive float64) viz.Data {
		d := NewDrive()
		d.SetParameters(settings.New(map[string]any{"drive": drive}))

		var out viz.Data

		for tick := range 60 {
			var err error

			out, err = d.Process(loudFrame(tick, viz.ComplexityHigh))
			if err != nil {
				t.Fatal(err)
			}
		}

		return out
	}

	clean, hot := run(0), run(100)

	if clean["heat"].(float64) != 0 || hot["heat"].(float64) < 0.5 {
		t.Fatalf("heat = %v clean, %v hot", clean["heat"], hot["heat"])
	}

	if hot["harmonics"].(float64) <= clean["harmonics"].(float64) {
		t.Fatalf("harmonics = %v clean, %v hot", clean["harmonics"], hot["harmonics"])
	}

	// just right of centre, full drive already sits near the top edge
	cc, hc := clean["curve"].([]Point), hot["curve"].([]Point)
	q := len(cc) * 5 / 8

	if hc[q].Y >= cc[q].Y-10 {
		t.Fatalf("curve at %d: clean y=%v, hot y=%v", q, cc[q].Y, hc[q].Y)
	}

	warm := NewDrive()
	warm.SetParameters(settings.New(map[string]any{"warmth": 100.0, "color": 0.0}))

	d, _ := warm.Process(loudFrame(0, viz.ComplexityHigh))
	if d["hue"].(float64) >= clean["hue"].(float64) {
		t.Fatalf("warm hue %v not below neutral %v", d["hue"], clean["hue"])
	}
}

func TestClipperReduction(t *testing.T) {
	t.Parallel()

	c := NewClipper()
	c.SetParameters(settings.New(map[string]any{"ceiling": -6.0, "softness": 0.0, "drive": 0.0}))

	f := loudFrame(0, viz.ComplexityHigh)
	f.Signal.Peak = 255

	d, _ := c.Process(f)
	if d["clip"] != true {
		t.Fatal("full-scale peak should clip a -6 dB ceiling")
	}

	testutil.RequireNear(t, "reduction", d["reduction"].(float64), 6, 0.05)

	f.Signal.Peak = 64
	prev := math.Inf(1)

	for tick := 1; tick < 30; tick++ {
		f.Signal.Time = float64(tick) / 60

		d, _ = c.Process(f)
		if d["clip"] != false || d["reduction"].(float64) != 0 {
			t.Fatalf("quiet peak clips: %v", d)
		}

		flash := d["flash"].(float64)
		if flash >= prev {
			t.Fatalf("flash did not fade: %v after %v", flash, prev)
		}

		prev = flash
	}

	for _, p := range d["curve"].([]Point) {
		if p.Y < d["ceilingY"].(float64)-1e-9 {
			t.Fatalf("curve point %+v above the ceiling line", p)
		}
	}
}

func TestVerbTailDecays(t *testing.T) {
	t.Parallel()

	decayAfter := func(size float64) float64 {
		v := NewVerb()
		v.SetParameters(settings.New(map[string]any{"size": size, "mix": 100.0}))

		f := loudFrame(0, viz.ComplexityHigh)
		f.Global.AnimationIntensity = 50

		var d viz.Data
		for tick := range 30 {
			f.Signal.Time = float64(tick) / 60
			d, _ = v.Process(f)
		}

		peak := d["energy"].(float64)

		f.Signal.Level = 0
		for tick := 30; tick < 90; tick++ {
			f.Signal.Time = float64(tick) / 60
			d, _ = v.Process(f)
		}

		return d["energy"].(float64) / peak
	}

	small, large := decayAfter(0), decayAfter(100)
	if small >= large || large >= 1 {
		t.Fatalf("energy left after 1 s: %v small room, %v large room", small, large)
	}

	if VerbRT60(100) <= VerbRT60(0) {
		t.Fatal("RT60 does not grow with size")
	}
}

func TestDelayEchoesFade(t *testing.T) {
	t.Parallel()

	d := NewDelay()
	d.SetParameters(settings.New(map[string]any{"feedback": 50.0, "time": 200.0}))

	f := loudFrame(0, viz.ComplexityHigh)
	f.Signal.Transients = true

	out, _ := d.Process(f)
	if n := len(out["echoes"].([]Echo)); n != 1 {
		t.Fatalf("echoes after transient = %d", n)
	}

	f.Signal.Transients = false
	f.Signal.Level = 0

	for tick := 1; tick < 600; tick++ {
		f.Signal.Time = float64(tick) / 60
		out, _ = d.Process(f)
	}

	if n := len(out["echoes"].([]Echo)); n != 0 {
		t.Fatalf("echoes after silence = %d", n)
	}
}

func TestPolishBarsFall(t *testing.T) {
	t.Parallel()

	p, err := NewPolish()
	if err != nil {
		t.Fatal(err)
	}

	d, err := p.Process(loudFrame(0, viz.ComplexityHigh))
	if err != nil {
		t.Fatal(err)
	}

	bars := d["bars"].([]float64)
	testutil.RequireFinite(t, bars)

	top := 0.0
	for _, b := range bars {
		top = max(top, b)
	}

	if top < 0.5 {
		t.Fatalf("loud sine peaks at %v", top)
	}

	f := loudFrame(0, viz.ComplexityHigh)
	f.Signal.Waveform = make([]float64, viz.WaveformLength)
	f.Signal.Level = 0

	for tick := 1; tick < 120; tick++ {
		f.Signal.Time = float64(tick) / 60
		d, _ = p.Process(f)
	}

	for i, b := range d["bars"].([]float64) {
		if b != 0 {
			t.Fatalf("bar %d = %v after silence", i, b)
		}
	}
}

func TestTuneDetectsPitch(t *testing.T) {
	t.Parallel()

	tn, err := NewTune()
	if err != nil {
		t.Fatal(err)
	}

	d, err := tn.Process(loudFrame(0, viz.ComplexityHigh))
	if err != nil {
		t.Fatal(err)
	}

	testutil.RequireNear(t, "hz", d["hz"].(float64), 440, 5)

	if d["note"] != "A4" {
		t.Fatalf("note = %v", d["note"])
	}

	f := loudFrame(1, viz.ComplexityHigh)
	f.Signal.Level = 0

	d, _ = tn.Process(f)
	if d["note"] != "" || d["hz"].(float64) != 0 {
		t.Fatalf("silence reported %v / %v", d["note"], d["hz"])
	}
}

// harmonicTone is a fundamental with two weaker overtones, like a sung or
// plucked note.
func harmonicTone(freq, rate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := 2 * math.Pi * freq * float64(i) / rate
		out[i] = 0.5 * (0.7*math.Sin(x) + 0.2*math.Sin(2*x) + 0.1*math.Sin(3*x))
	}

	return out
}

func TestTuneDetectionRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		freq    float64
		rate    float64
		history int // 0 sends the waveform only
		note    string
	}{
		{"E2 history 24k", 82.41, 24000, 1024, "E2"},
		{"A2 history 24k", 110, 24000, 1024, "A2"},
		{"D3 history 24k", 146.83, 24000, 1024, "D3"},
		{"A3 history 24k", 220, 24000, 1024, "A3"},
		{"E2 history 48k", 82.41, 48000, 2048, "E2"},
		{"A2 history 48k", 110, 48000, 2048, "A2"},
		{"D3 history 48k", 146.83, 48000, 2048, "D3"},
		{"A3 history 48k", 220, 48000, 2048, "A3"},
		{"E4 history 48k", 329.63, 48000, 2048, "E4"},
		{"A3 waveform 24k", 220, 24000, 0, "A3"},
		{"A4 waveform 48k", 440, 48000, 0, "A4"},
		// periods longer than half the waveform are unvoiced, never a wrong note
		{"E2 waveform 24k", 82.41, 24000, 0, ""},
		{"A2 waveform 24k", 110, 24000, 0, ""},
		{"D3 waveform 24k", 146.83, 24000, 0, ""},
		{"A3 waveform 48k", 220, 48000, 0, ""},
		{"E4 waveform 48k", 329.63, 48000, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tn, err := NewTune()
			if err != nil {
				t.Fatal(err)
			}

			tone := harmonicTone(tt.freq, tt.rate, max(tt.history, viz.WaveformLength))

			f := loudFrame(0, viz.ComplexityHigh)
			f.Signal.SampleRate = tt.rate
			f.Signal.Waveform = tone[len(tone)-viz.WaveformLength:]

			if tt.history > 0 {
				f.Signal.History = tone
			}

			d, err := tn.Process(f)
			if err != nil {
				t.Fatal(err)
			}

			hz := d["hz"].(float64)

			if tt.note == "" {
				if hz != 0 || d["note"] != "" {
					t.Fatalf("got %v Hz (%v), want unvoiced", hz, d["note"])
				}

				return
			}

			testutil.RequireNear(t, "hz", hz, tt.freq, tt.freq*0.015)

			if d["note"] != tt.note {
				t.Fatalf("note = %v, want %s", d["note"], tt.note)
			}
		})
	}
}

func TestSnapNote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		midi       float64
		key, scale string
		want       int
	}{
		{69.3, "C", "chromatic", 69},
		{61.2, "C", "major", 62},
		{61, "A", "minor", 60},
		{66, "F#", "major", 66},
		{64.4, "nope", "nope", 64},
	}

	for _, tt := range tests {
		if got := SnapNote(tt.midi, tt.key, tt.scale); got != tt.want {
			t.Errorf("SnapNote(%v, %s, %s) = %d, want %d", tt.midi, tt.key, tt.scale, got, tt.want)
		}
	}

	if NoteName(69) != "A4" || NoteName(60) != "C4" || NoteName(61) != "C#4" {
		t.Fatal("NoteName")
	}
}
