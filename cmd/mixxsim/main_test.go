package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cwbudde/algo-mixx/control"
	"github.com/cwbudde/algo-mixx/plugin"
	"github.com/cwbudde/algo-mixx/settings"
)

func testConfig(kind plugin.Kind) config {
	return config{
		kind:       string(kind),
		seconds:    0.25,
		rate:       48000,
		block:      128,
		fps:        60,
		every:      2,
		seed:       3,
		tempo:      240,
		pitch:      220,
		intensity:  50,
		complexity: "high",
		patch:      settings.Patch{},
	}
}

func TestRunEveryKind(t *testing.T) {
	t.Parallel()

	for _, kind := range plugin.Default().Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			err := run(testConfig(kind), &buf, slog.New(slog.DiscardHandler))
			if err != nil {
				t.Fatal(err)
			}

			lines := 0

			sc := bufio.NewScanner(&buf)
			sc.Buffer(make([]byte, 0, 1<<16), 1<<22)

			for sc.Scan() {
				var rec struct {
					Time   float64        `json:"time"`
					Plugin string         `json:"plugin"`
					Data   map[string]any `json:"data"`
				}

				if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
					t.Fatalf("line %d: %v", lines, err)
				}

				if rec.Plugin != string(kind) || len(rec.Data) == 0 {
					t.Fatalf("line %d = %+v", lines, rec)
				}

				lines++
			}

			// 16 frames over 0.25 s, every second one printed
			if lines != 8 {
				t.Fatalf("printed %d frames, want 8", lines)
			}
		})
	}
}

func TestRunIsReproducible(t *testing.T) {
	t.Parallel()

	cfg := testConfig(plugin.Aura)
	cfg.patch = settings.Patch{"width": 80.0}

	var a, b bytes.Buffer

	for _, buf := range []*bytes.Buffer{&a, &b} {
		err := run(cfg, buf, slog.New(slog.DiscardHandler))
		if err != nil {
			t.Fatal(err)
		}
	}

	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("same seed and input produced different frames")
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Parallel()

	unknown := testConfig("reverb")
	if err := run(unknown, &bytes.Buffer{}, slog.New(slog.DiscardHandler)); !errors.Is(err, plugin.ErrUnknownKind) {
		t.Fatalf("unknown plugin = %v", err)
	}

	for _, mutate := range []func(*config){
		func(c *config) { c.seconds = 0 },
		func(c *config) { c.fps = -1 },
		func(c *config) { c.every = 0 },
		func(c *config) { c.tempo = 0 },
		func(c *config) { c.tempo = 1e9 },
		func(c *config) { c.tempo = math.Inf(1) },
		func(c *config) { c.tempo = math.NaN() },
		func(c *config) { c.midi = "knobs.mid" },
	} {
		cfg := testConfig(plugin.Glue)
		mutate(&cfg)

		if err := run(cfg, &bytes.Buffer{}, slog.New(slog.DiscardHandler)); err == nil {
			t.Fatalf("accepted %+v", cfg)
		}
	}
}

func TestParseSetting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		key     string
		want    any
		wantErr bool
	}{
		{"width=90", "width", 90.0, false},
		{" ceiling = -0.5 ", "ceiling", -0.5, false},
		{"emotiveLock=true", "emotiveLock", true, false},
		{"mood=calm", "mood", "calm", false},
		{"noequals", "", nil, true},
		{"=5", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			patch := settings.Patch{}

			err := parseSetting(patch, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}

			if tt.wantErr {
				return
			}

			if patch[tt.key] != tt.want {
				t.Fatalf("patch = %v, want %s=%v", patch, tt.key, tt.want)
			}
		})
	}
}

func TestBeatAtMaxTempo(t *testing.T) {
	t.Parallel()

	cfg := testConfig(plugin.Glue)
	cfg.tempo = maxTempo
	cfg.rate = 8000

	if err := run(cfg, &bytes.Buffer{}, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatal(err)
	}

	b := newBeat(1, maxTempo, 220)
	b.fill(make([]float64, 4), make([]float64, 4))
}

// writeMIDI stores a file with one control change on channel 0 per track,
// at each of the given times in seconds (120 BPM).
func writeMIDI(t *testing.T, cc uint8, value uint8, at ...float64) string {
	t.Helper()

	clock := smf.MetricTicks(960)

	s := smf.New()
	s.TimeFormat = clock

	for i, sec := range at {
		var tr smf.Track
		if i == 0 {
			tr.Add(0, smf.MetaTempo(120))
		}

		tr.Add(uint32(sec*2*float64(clock.Ticks4th())), midi.ControlChange(0, cc, value))
		tr.Close(0)

		if err := s.Add(tr); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "knobs.mid")
	if err := s.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestLoadCues(t *testing.T) {
	t.Parallel()

	path := writeMIDI(t, 7, 100, 0.1, 0.05)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	cues, err := loadCues(f, 48000)
	if err != nil {
		t.Fatal(err)
	}

	if len(cues) != 2 {
		t.Fatalf("got %d cues", len(cues))
	}

	// the second track's event comes first once sorted
	for i, want := range []int{2400, 4800} {
		if math.Abs(float64(cues[i].at-want)) > 2 {
			t.Fatalf("cue %d at sample %d, want %d", i, cues[i].at, want)
		}
	}

	if _, err := loadCues(bytes.NewReader([]byte("not midi")), 48000); err == nil {
		t.Fatal("accepted a non-MIDI file")
	}
}

func TestRunReplaysMIDI(t *testing.T) {
	t.Parallel()

	render := func(cfg config) []byte {
		var buf bytes.Buffer

		if err := run(cfg, &buf, slog.New(slog.DiscardHandler)); err != nil {
			t.Fatal(err)
		}

		return buf.Bytes()
	}

	plain := render(testConfig(plugin.Aura))

	knob := testConfig(plugin.Aura)
	knob.midi = writeMIDI(t, 7, 127, 0.05)
	knob.bindings = []control.Binding{{Controller: 7, Param: "width", Min: 0, Max: 100}}

	moved := render(knob)
	if bytes.Equal(plain, moved) {
		t.Fatal("width cue left the frames unchanged")
	}

	if again := render(knob); !bytes.Equal(moved, again) {
		t.Fatal("replay is not reproducible")
	}

	// a cue on an unbound controller is ignored
	other := knob
	other.midi = writeMIDI(t, 9, 127, 0.05)

	if got := render(other); !bytes.Equal(plain, got) {
		t.Fatal("unbound controller changed the frames")
	}
}

func TestParseBinding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    control.Binding
		wantErr bool
	}{
		{"7=width", control.Binding{Controller: 7, Param: "width", Max: 100}, false},
		{"2/74=ceiling:-6:0", control.Binding{Channel: 2, Controller: 74, Param: "ceiling", Min: -6}, false},
		{"64=emotiveLock:toggle", control.Binding{Controller: 64, Param: "emotiveLock", Max: 100, Toggle: true}, false},
		{"width", control.Binding{}, true},
		{"x=width", control.Binding{}, true},
		{"300=width", control.Binding{}, true},
		{"7=width:1", control.Binding{}, true},
		{"7=width:1:2:3", control.Binding{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := parseBinding(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}

			if !tt.wantErr && got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
