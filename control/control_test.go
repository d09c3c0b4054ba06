package control

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cwbudde/algo-mixx/settings"
)

func TestTranslate(t *testing.T) {
	t.Parallel()

	m := NewMap()

	for _, b := range []Binding{
		{Channel: 0, Controller: 74, Param: "width", Min: 0, Max: 100},
		{Channel: 1, Controller: 7, Param: "ceiling", Min: -6, Max: 0},
		{Channel: 0, Controller: 64, Param: "emotiveLock", Toggle: true},
	} {
		if err := m.Bind(b); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		msg   midi.Message
		key   string
		want  any
		found bool
	}{
		{"top of range", midi.ControlChange(0, 74, 127), "width", 100.0, true},
		{"bottom of range", midi.ControlChange(0, 74, 0), "width", 0.0, true},
		{"negative range", midi.ControlChange(1, 7, 127), "ceiling", 0.0, true},
		{"toggle on", midi.ControlChange(0, 64, 100), "emotiveLock", true, true},
		{"toggle off", midi.ControlChange(0, 64, 10), "emotiveLock", false, true},
		{"other channel", midi.ControlChange(2, 74, 64), "", nil, false},
		{"not a cc", midi.NoteOn(0, 60, 100), "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			patch, ok := m.Translate(tt.msg)
			if ok != tt.found {
				t.Fatalf("found = %v", ok)
			}

			if !ok {
				return
			}

			if len(patch) != 1 || patch[tt.key] != tt.want {
				t.Fatalf("patch = %v, want %s=%v", patch, tt.key, tt.want)
			}
		})
	}

	patch, _ := m.Translate(midi.ControlChange(1, 7, 64))
	if v := patch["ceiling"].(float64); math.Abs(v-(-6+6*64.0/127)) > 1e-12 {
		t.Fatalf("mid ceiling = %v", v)
	}
}

func TestBindValidation(t *testing.T) {
	t.Parallel()

	m := NewMap()

	for _, b := range []Binding{
		{Channel: 16, Controller: 1, Param: "x", Max: 1},
		{Controller: 128, Param: "x", Max: 1},
		{Controller: 1, Max: 1},
		{Controller: 1, Param: "x", Min: 5, Max: 5},
	} {
		if err := m.Bind(b); !errors.Is(err, ErrInvalidBinding) {
			t.Fatalf("Bind(%+v) = %v", b, err)
		}
	}

	if len(m.Bindings()) != 0 {
		t.Fatal("invalid binding stored")
	}
}

func TestLearn(t *testing.T) {
	t.Parallel()

	m := NewMap()
	if err := m.Learn(Binding{Param: "shine", Max: 100}); err != nil {
		t.Fatal(err)
	}

	if p, ok := m.Learning(); !ok || p != "shine" {
		t.Fatalf("Learning = %q, %v", p, ok)
	}

	// non-CC messages leave learn armed
	m.Translate(midi.NoteOn(0, 60, 1))

	patch, ok := m.Translate(midi.ControlChange(3, 21, 127))
	if !ok || patch["shine"] != 100.0 {
		t.Fatalf("learned translate = %v, %v", patch, ok)
	}

	if _, ok := m.Learning(); ok {
		t.Fatal("learn still armed")
	}

	bs := m.Bindings()
	if len(bs) != 1 || bs[0].Channel != 3 || bs[0].Controller != 21 {
		t.Fatalf("Bindings = %+v", bs)
	}

	m.Learn(Binding{Param: "tone", Max: 100})
	m.CancelLearn()

	if _, ok := m.Translate(midi.ControlChange(0, 1, 1)); ok {
		t.Fatal("cancelled learn bound a controller")
	}

	m.Unbind(3, 21)

	if _, ok := m.Translate(midi.ControlChange(3, 21, 1)); ok {
		t.Fatal("unbound controller translated")
	}
}

func TestFeedback(t *testing.T) {
	t.Parallel()

	m := NewMap()
	_ = m.Bind(Binding{Channel: 0, Controller: 10, Param: "width", Max: 100})
	_ = m.Bind(Binding{Channel: 0, Controller: 11, Param: "missing", Max: 100})
	_ = m.Bind(Binding{Channel: 0, Controller: 12, Param: "lock", Toggle: true})

	out := m.Feedback(settings.New(settings.Patch{"width": 50.0, "lock": true}))
	if len(out) != 2 {
		t.Fatalf("Feedback = %v", out)
	}

	var ch, cc, val uint8
	if !out[0].GetControlChange(&ch, &cc, &val) || cc != 10 || val != 64 {
		t.Fatalf("width feedback = %d/%d/%d", ch, cc, val)
	}

	if !out[1].GetControlChange(&ch, &cc, &val) || cc != 12 || val != 127 {
		t.Fatalf("toggle feedback = %d/%d/%d", ch, cc, val)
	}
}

func TestListen(t *testing.T) {
	t.Parallel()

	m := NewMap()
	_ = m.Bind(Binding{Controller: 1, Param: "mix", Max: 100})

	in := make(chan midi.Message, 3)
	in <- midi.ControlChange(0, 1, 127)
	in <- midi.NoteOff(0, 60)
	in <- midi.ControlChange(0, 1, 0)
	close(in)

	var got []any

	err := m.Listen(context.Background(), in, func(p settings.Patch) []string {
		got = append(got, p["mix"])
		return []string{"mix"}
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 || got[0] != 100.0 || got[1] != 0.0 {
		t.Fatalf("applied %v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := m.Listen(ctx, make(chan midi.Message), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Listen = %v", err)
	}
}
