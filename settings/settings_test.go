package settings

import (
	"math"
	"slices"
	"sync"
	"testing"
)

func TestMerge(t *testing.T) {
	t.Parallel()

	t.Run("returns changed keys sorted", func(t *testing.T) {
		t.Parallel()

		prev := New(Patch{"width": 50.0, "tone": 50.0, "mode": "wide"})

		next, changed := Merge(prev, Patch{"width": 80, "tone": 50.0, "mode": "narrow", "shine": true})
		if want := []string{"mode", "shine", "width"}; !slices.Equal(changed, want) {
			t.Fatalf("changed = %v, want %v", changed, want)
		}

		if got := next.Num("width", 0); got != 80 {
			t.Errorf("width = %v, want 80", got)
		}

		if !next.Bool("shine") {
			t.Error("shine toggle should read true")
		}

		if got := next.Str("mode", ""); got != "narrow" {
			t.Errorf("mode = %q, want narrow", got)
		}
	})

	t.Run("does not mutate previous record", func(t *testing.T) {
		t.Parallel()

		prev := New(Patch{"width": 10.0})
		_, _ = Merge(prev, Patch{"width": 90.0, "extra": 1.0})

		if got := prev.Num("width", 0); got != 10 {
			t.Fatalf("prev width = %v, want 10", got)
		}

		if prev.Has("extra") {
			t.Fatal("prev gained a key from the patch")
		}
	})

	t.Run("drops non-finite and unsupported values", func(t *testing.T) {
		t.Parallel()

		next, changed := Merge(Settings{}, Patch{
			"nan":    math.NaN(),
			"inf":    math.Inf(1),
			"struct": struct{}{},
			"ok":     int64(3),
		})
		if want := []string{"ok"}; !slices.Equal(changed, want) {
			t.Fatalf("changed = %v, want %v", changed, want)
		}

		if next.Has("nan") || next.Has("inf") {
			t.Fatal("non-finite values were stored")
		}
	})

	t.Run("type switch moves key between maps", func(t *testing.T) {
		t.Parallel()

		prev := New(Patch{"key": 1.0})

		next, _ := Merge(prev, Patch{"key": "C"})
		if next.Has("key") {
			t.Fatal("numeric value should be replaced by enum value")
		}

		if got := next.Str("key", ""); got != "C" {
			t.Fatalf("key = %q, want C", got)
		}
	})
}

func TestSettingsKeys(t *testing.T) {
	t.Parallel()

	s := New(Patch{"b": 1.0, "a": "x", "c": false})
	if want := []string{"a", "b", "c"}; !slices.Equal(s.Keys(), want) {
		t.Fatalf("Keys = %v, want %v", s.Keys(), want)
	}

	if want := []string{"b", "c"}; !slices.Equal(s.NumKeys(), want) {
		t.Fatalf("NumKeys = %v, want %v", s.NumKeys(), want)
	}

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}

	p := s.Patch()
	if p["a"] != "x" || p["b"] != 1.0 {
		t.Fatalf("Patch = %v", p)
	}
}

func TestStoreUpdate(t *testing.T) {
	t.Parallel()

	t.Run("no-op patch publishes nothing", func(t *testing.T) {
		t.Parallel()

		st := NewStore(New(Patch{"mix": 100.0}))

		_, changed := st.Update(Patch{"mix": 100.0})
		if changed != nil {
			t.Fatalf("changed = %v, want nil", changed)
		}
	})

	t.Run("concurrent updates all land", func(t *testing.T) {
		t.Parallel()

		st := NewStore(Settings{})

		var wg sync.WaitGroup

		keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		for _, k := range keys {
			wg.Add(1)

			go func() {
				defer wg.Done()

				st.Update(Patch{k: 1.0})
			}()
		}

		wg.Wait()

		snap := st.Snapshot()
		for _, k := range keys {
			if !snap.Has(k) {
				t.Errorf("key %q lost in concurrent merge", k)
			}
		}
	})
}
