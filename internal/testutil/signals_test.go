package testutil

import (
	"math"
	"slices"
	"testing"
)

func TestDeterministicSine(t *testing.T) {
	t.Parallel()

	s := DeterministicSine(1000, 48000, 1, 48)
	if len(s) != 48 || math.Abs(s[0]) > 1e-15 {
		t.Fatalf("len %d, s[0] %v", len(s), s[0])
	}

	RequireNear(t, "quarter period", s[12], 1, 1e-12)

	if !slices.Equal(s, DeterministicSine(1000, 48000, 1, 48)) {
		t.Fatal("sine not reproducible")
	}
}

func TestDeterministicNoise(t *testing.T) {
	t.Parallel()

	a := DeterministicNoise(42, 0.5, 64)
	if !slices.Equal(a, DeterministicNoise(42, 0.5, 64)) {
		t.Fatal("same seed gave different noise")
	}

	if slices.Equal(a, DeterministicNoise(43, 0.5, 64)) {
		t.Fatal("different seeds gave identical noise")
	}

	for i, v := range a {
		if v < -0.5 || v >= 0.5 {
			t.Fatalf("a[%d] = %v out of range", i, v)
		}
	}
}

func TestShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  []float64
		want []float64
	}{
		{"impulse", Impulse(4, 2), []float64{0, 0, 1, 0}},
		{"impulse out of range", Impulse(3, 7), []float64{0, 0, 0}},
		{"dc", DC(0.5, 3), []float64{0.5, 0.5, 0.5}},
		{"ones", Ones(2), []float64{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			RequireSliceNearlyEqual(t, tt.got, tt.want, 0)
		})
	}
}

func TestBlocks(t *testing.T) {
	t.Parallel()

	blocks := Blocks([]float64{1, 2, 3, 4, 5}, 2)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}

	if !slices.Equal(blocks[1][0], []float64{3, 4}) || !slices.Equal(blocks[1][1], blocks[1][0]) {
		t.Fatalf("block 1 = %v", blocks[1])
	}
}
