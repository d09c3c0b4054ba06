package interp

import (
	"math"
	"testing"
)

func TestHermite4(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		t, xm1, x0, x1, x2 float64
		want               float64
	}{
		{"start is x0", 0, 9, 2, 5, -3, 2},
		{"end is x1", 1, 9, 2, 5, -3, 5},
		{"linear ramp midpoint", 0.5, 0, 1, 2, 3, 1.5},
		{"constant", 0.3, 4, 4, 4, 4, 4},
		// exact for quadratics: x^2 sampled at -1, 0, 1, 2
		{"parabola", 0.5, 1, 0, 1, 4, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Hermite4(tt.t, tt.xm1, tt.x0, tt.x1, tt.x2)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("Hermite4 = %v, want %v", got, tt.want)
			}
		})
	}
}
