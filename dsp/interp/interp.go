// Package interp provides interpolation primitives used by delay lines.
package interp

// Hermite4 computes cubic 4-point interpolation. It interpolates from x0 to
// x1 at t in [0, 1] using the neighbours xm1 and x2.
func Hermite4(t, xm1, x0, x1, x2 float64) float64 {
	c0 := x0
	c1 := 0.5 * (x1 - xm1)
	c2 := xm1 - 2.5*x0 + 2*x1 - 0.5*x2
	c3 := 0.5*(x2-xm1) + 1.5*(x0-x1)

	return ((c3*t+c2)*t+c1)*t + c0
}
