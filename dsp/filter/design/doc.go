// Package design provides RBJ-style biquad coefficient designers.
//
// The functions return [biquad.Coefficients] for runtime processing by
// dsp/filter/biquad. Frequencies outside (0, nyquist) and non-finite inputs
// yield the zero section.
package design
