// Package biquad provides the second-order IIR runtime used by the audio
// graph's filter nodes.
//
// A [Section] implements Direct Form II Transposed processing for one
// second-order section defined by [Coefficients]. Coefficient design lives
// in dsp/filter/design.
package biquad
