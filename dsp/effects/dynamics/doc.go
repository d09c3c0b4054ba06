// Package dynamics provides the gain computers behind the audio graph's
// compressor node.
//
// Compressor is a soft-knee peak compressor with log2-domain gain
// calculation. It is mono; stereo linking is done by feeding [Compressor.Gain]
// the loudest channel and applying the result to every channel.
package dynamics
