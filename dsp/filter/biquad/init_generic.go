//go:build (!amd64 && !arm64) || purego

package biquad

import (
	_ "github.com/cwbudde/algo-mixx/dsp/filter/biquad/internal/arch/generic"
)
