//go:build amd64 && !purego

// Package avx2 registers the kernel used on AVX2-capable x86 CPUs.
package avx2

import (
	"github.com/cwbudde/algo-vecmath/cpu"

	"github.com/cwbudde/algo-mixx/dsp/filter/biquad/internal/arch/generic"
	"github.com/cwbudde/algo-mixx/dsp/filter/biquad/internal/arch/registry"
)

func init() {
	registry.Global.Register(registry.OpEntry{
		Name:         "avx2",
		SIMDLevel:    cpu.SIMDAVX2,
		Priority:     20,
		ProcessBlock: generic.ProcessBlock4,
	})
}
