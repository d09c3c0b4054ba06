//go:build arm64 && !purego

// Package neon registers the kernel used on ARM64 CPUs with NEON.
package neon

import (
	"github.com/cwbudde/algo-vecmath/cpu"

	"github.com/cwbudde/algo-mixx/dsp/filter/biquad/internal/arch/generic"
	"github.com/cwbudde/algo-mixx/dsp/filter/biquad/internal/arch/registry"
)

func init() {
	registry.Global.Register(registry.OpEntry{
		Name:         "neon",
		SIMDLevel:    cpu.SIMDNEON,
		Priority:     15,
		ProcessBlock: generic.ProcessBlock4,
	})
}
