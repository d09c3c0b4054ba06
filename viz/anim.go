package viz

import (
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"
)

// Remap maps intensity 0..100 linearly onto [slow, fast]. Callers pass the
// duration at intensity 0 first, so higher intensity yields shorter times.
func Remap(intensity, slow, fast float64) float64 {
	t := clamp(intensity, 0, 100) / 100
	return slow*(1-t) + fast*t
}

// Density returns count at high complexity and half of it (at least one) at low.
func Density(c Complexity, count int) int {
	if c == ComplexityLow {
		return max(count/2, 1)
	}

	return count
}

// Approach moves cur towards target with time constant tau over dt seconds.
func Approach(cur, target, dt, tau float64) float64 {
	if tau <= 0 {
		return target
	}

	return target + (cur-target)*math.Exp(-dt/tau)
}

// Decay shrinks v towards zero with time constant tau over dt seconds.
func Decay(v, dt, tau float64) float64 {
	return Approach(v, 0, dt, tau)
}

// Step returns the time since the previous tick clamped to [0, maxStep]; the
// first tick (prev < 0) counts as one 60 Hz frame.
func Step(prev, now float64) float64 {
	const maxStep = 0.1

	if prev < 0 {
		return 1.0 / 60
	}

	return clamp(now-prev, 0, maxStep)
}

// Config carries the dependencies a bridge is built with.
type Config struct {
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Option adjusts a Config.
type Option func(*Config)

// WithRand injects the random source.
func WithRand(r *rand.Rand) Option {
	return func(c *Config) {
		if r != nil {
			c.Rand = r
		}
	}
}

// WithSeed seeds a fresh random source.
func WithSeed(seed uint64) Option {
	return func(c *Config) {
		c.Rand = NewRand(seed)
	}
}

// WithLogger sets the bridge logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// NewConfig applies opts over the defaults: a discard logger and a random
// source seeded from kind, so two bridges of the same kind replay identically.
func NewConfig(kind string, opts ...Option) Config {
	cfg := Config{Logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Rand == nil {
		cfg.Rand = NewRand(SeedFor(kind))
	}

	return cfg
}

// NewRand returns a PCG source for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SeedFor derives a stable seed from a name.
func SeedFor(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))

	return h.Sum64()
}
