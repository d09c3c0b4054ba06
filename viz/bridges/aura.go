package bridges

import (
	"math"

	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/viz"
)

// AuraMaxParticles caps the sparkle emitter.
const AuraMaxParticles = 200

const (
	auraSpawnRate  = 60.0 // particles per second at full level
	auraBurst      = 12   // extra particles on a transient
	auraParticleSz = 3.0
)

var moodHues = map[string]float64{
	"calm":      200,
	"dreamy":    270,
	"energetic": 20,
	"warm":      35,
	"dark":      250,
	"bright":    55,
}

// Particle is one sparkle. Age and Life are in seconds.
type Particle struct {
	X, Y   float64
	VX, VY float64
	Size   float64
	Age    float64
	Life   float64
	Hue    float64
}

// Alpha fades the particle out over its life.
func (p Particle) Alpha() float64 {
	return clamp01(1 - p.Age/p.Life)
}

// Ellipse is the stereo image outline.
type Ellipse struct {
	CX, CY float64
	RX, RY float64
}

// AuraParticleLife is the sparkle lifetime for an animation intensity:
// 2.4 s at 0 down to 0.6 s at 100.
func AuraParticleLife(intensity float64) float64 {
	return viz.Remap(intensity, 2.4, 0.6)
}

// AuraWidthSmoothing is the time constant of the image width: 0.4 s down to 0.08 s.
func AuraWidthSmoothing(intensity float64) float64 {
	return viz.Remap(intensity, 0.4, 0.08)
}

// Aura draws the stereo image as an ellipse with sparkles for the shine.
//
// Output keys: particles ([]Particle), ellipse (Ellipse), hue (degrees),
// glow (0..1), mood (string).
type Aura struct {
	cfg   viz.Config
	s     settings.Settings
	clock clock

	particles *viz.Ring[Particle]
	width     float64
	glow      float64
	hue       float64
	spawn     float64
}

// NewAura creates an aura bridge.
func NewAura(opts ...viz.Option) *Aura {
	return &Aura{
		cfg:       viz.NewConfig("aura", opts...),
		clock:     newClock(),
		particles: viz.NewRing[Particle](AuraMaxParticles),
		width:     0.5,
		hue:       -1,
	}
}

// SetParameters replaces the settings snapshot.
func (a *Aura) SetParameters(s settings.Settings) {
	a.s = s
}

// Process advances the sparkles by one tick.
func (a *Aura) Process(f viz.Frame) (viz.Data, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	dt := a.clock.step(f.Signal.Time)
	intensity := f.Global.AnimationIntensity

	width := clamp01(a.s.Num("width", 50) / 100)
	tone := clamp01(a.s.Num("tone", 50) / 100)
	shine := clamp01(a.s.Num("shine", 50) / 100)
	moodLock := clamp01(a.s.Num("moodLock", 0) / 100)
	level := clamp01(f.Signal.Level / 100)

	mood := "neutral"
	baseHue := 180 + tone*80

	if extra, ok := f.Extra.(viz.AuraExtra); ok && extra.Mood != "" {
		mood = extra.Mood
		if h, ok := moodHues[mood]; ok {
			baseHue = h
		}
	}

	a.width = viz.Approach(a.width, width, dt, AuraWidthSmoothing(intensity))
	a.glow = viz.Approach(a.glow, level*(0.4+0.6*shine), dt, AuraWidthSmoothing(intensity))

	// mood lock pins the hue to the base; otherwise it wanders
	if a.hue < 0 {
		a.hue = baseHue
	}

	drift := 12 * (1 - moodLock) * math.Sin(f.Signal.Time*0.3)
	a.hue = math.Mod(viz.Approach(a.hue, baseHue+drift, dt, 1.5)+360, 360)

	ellipse := Ellipse{
		CX: f.Width / 2,
		CY: f.Height / 2,
		RX: f.Width * (0.15 + 0.3*a.width),
		RY: f.Height * (0.35 - 0.1*a.width),
	}

	a.particles.Update(func(p *Particle) bool {
		p.Age += dt
		p.X += p.VX * dt
		p.Y += p.VY * dt

		return p.Age < p.Life
	})

	a.spawn += float64(viz.Density(f.Global.Complexity, int(auraSpawnRate))) * level * (0.2 + shine) * dt
	if f.Signal.Transients {
		a.spawn += float64(viz.Density(f.Global.Complexity, auraBurst))
	}

	a.spawn = math.Min(a.spawn, AuraMaxParticles)
	life := AuraParticleLife(intensity)

	for a.spawn >= 1 {
		a.spawn--
		a.particles.Push(a.newParticle(ellipse, life))
	}

	limit := viz.Density(f.Global.Complexity, AuraMaxParticles)

	return viz.Data{
		"particles": a.particles.Last(limit),
		"ellipse":   ellipse,
		"hue":       a.hue,
		"glow":      a.glow,
		"mood":      mood,
	}, nil
}

func (a *Aura) newParticle(e Ellipse, life float64) Particle {
	rng := a.cfg.Rand
	theta := rng.Float64() * 2 * math.Pi
	r := 0.6 + 0.4*rng.Float64()
	speed := 10 + 30*rng.Float64()

	return Particle{
		X:    e.CX + e.RX*r*math.Cos(theta),
		Y:    e.CY + e.RY*r*math.Sin(theta),
		VX:   speed * math.Cos(theta),
		VY:   speed*math.Sin(theta) - 8,
		Size: auraParticleSz * (0.5 + rng.Float64()),
		Life: life * (0.7 + 0.6*rng.Float64()),
		Hue:  a.hue + 30*(rng.Float64()-0.5),
	}
}

// Particles reports the live sparkle count.
func (a *Aura) Particles() int {
	return a.particles.Len()
}
