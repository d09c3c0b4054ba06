package dynamics

import (
	"fmt"
	"math"
)

const (
	defaultCompressorThresholdDB = -20.0
	defaultCompressorRatio       = 4.0
	defaultCompressorKneeDB      = 6.0
	defaultCompressorAttackMs    = 10.0
	defaultCompressorReleaseMs   = 100.0

	// Parameter ranges accepted by the setters.
	MinRatio     = 1.0
	MaxRatio     = 100.0
	MinAttackMs  = 0.1
	MaxAttackMs  = 1000.0
	MinReleaseMs = 1.0
	MaxReleaseMs = 5000.0
	MinKneeDB    = 0.0
	MaxKneeDB    = 40.0

	// log2Of10Div20 converts dB to log2: log2(10) / 20.
	log2Of10Div20 = 0.166096404744
)

// Compressor is a soft-knee compressor with a peak envelope follower.
//
// It is single-threaded. Parameter changes must not race with processing.
type Compressor struct {
	thresholdDB  float64
	ratio        float64
	kneeDB       float64
	attackMs     float64
	releaseMs    float64
	makeupGainDB float64
	autoMakeup   bool

	sampleRate float64

	peakLevel float64
	lastGain  float64

	attackCoeff      float64
	releaseCoeff     float64
	thresholdLog2    float64
	kneeWidthLog2    float64
	invKneeWidthLog2 float64
	makeupGainLin    float64
}

// NewCompressor creates a compressor with the defaults −20 dB, 4:1, 6 dB
// knee, 10 ms attack, 100 ms release and automatic makeup gain.
func NewCompressor(sampleRate float64) (*Compressor, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("compressor sample rate must be positive and finite: %f", sampleRate)
	}

	c := &Compressor{
		thresholdDB: defaultCompressorThresholdDB,
		ratio:       defaultCompressorRatio,
		kneeDB:      defaultCompressorKneeDB,
		attackMs:    defaultCompressorAttackMs,
		releaseMs:   defaultCompressorReleaseMs,
		autoMakeup:  true,
		sampleRate:  sampleRate,
		lastGain:    1,
	}

	c.updateCoefficients()

	return c, nil
}

// SetThreshold sets the threshold in dB.
func (c *Compressor) SetThreshold(dB float64) error {
	if math.IsNaN(dB) || math.IsInf(dB, 0) {
		return fmt.Errorf("compressor threshold must be finite: %f", dB)
	}

	c.thresholdDB = dB
	c.updateCoefficients()

	return nil
}

// SetRatio sets the compression ratio in [MinRatio, MaxRatio].
func (c *Compressor) SetRatio(ratio float64) error {
	if ratio < MinRatio || ratio > MaxRatio || math.IsNaN(ratio) {
		return fmt.Errorf("compressor ratio must be in [%f, %f]: %f", MinRatio, MaxRatio, ratio)
	}

	c.ratio = ratio
	c.updateCoefficients()

	return nil
}

// SetKnee sets the soft-knee width in dB; 0 is a hard knee.
func (c *Compressor) SetKnee(kneeDB float64) error {
	if kneeDB < MinKneeDB || kneeDB > MaxKneeDB || math.IsNaN(kneeDB) {
		return fmt.Errorf("compressor knee must be in [%f, %f]: %f", MinKneeDB, MaxKneeDB, kneeDB)
	}

	c.kneeDB = kneeDB
	c.updateCoefficients()

	return nil
}

// SetAttack sets the attack time in milliseconds.
func (c *Compressor) SetAttack(ms float64) error {
	if ms < MinAttackMs || ms > MaxAttackMs || math.IsNaN(ms) {
		return fmt.Errorf("compressor attack must be in [%f, %f]: %f", MinAttackMs, MaxAttackMs, ms)
	}

	c.attackMs = ms
	c.updateTimeConstants()

	return nil
}

// SetRelease sets the release time in milliseconds.
func (c *Compressor) SetRelease(ms float64) error {
	if ms < MinReleaseMs || ms > MaxReleaseMs || math.IsNaN(ms) {
		return fmt.Errorf("compressor release must be in [%f, %f]: %f", MinReleaseMs, MaxReleaseMs, ms)
	}

	c.releaseMs = ms
	c.updateTimeConstants()

	return nil
}

// SetMakeupGain sets a manual makeup gain in dB and disables auto makeup.
func (c *Compressor) SetMakeupGain(dB float64) error {
	if math.IsNaN(dB) || math.IsInf(dB, 0) {
		return fmt.Errorf("compressor makeup gain must be finite: %f", dB)
	}

	c.makeupGainDB = dB
	c.autoMakeup = false
	c.updateCoefficients()

	return nil
}

// Threshold returns the threshold in dB.
func (c *Compressor) Threshold() float64 { return c.thresholdDB }

// Ratio returns the compression ratio.
func (c *Compressor) Ratio() float64 { return c.ratio }

// Knee returns the knee width in dB.
func (c *Compressor) Knee() float64 { return c.kneeDB }

// Attack returns the attack time in milliseconds.
func (c *Compressor) Attack() float64 { return c.attackMs }

// Release returns the release time in milliseconds.
func (c *Compressor) Release() float64 { return c.releaseMs }

// MakeupGain returns the makeup gain in dB.
func (c *Compressor) MakeupGain() float64 { return c.makeupGainDB }

// Gain advances the envelope follower by one sample with the detector level
// and returns the gain to apply, makeup excluded.
func (c *Compressor) Gain(level float64) float64 {
	level = math.Abs(level)

	if level > c.peakLevel {
		c.peakLevel += (level - c.peakLevel) * c.attackCoeff
	} else {
		c.peakLevel = level + (c.peakLevel-level)*c.releaseCoeff
	}

	c.lastGain = c.calculateGain(c.peakLevel)

	return c.lastGain
}

// ProcessSample compresses one sample, makeup included.
func (c *Compressor) ProcessSample(input float64) float64 {
	return input * c.Gain(input) * c.makeupGainLin
}

// LastGain returns the gain computed by the most recent Gain call.
func (c *Compressor) LastGain() float64 {
	return c.lastGain
}

// Reset clears the envelope follower.
func (c *Compressor) Reset() {
	c.peakLevel = 0
	c.lastGain = 1
}

func (c *Compressor) updateCoefficients() {
	c.thresholdLog2 = c.thresholdDB * log2Of10Div20
	c.kneeWidthLog2 = c.kneeDB * log2Of10Div20

	if c.kneeDB > 0 {
		c.invKneeWidthLog2 = 1.0 / c.kneeWidthLog2
	} else {
		c.invKneeWidthLog2 = 0
	}

	if c.autoMakeup {
		// compensate the reduction at threshold
		c.makeupGainDB = -c.thresholdDB * (1.0 - 1.0/c.ratio)
	}

	c.makeupGainLin = mathPower10(c.makeupGainDB / 20.0)

	c.updateTimeConstants()
}

func (c *Compressor) updateTimeConstants() {
	c.attackCoeff = 1.0 - math.Exp(-math.Ln2/(c.attackMs*0.001*c.sampleRate))
	c.releaseCoeff = math.Exp(-math.Ln2 / (c.releaseMs * 0.001 * c.sampleRate))
}

// calculateGain applies the static curve in the log2 domain, with a
// quadratic knee of width k around the threshold.
func (c *Compressor) calculateGain(peakLevel float64) float64 {
	if peakLevel <= 0 {
		return 1.0
	}

	overshoot := mathLog2(peakLevel) - c.thresholdLog2

	if c.kneeDB <= 0 {
		if overshoot <= 0 {
			return 1.0
		}

		return mathPower2(-overshoot * (1.0 - 1.0/c.ratio))
	}

	halfWidth := c.kneeWidthLog2 * 0.5

	var effectiveOvershoot float64

	switch {
	case overshoot < -halfWidth:
		return 1.0
	case overshoot > halfWidth:
		effectiveOvershoot = overshoot
	default:
		// (overshoot + w/2)^2 / (2w)
		scratch := overshoot + halfWidth
		effectiveOvershoot = scratch * scratch * 0.5 * c.invKneeWidthLog2
	}

	return mathPower2(-effectiveOvershoot * (1.0 - 1.0/c.ratio))
}
