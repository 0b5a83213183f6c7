// Package distance fuses a texture-descriptor distance and a colour
// range/angle distance into one scalar in [0, 1].
package distance

import (
	"github.com/chewxy/math32"
)

// Params configures the fused metric. TextureWeight and ColorWeight are
// expected to sum to 1 (see Normalized).
type Params struct {
	TextureWeight float32
	ColorWeight   float32
	// TextureTolerance is the per-element absolute difference above which a
	// descriptor element counts as mismatched.
	TextureTolerance float32
	ShadowRate       float32
	HighlightRate    float32
	// RangeMargin widens the allowed colour range on both sides.
	RangeMargin float32
	// NoiseOffset is the colour noise magnitude used to derive the
	// noise-floor angle of a mode.
	NoiseOffset    float32
	MinNoisedAngle float32
}

// DefaultParams returns the metric defaults.
func DefaultParams() Params {
	return Params{
		TextureWeight:    0.5,
		ColorWeight:      0.5,
		TextureTolerance: 0.5,
		ShadowRate:       0.6,
		HighlightRate:    1.2,
		RangeMargin:      5,
		NoiseOffset:      6,
		MinNoisedAngle:   0.01,
	}
}

// Normalized returns p with the fusion weights rescaled to sum to 1. Zero
// weights fall back to 0.5/0.5.
func (p Params) Normalized() Params {
	sum := p.TextureWeight + p.ColorWeight
	if sum <= 0 {
		p.TextureWeight, p.ColorWeight = 0.5, 0.5
		return p
	}
	p.TextureWeight /= sum
	p.ColorWeight /= sum
	return p
}

// Mode is the stored appearance a pixel observation is compared with.
type Mode struct {
	Mean    []float32
	Max     []float32
	Min     []float32
	Texture []float32
}

// Fused returns ColorWeight*Color + TextureWeight*Texture.
func Fused(color, texture []float32, m Mode, p Params) float32 {
	return p.ColorWeight*Color(color, m, p) + p.TextureWeight*Texture(texture, m.Texture, p.TextureTolerance)
}

// Texture returns the fraction of descriptor elements whose absolute
// difference exceeds tol.
func Texture(observed, stored []float32, tol float32) float32 {
	if len(stored) == 0 {
		return 0
	}
	mismatched := 0
	for i, v := range stored {
		if math32.Abs(observed[i]-v) > tol {
			mismatched++
		}
	}
	return float32(mismatched) / float32(len(stored))
}

// InRange reports whether every channel of color lies inside
// [min*ShadowRate - RangeMargin, max*HighlightRate + RangeMargin].
func InRange(color []float32, m Mode, p Params) bool {
	for i, c := range color {
		if c < m.Min[i]*p.ShadowRate-p.RangeMargin || c > m.Max[i]*p.HighlightRate+p.RangeMargin {
			return false
		}
	}
	return true
}

// Color returns 1 when the observation is outside the mode's allowed range,
// otherwise the noised angle between the mode mean and the observation.
func Color(color []float32, m Mode, p Params) float32 {
	if !InRange(color, m, p) {
		return 1
	}
	return NoisedAngle(m.Mean, color, p.NoiseOffset, p.MinNoisedAngle)
}

// NoisedAngle maps the angle between mean and observed, less the mode's
// noise-floor angle, through 1 - exp(-100·angle²). Zero-norm vectors give 1.
func NoisedAngle(mean, observed []float32, offset, minAngle float32) float32 {
	var dot, nm, no float32
	for i := range mean {
		dot += mean[i] * observed[i]
		nm += mean[i] * mean[i]
		no += observed[i] * observed[i]
	}
	if nm <= 0 || no <= 0 {
		return 1
	}
	nm = math32.Sqrt(nm)
	no = math32.Sqrt(no)

	cos := dot / (nm * no)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	angle := math32.Acos(cos)

	ratio := offset / nm
	if ratio > 1 {
		ratio = 1
	}
	floor := math32.Asin(ratio)
	if floor < minAngle {
		floor = minAngle
	}

	angle -= floor
	if angle < 0 {
		angle = 0
	}
	return 1 - math32.Exp(-100*angle*angle)
}
