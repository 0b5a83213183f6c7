package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func gray(v float32) []float32 { return []float32{v, v, v} }

func modeOf(mean []float32, texture []float32) Mode {
	return Mode{Mean: mean, Max: append([]float32(nil), mean...), Min: append([]float32(nil), mean...), Texture: texture}
}

func TestTexture(t *testing.T) {
	stored := []float32{1, 1, 0, 0.6}
	assert.Equal(t, float32(0), Texture([]float32{1, 1, 0, 1}, stored, 0.5))
	assert.Equal(t, float32(0.5), Texture([]float32{0, 1, 1, 1}, stored, 0.5))
	assert.Equal(t, float32(0), Texture(nil, nil, 0.5))
}

func TestColorRange(t *testing.T) {
	p := DefaultParams()
	m := modeOf(gray(128), nil)

	assert.True(t, InRange(gray(128), m, p))
	// 128*0.6-5 = 71.8 lower bound, 128*1.2+5 = 158.6 upper bound.
	assert.True(t, InRange(gray(72), m, p))
	assert.False(t, InRange(gray(71), m, p))
	assert.False(t, InRange(gray(159), m, p))
	assert.False(t, InRange([]float32{128, 128, 230}, m, p), "one channel out of range")

	assert.Equal(t, float32(1), Color(gray(230), m, p))
	assert.Equal(t, float32(0), Color(gray(100), m, p), "collinear shadow is background")
}

func TestNoisedAngle(t *testing.T) {
	assert.Equal(t, float32(0), NoisedAngle(gray(128), gray(128), 6, 0.01))
	assert.Equal(t, float32(1), NoisedAngle(gray(0), gray(128), 6, 0.01), "zero-norm mode")
	assert.Equal(t, float32(1), NoisedAngle(gray(128), gray(0), 6, 0.01), "zero-norm observation")

	d := NoisedAngle([]float32{200, 50, 50}, []float32{50, 50, 200}, 6, 0.01)
	assert.Greater(t, d, float32(0.9))
	assert.LessOrEqual(t, d, float32(1))
	assert.False(t, math.IsNaN(float64(d)))

	// A small hue shift inside the noise floor maps to zero.
	assert.Equal(t, float32(0), NoisedAngle([]float32{10, 10, 10}, []float32{11, 10, 10}, 6, 0.01))
}

func TestFused(t *testing.T) {
	p := DefaultParams()
	tex := []float32{1, 1, 1, 1}
	m := modeOf(gray(128), tex)

	assert.Equal(t, float32(0), Fused(gray(128), tex, m, p))
	assert.Equal(t, float32(0.5), Fused(gray(230), tex, m, p))
	assert.Equal(t, float32(1), Fused(gray(230), []float32{0, 0, 0, 0}, m, p))

	p.TextureWeight, p.ColorWeight = 3, 1
	p = p.Normalized()
	assert.InDelta(t, 0.75, p.TextureWeight, 1e-6)
	assert.InDelta(t, 0.25, Fused(gray(230), tex, m, p), 1e-6)
}

func TestNormalizedZeroWeights(t *testing.T) {
	p := Params{}.Normalized()
	assert.Equal(t, float32(0.5), p.TextureWeight)
	assert.Equal(t, float32(0.5), p.ColorWeight)
}
