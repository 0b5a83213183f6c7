package postproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/layerbg/internal/raster"
)

func TestGaussianKernel(t *testing.T) {
	k, err := GaussianKernel(6, 2.5)
	require.NoError(t, err)
	require.Len(t, k, 13)

	var sum float32
	for _, v := range k {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Equal(t, k[0], k[12])
	for i := 1; i <= 6; i++ {
		assert.Greater(t, k[i], k[i-1])
	}

	_, err = GaussianKernel(-1, 2.5)
	assert.Error(t, err)
	_, err = GaussianKernel(3, 0)
	assert.Error(t, err)
}

func TestGaussianPreservesConstant(t *testing.T) {
	g, err := NewGaussian(6, 2.5)
	require.NoError(t, err)

	src := raster.NewFloat(20, 15)
	src.Fill(0.5)
	dst := raster.NewFloat(20, 15)
	g.Smooth(src, dst, nil, src.Bounds())

	for i, v := range dst.Pix {
		require.InDelta(t, 0.5, v, 1e-5, "pixel %d", i)
	}
}

func TestGaussianSpreadsImpulse(t *testing.T) {
	g, err := NewGaussian(2, 1)
	require.NoError(t, err)

	src := raster.NewFloat(11, 11)
	src.Set(5, 5, 1)
	dst := raster.NewFloat(11, 11)
	g.Smooth(src, dst, nil, src.Bounds())

	centre := dst.At(5, 5)
	assert.Less(t, centre, float32(1))
	assert.Greater(t, centre, dst.At(5, 6))
	assert.InDelta(t, dst.At(5, 6), dst.At(6, 5), 1e-6)
	assert.Zero(t, dst.At(0, 0))

	var sum float32
	for _, v := range dst.Pix {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestGaussianRespectsROI(t *testing.T) {
	g, err := NewGaussian(1, 1)
	require.NoError(t, err)

	src := raster.NewFloat(8, 8)
	src.Fill(1)
	dst := raster.NewFloat(8, 8)
	dst.Fill(-1)
	roi := raster.R(2, 2, 5, 5)
	g.Smooth(src, dst, nil, roi)

	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			if roi.Contains(col, row) {
				assert.InDelta(t, 1, dst.At(row, col), 1e-5)
			} else {
				assert.Equal(t, float32(-1), dst.At(row, col))
			}
		}
	}
}

func TestThreshold(t *testing.T) {
	smoothed := raster.NewFloat(3, 1)
	copy(smoothed.Pix, []float32{0.1, 0.2, 0.3})
	mask := raster.NewBytes(3, 1, 1)
	Threshold(smoothed, 0.2, mask, smoothed.Bounds())
	assert.Equal(t, []uint8{0, 0, 255}, mask.Pix)
}

func TestProbabilityImage(t *testing.T) {
	smoothed := raster.NewFloat(4, 1)
	copy(smoothed.Pix, []float32{-0.5, 0, 0.5, 2})
	dst := raster.NewBytes(4, 1, 1)
	ProbabilityImage(smoothed, dst)
	assert.Equal(t, []uint8{0, 0, 128, 255}, dst.Pix)
}

func TestNewSmootherFallsBack(t *testing.T) {
	s, edge, err := NewSmoother(3, 1.5, false)
	require.NoError(t, err)
	assert.False(t, edge)
	assert.IsType(t, &Gaussian{}, s)

	// With edge-aware requested the constructor never fails; without
	// OpenCV it degrades to the Gaussian pass.
	s, _, err = NewSmoother(3, 1.5, true)
	require.NoError(t, err)
	require.NotNil(t, s)

	src := raster.NewFloat(9, 9)
	src.Fill(0.25)
	dst := raster.NewFloat(9, 9)
	s.Smooth(src, dst, raster.NewBytes(9, 9, 3), src.Bounds())
	assert.InDelta(t, 0.25, dst.At(4, 4), 1e-3)

	_, _, err = NewSmoother(3, -1, false)
	assert.Error(t, err)
}
