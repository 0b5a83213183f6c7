package lbp

import (
	"errors"
	"image"
	"testing"

	"github.com/banshee-data/layerbg/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceStore struct {
	length int
	data   []float32
}

func newSliceStore(pixels, length int) *sliceStore {
	return &sliceStore{length: length, data: make([]float32, pixels*length)}
}

func (s *sliceStore) Descriptor(pixel int) []float32 {
	return s.data[pixel*s.length : (pixel+1)*s.length]
}

func TestNewExtractorOffsets(t *testing.T) {
	src := raster.NewFloat(8, 8)
	e, err := NewExtractor([]*raster.Float{src}, []Level{{Radius: 1, Neighbors: 4}}, 0)
	require.NoError(t, err)

	assert.Equal(t, []image.Point{{X: 1, Y: 0}, {X: 0, Y: -1}, {X: -1, Y: 0}, {X: 0, Y: 1}}, e.Offsets(0))
	assert.Equal(t, 4, e.DescriptorLength())
}

func TestNewExtractorDescriptorLength(t *testing.T) {
	planes := SourceColorGradient.NewPlanes(6, 6, 3)
	e, err := NewExtractor(planes, []Level{{Radius: 2, Neighbors: 6}, {Radius: 1, Neighbors: 4}}, 3)
	require.NoError(t, err)
	assert.Equal(t, (6+4)*4, e.DescriptorLength())
}

func TestNewExtractorRejectsMultiChannel(t *testing.T) {
	src := raster.NewFloatChannels(4, 4, 3)
	_, err := NewExtractor([]*raster.Float{src}, []Level{{Radius: 1, Neighbors: 4}}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMultiChannelSource))
}

func TestNewExtractorRejectsBadLevels(t *testing.T) {
	src := raster.NewFloat(4, 4)
	tests := []struct {
		name   string
		levels []Level
	}{
		{"none", nil},
		{"zero neighbours", []Level{{Radius: 1, Neighbors: 0}}},
		{"zero radius", []Level{{Radius: 0, Neighbors: 4}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewExtractor([]*raster.Float{src}, tc.levels, 0)
			assert.Error(t, err)
		})
	}

	_, err := NewExtractor([]*raster.Float{src, raster.NewFloat(5, 4)}, []Level{{Radius: 1, Neighbors: 4}}, 0)
	assert.Error(t, err, "mismatched source sizes")
}

func TestComputeUniformPlane(t *testing.T) {
	src := raster.NewFloat(5, 5)
	src.Fill(128)
	e, err := NewExtractor([]*raster.Float{src}, []Level{{Radius: 1, Neighbors: 4}}, 3)
	require.NoError(t, err)

	store := newSliceStore(25, e.DescriptorLength())
	e.Compute(store, src.Bounds())

	// Interior: every neighbour equals the centre, margin makes the bit 1.
	assert.Equal(t, []float32{1, 1, 1, 1}, store.Descriptor(2*5+2))
	// Top-left corner: the up and left neighbours are zero padding.
	assert.Equal(t, []float32{1, 0, 0, 1}, store.Descriptor(0))
}

func TestComputeEdge(t *testing.T) {
	src := raster.NewFloat(4, 1)
	copy(src.Pix, []float32{10, 10, 200, 200})
	e, err := NewExtractor([]*raster.Float{src}, []Level{{Radius: 1, Neighbors: 2}}, 0)
	require.NoError(t, err)

	store := newSliceStore(4, e.DescriptorLength())
	e.Compute(store, src.Bounds())

	// Offsets are (+1,0) and (-1,0).
	assert.Equal(t, []float32{1, 0}, store.Descriptor(1), "brighter right neighbour")
	assert.Equal(t, []float32{0, 0}, store.Descriptor(2), "equal right, darker left")
}

func TestComputeRespectsROI(t *testing.T) {
	src := raster.NewFloat(4, 4)
	src.Fill(50)
	e, err := NewExtractor([]*raster.Float{src}, []Level{{Radius: 1, Neighbors: 4}}, 1)
	require.NoError(t, err)

	store := newSliceStore(16, e.DescriptorLength())
	for i := range store.data {
		store.data[i] = -1
	}
	e.Compute(store, raster.R(1, 1, 3, 3))

	assert.Equal(t, []float32{1, 1, 1, 1}, store.Descriptor(1*4+1))
	assert.Equal(t, []float32{-1, -1, -1, -1}, store.Descriptor(0), "outside roi untouched")

	// Zero-area roi is a no-op.
	e.Compute(store, raster.R(2, 2, 2, 3))
	assert.Equal(t, []float32{-1, -1, -1, -1}, store.Descriptor(0))
}

func TestSourceModes(t *testing.T) {
	frame := raster.NewBytes(3, 3, 3)
	frame.Fill(100, 150, 200)

	for _, mode := range []SourceMode{SourceGray, SourceGrayGradient, SourceColor, SourceColorGradient} {
		t.Run(mode.String(), func(t *testing.T) {
			planes := mode.NewPlanes(3, 3, 3)
			mode.BuildPlanes(frame, planes)
			assert.Len(t, planes, mode.PlaneCount(3))
			parsed, err := ParseSourceMode(mode.String())
			require.NoError(t, err)
			assert.Equal(t, mode, parsed)
		})
	}

	planes := SourceColor.NewPlanes(3, 3, 3)
	SourceColor.BuildPlanes(frame, planes)
	assert.Equal(t, float32(150), planes[1].At(1, 1))

	planes = SourceGrayGradient.NewPlanes(3, 3, 3)
	SourceGrayGradient.BuildPlanes(frame, planes)
	assert.InDelta(t, 0.299*100+0.587*150+0.114*200, planes[0].At(0, 0), 1e-3)
	assert.Equal(t, float32(0), planes[1].At(1, 1), "uniform frame has no gradient")

	_, err := ParseSourceMode("bogus")
	assert.Error(t, err)
}

func TestGradientMagnitude(t *testing.T) {
	step := raster.NewFloat(3, 3)
	ramp := raster.NewFloat(3, 3)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if c > 0 {
				step.Set(r, c, 100)
			}
			ramp.Set(r, c, float32(3*c+4*r))
		}
	}

	dst := raster.NewFloat(3, 3)
	gradient(step, dst)
	assert.Equal(t, float32(100), dst.At(1, 0))
	assert.Equal(t, float32(100), dst.At(1, 1))
	assert.Equal(t, float32(0), dst.At(1, 2))

	// Sobel of 3c+4r is (24, 32) in the interior.
	gradient(ramp, dst)
	assert.Equal(t, float32(10), dst.At(1, 1))

	// In place, and capped at 255: a diagonal edge gives (750, 750).
	step.Fill(0)
	for r := 0; r < 3; r++ {
		for c := 2 - r; c < 3; c++ {
			step.Set(r, c, 250)
		}
	}
	gradient(step, step)
	assert.Equal(t, float32(255), step.At(1, 1))
}
