package postproc

import (
	"github.com/banshee-data/layerbg/internal/raster"
)

// Threshold writes 255 into mask where smoothed exceeds bgThreshold and 0
// elsewhere, inside roi.
func Threshold(smoothed *raster.Float, bgThreshold float32, mask *raster.Bytes, roi raster.Rect) {
	w := smoothed.Width
	for row := roi.Y0; row < roi.Y1; row++ {
		for col := roi.X0; col < roi.X1; col++ {
			i := row*w + col
			if smoothed.Pix[i] > bgThreshold {
				mask.Pix[i] = 255
			} else {
				mask.Pix[i] = 0
			}
		}
	}
}

// SmoothAndThreshold smooths raw into smoothed and thresholds it into mask.
func SmoothAndThreshold(s Smoother, raw, smoothed *raster.Float, guide *raster.Bytes, bgThreshold float32, mask *raster.Bytes, roi raster.Rect) {
	s.Smooth(raw, smoothed, guide, roi)
	Threshold(smoothed, bgThreshold, mask, roi)
}

// ProbabilityImage rescales smoothed distances in [0, 1] linearly onto
// [0, 255]. dst must be single-channel and the same size.
func ProbabilityImage(smoothed *raster.Float, dst *raster.Bytes) {
	for i, v := range smoothed.Pix {
		switch {
		case v <= 0:
			dst.Pix[i] = 0
		case v >= 1:
			dst.Pix[i] = 255
		default:
			dst.Pix[i] = uint8(v*255 + 0.5)
		}
	}
}
