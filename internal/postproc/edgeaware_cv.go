//go:build withcv

package postproc

import (
	"gocv.io/x/gocv"

	"github.com/banshee-data/layerbg/internal/raster"
)

// EdgeAware follows the Gaussian pass with an OpenCV bilateral filter so that
// the smoothed distance does not bleed across strong edges.
type EdgeAware struct {
	gauss      *Gaussian
	diameter   int
	sigmaColor float64
	sigmaSpace float64
}

// NewEdgeAware wraps g with a bilateral pass of the same spatial extent.
func NewEdgeAware(g *Gaussian, sigma float64) (Smoother, error) {
	return &EdgeAware{
		gauss:      g,
		diameter:   2*g.HalfWidth() + 1,
		sigmaColor: 0.1,
		sigmaSpace: sigma,
	}, nil
}

// Smooth runs the Gaussian pass, then the bilateral filter over roi.
func (e *EdgeAware) Smooth(src, dst *raster.Float, guide *raster.Bytes, roi raster.Rect) {
	e.gauss.Smooth(src, dst, guide, roi)
	if roi.Empty() {
		return
	}

	in := gocv.NewMatWithSize(roi.Dy(), roi.Dx(), gocv.MatTypeCV32FC1)
	defer in.Close()
	out := gocv.NewMat()
	defer out.Close()

	for row := roi.Y0; row < roi.Y1; row++ {
		for col := roi.X0; col < roi.X1; col++ {
			in.SetFloatAt(row-roi.Y0, col-roi.X0, dst.Pix[row*dst.Width+col])
		}
	}
	gocv.BilateralFilter(in, &out, e.diameter, e.sigmaColor, e.sigmaSpace)
	if out.Empty() {
		return
	}
	for row := roi.Y0; row < roi.Y1; row++ {
		for col := roi.X0; col < roi.X1; col++ {
			dst.Pix[row*dst.Width+col] = out.GetFloatAt(row-roi.Y0, col-roi.X0)
		}
	}
}
