package postproc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/layerbg/internal/raster"
)

// Smoother writes a smoothed copy of src into dst inside roi. guide is the
// current frame and may be ignored.
type Smoother interface {
	Smooth(src, dst *raster.Float, guide *raster.Bytes, roi raster.Rect)
}

// GaussianKernel returns the normalised 1-D kernel of size 2*halfWidth+1.
func GaussianKernel(halfWidth int, sigma float64) ([]float32, error) {
	if halfWidth < 0 {
		return nil, fmt.Errorf("kernel half width must be non-negative, got %d", halfWidth)
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("kernel sigma must be positive, got %g", sigma)
	}
	k := make([]float64, 2*halfWidth+1)
	for i := range k {
		x := float64(i - halfWidth)
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)

	out := make([]float32, len(k))
	for i, v := range k {
		out[i] = float32(v)
	}
	return out, nil
}

// Gaussian is a separable blur with replicated borders.
type Gaussian struct {
	kernel []float32
	tmp    *raster.Float
}

// NewGaussian builds a Gaussian smoother. A zero half width copies the input.
func NewGaussian(halfWidth int, sigma float64) (*Gaussian, error) {
	k, err := GaussianKernel(halfWidth, sigma)
	if err != nil {
		return nil, err
	}
	return &Gaussian{kernel: k}, nil
}

// HalfWidth returns the kernel half width.
func (g *Gaussian) HalfWidth() int { return len(g.kernel) / 2 }

// Smooth blurs src into dst inside roi. Pixels outside roi are read but
// never written, so the horizontal pass covers roi grown vertically by the
// kernel half width.
func (g *Gaussian) Smooth(src, dst *raster.Float, _ *raster.Bytes, roi raster.Rect) {
	if roi.Empty() {
		return
	}
	w, h := src.Width, src.Height
	if g.tmp == nil || g.tmp.Width != w || g.tmp.Height != h {
		g.tmp = raster.NewFloat(w, h)
	}
	hw := len(g.kernel) / 2
	y0, y1 := clamp(roi.Y0-hw, 0, h), clamp(roi.Y1+hw, 0, h)

	for row := y0; row < y1; row++ {
		line := src.Pix[row*w : (row+1)*w]
		out := g.tmp.Pix[row*w : (row+1)*w]
		for col := roi.X0; col < roi.X1; col++ {
			var acc float32
			for k, kv := range g.kernel {
				acc += kv * line[clamp(col+k-hw, 0, w-1)]
			}
			out[col] = acc
		}
	}
	for row := roi.Y0; row < roi.Y1; row++ {
		for col := roi.X0; col < roi.X1; col++ {
			var acc float32
			for k, kv := range g.kernel {
				acc += kv * g.tmp.Pix[clamp(row+k-hw, y0, y1-1)*w+col]
			}
			dst.Pix[row*w+col] = acc
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
