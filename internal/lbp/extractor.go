// Package lbp computes per-pixel local binary pattern descriptors from one
// or more single-channel source planes at one or more neighbour radii.
package lbp

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/banshee-data/layerbg/internal/raster"
)

// ErrMultiChannelSource is returned when a source plane has more than one channel.
var ErrMultiChannelSource = errors.New("lbp source plane must be single-channel")

// Level is one ring of neighbours sampled around each pixel.
type Level struct {
	Radius    float64
	Neighbors int
}

// DescriptorStore receives the current-frame descriptor of each pixel.
// Descriptor must return a slice of length DescriptorLength for pixel index
// row*width+col.
type DescriptorStore interface {
	Descriptor(pixel int) []float32
}

// Extractor holds the neighbour offset tables for a fixed set of source
// planes. The planes are read on every Compute call, so callers refresh
// their contents in place between frames.
type Extractor struct {
	sources []*raster.Float
	levels  []Level
	offsets [][]image.Point
	margin  float32
	length  int
	width   int
	height  int
	shifted *raster.Float
}

// NewExtractor precomputes the neighbour offsets of every level:
// angle = i/n*2π, dx = round(r*cos(angle)), dy = round(-r*sin(angle)).
func NewExtractor(sources []*raster.Float, levels []Level, margin float32) (*Extractor, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("lbp extractor needs at least one source plane")
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("lbp extractor needs at least one level")
	}
	w, h := sources[0].Width, sources[0].Height
	for i, s := range sources {
		if s.Channels != 1 {
			return nil, fmt.Errorf("source %d has %d channels: %w", i, s.Channels, ErrMultiChannelSource)
		}
		if s.Width != w || s.Height != h {
			return nil, fmt.Errorf("source %d is %dx%d, want %dx%d", i, s.Width, s.Height, w, h)
		}
	}

	e := &Extractor{
		sources: sources,
		levels:  append([]Level(nil), levels...),
		offsets: make([][]image.Point, len(levels)),
		margin:  margin,
		width:   w,
		height:  h,
		shifted: raster.NewFloat(w, h),
	}
	perSource := 0
	for li, lv := range levels {
		if lv.Neighbors <= 0 {
			return nil, fmt.Errorf("level %d: neighbour count must be positive, got %d", li, lv.Neighbors)
		}
		if lv.Radius <= 0 {
			return nil, fmt.Errorf("level %d: radius must be positive, got %g", li, lv.Radius)
		}
		// Offsets are rounded in float64; at radius 1 with six neighbours
		// float32 Cos(π/3) falls just below 0.5 and rounds to 0.
		pts := make([]image.Point, lv.Neighbors)
		for i := range pts {
			angle := float64(i) / float64(lv.Neighbors) * 2 * math.Pi
			pts[i] = image.Point{
				X: int(math.Round(lv.Radius * math.Cos(angle))),
				Y: int(math.Round(-lv.Radius * math.Sin(angle))),
			}
		}
		e.offsets[li] = pts
		perSource += lv.Neighbors
	}
	e.length = perSource * len(sources)
	return e, nil
}

// DescriptorLength is (Σ neighbour counts) × number of source planes.
func (e *Extractor) DescriptorLength() int { return e.length }

// Offsets returns a copy of the neighbour offsets of one level.
func (e *Extractor) Offsets(level int) []image.Point {
	return append([]image.Point(nil), e.offsets[level]...)
}

// Levels returns the sampling levels.
func (e *Extractor) Levels() []Level { return append([]Level(nil), e.levels...) }

// Margin returns the robustness margin added to every neighbour comparison.
func (e *Extractor) Margin() float32 { return e.margin }

// Compute refreshes the descriptor of every pixel inside roi. For each
// source plane and neighbour offset it builds a zero-padded shifted copy of
// the plane and sets one element to 1 when neighbour - centre + margin > 0.
func (e *Extractor) Compute(dst DescriptorStore, roi raster.Rect) {
	if roi.Empty() {
		return
	}
	elem := 0
	for _, src := range e.sources {
		for li := range e.levels {
			for _, off := range e.offsets[li] {
				e.shift(src, off, roi)
				for row := roi.Y0; row < roi.Y1; row++ {
					base := row * e.width
					for col := roi.X0; col < roi.X1; col++ {
						i := base + col
						v := float32(0)
						if e.shifted.Pix[i]-src.Pix[i]+e.margin > 0 {
							v = 1
						}
						dst.Descriptor(i)[elem] = v
					}
				}
				elem++
			}
		}
	}
}

// shift fills e.shifted inside roi with src displaced by off, zero outside
// the source bounds.
func (e *Extractor) shift(src *raster.Float, off image.Point, roi raster.Rect) {
	for row := roi.Y0; row < roi.Y1; row++ {
		sr := row + off.Y
		base := row * e.width
		for col := roi.X0; col < roi.X1; col++ {
			sc := col + off.X
			if sr < 0 || sr >= e.height || sc < 0 || sc >= e.width {
				e.shifted.Pix[base+col] = 0
				continue
			}
			e.shifted.Pix[base+col] = src.Pix[sr*e.width+sc]
		}
	}
}
