package lbp

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/banshee-data/layerbg/internal/raster"
)

// SourceMode selects which derived single-channel planes feed the texture
// descriptor. It is chosen once when the model is built.
type SourceMode int

const (
	// SourceGray uses the luma plane only.
	SourceGray SourceMode = iota
	// SourceGrayGradient uses luma plus its Sobel gradient magnitude.
	SourceGrayGradient
	// SourceColor uses each colour plane of the frame.
	SourceColor
	// SourceColorGradient uses each colour plane plus the luma gradient.
	SourceColorGradient
)

var sourceModeNames = map[SourceMode]string{
	SourceGray:          "gray",
	SourceGrayGradient:  "gray_gradient",
	SourceColor:         "color",
	SourceColorGradient: "color_gradient",
}

func (m SourceMode) String() string {
	if s, ok := sourceModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("SourceMode(%d)", int(m))
}

// ParseSourceMode parses the names produced by SourceMode.String.
func ParseSourceMode(s string) (SourceMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range sourceModeNames {
		if name == s {
			return m, nil
		}
	}
	return SourceGray, fmt.Errorf("unknown lbp source %q", s)
}

// PlaneCount returns how many source planes the mode derives from a frame
// with the given channel count.
func (m SourceMode) PlaneCount(channels int) int {
	switch m {
	case SourceGrayGradient:
		return 2
	case SourceColor:
		return channels
	case SourceColorGradient:
		return channels + 1
	default:
		return 1
	}
}

// NewPlanes allocates the planes BuildPlanes fills for this mode.
func (m SourceMode) NewPlanes(width, height, channels int) []*raster.Float {
	planes := make([]*raster.Float, m.PlaneCount(channels))
	for i := range planes {
		planes[i] = raster.NewFloat(width, height)
	}
	return planes
}

// BuildPlanes derives the source planes of frame into planes, which must
// come from NewPlanes with the same mode and frame shape.
func (m SourceMode) BuildPlanes(frame *raster.Bytes, planes []*raster.Float) {
	switch m {
	case SourceGray:
		luma(frame, planes[0])
	case SourceGrayGradient:
		luma(frame, planes[0])
		gradient(planes[0], planes[1])
	case SourceColor:
		splitChannels(frame, planes)
	case SourceColorGradient:
		splitChannels(frame, planes[:frame.Channels])
		last := planes[len(planes)-1]
		luma(frame, last)
		gradient(last, last)
	}
}

func luma(frame *raster.Bytes, dst *raster.Float) {
	ch := frame.Channels
	for i, j := 0, 0; j < len(dst.Pix); i, j = i+ch, j+1 {
		if ch < 3 {
			dst.Pix[j] = float32(frame.Pix[i])
			continue
		}
		dst.Pix[j] = 0.299*float32(frame.Pix[i]) + 0.587*float32(frame.Pix[i+1]) + 0.114*float32(frame.Pix[i+2])
	}
}

func splitChannels(frame *raster.Bytes, planes []*raster.Float) {
	ch := frame.Channels
	for c, p := range planes {
		for i, j := c, 0; j < len(p.Pix); i, j = i+ch, j+1 {
			p.Pix[j] = float32(frame.Pix[i])
		}
	}
}

// gradient writes the Sobel magnitude of src into dst, clamped to [0, 255].
// Borders replicate the edge pixel. src and dst may alias.
func gradient(src, dst *raster.Float) {
	w, h := src.Width, src.Height
	in := src.Pix
	if src == dst {
		in = append([]float32(nil), src.Pix...)
	}
	at := func(r, c int) float32 {
		if r < 0 {
			r = 0
		} else if r >= h {
			r = h - 1
		}
		if c < 0 {
			c = 0
		} else if c >= w {
			c = w - 1
		}
		return in[r*w+c]
	}
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			gx := at(r-1, c+1) + 2*at(r, c+1) + at(r+1, c+1) - at(r-1, c-1) - 2*at(r, c-1) - at(r+1, c-1)
			gy := at(r+1, c-1) + 2*at(r+1, c) + at(r+1, c+1) - at(r-1, c-1) - 2*at(r-1, c) - at(r-1, c+1)
			mag := math32.Sqrt(gx*gx+gy*gy) / 4
			if mag > 255 {
				mag = 255
			}
			dst.Pix[r*w+c] = mag
		}
	}
}
