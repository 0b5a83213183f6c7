package source

import (
	"context"
	"image"
	"io"
	"math/rand/v2"

	"github.com/banshee-data/layerbg/internal/raster"
)

// Synthetic renders a uniform background with a rectangle that moves by
// Velocity each frame until StopAfter frames, then stays put. Noise adds a
// seeded uniform perturbation in [-Noise, Noise] to every sample.
type Synthetic struct {
	Width      int
	Height     int
	Channels   int
	Background [3]uint8
	Object     [3]uint8
	ObjectSize image.Point
	Start      image.Point
	Velocity   image.Point
	StopAfter  int // 0 keeps the object moving
	Frames     int // 0 is unbounded
	Noise      int
	Seed       uint64

	frame int
	rng   *rand.Rand
}

// NewSynthetic returns a 3-channel scene of the given size with a grey
// background and a bright square crossing it.
func NewSynthetic(width, height, frames int) *Synthetic {
	side := max(2, min(width, height)/6)
	return &Synthetic{
		Width:      width,
		Height:     height,
		Channels:   3,
		Background: [3]uint8{96, 110, 120},
		Object:     [3]uint8{230, 60, 40},
		ObjectSize: image.Pt(side, side),
		Start:      image.Pt(0, height/2-side/2),
		Velocity:   image.Pt(max(1, width/50), 0),
		Frames:     frames,
		Noise:      2,
		Seed:       1,
	}
}

// ObjectRect returns the rectangle covered by the object in frame k.
func (s *Synthetic) ObjectRect(k int) raster.Rect {
	if s.StopAfter > 0 && k > s.StopAfter {
		k = s.StopAfter
	}
	x0 := s.Start.X + k*s.Velocity.X
	y0 := s.Start.Y + k*s.Velocity.Y
	if s.Width > 0 {
		x0 = ((x0 % s.Width) + s.Width) % s.Width
	}
	if s.Height > 0 {
		y0 = ((y0 % s.Height) + s.Height) % s.Height
	}
	r := raster.R(x0, y0, x0+s.ObjectSize.X, y0+s.ObjectSize.Y)
	r.X1 = min(r.X1, s.Width)
	r.Y1 = min(r.Y1, s.Height)
	return r
}

// Next renders the next frame.
func (s *Synthetic) Next(ctx context.Context) (*raster.Bytes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Frames > 0 && s.frame >= s.Frames {
		return nil, io.EOF
	}
	ch := s.Channels
	if ch == 0 {
		ch = 3
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
	}

	f := raster.NewBytes(s.Width, s.Height, ch)
	f.Fill(s.Background[:ch]...)
	f.FillRect(s.ObjectRect(s.frame), s.Object[:ch]...)
	if s.Noise > 0 {
		span := 2*s.Noise + 1
		for i, v := range f.Pix {
			n := int(v) + s.rng.IntN(span) - s.Noise
			f.Pix[i] = uint8(min(255, max(0, n)))
		}
	}
	s.frame++
	return f, nil
}

// Close is a no-op.
func (s *Synthetic) Close() error { return nil }
