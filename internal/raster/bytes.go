package raster

import (
	"fmt"
	"image"
	"image/color"
)

// Bytes is an interleaved uint8 raster. Pix holds Height rows of
// Width*Channels bytes with no padding.
type Bytes struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewBytes allocates a zeroed raster.
func NewBytes(width, height, channels int) *Bytes {
	return &Bytes{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// Bounds returns the full-raster rectangle.
func (b *Bytes) Bounds() Rect { return Full(b.Width, b.Height) }

// Offset returns the index in Pix of channel 0 at (row, col).
func (b *Bytes) Offset(row, col int) int {
	if checkBounds && (row < 0 || row >= b.Height || col < 0 || col >= b.Width) {
		panic(fmt.Sprintf("raster: (%d,%d) outside %dx%d", row, col, b.Width, b.Height))
	}
	return (row*b.Width + col) * b.Channels
}

// At returns the value at (row, col, ch).
func (b *Bytes) At(row, col, ch int) uint8 {
	if checkBounds && (ch < 0 || ch >= b.Channels) {
		panic(fmt.Sprintf("raster: channel %d outside [0,%d)", ch, b.Channels))
	}
	return b.Pix[b.Offset(row, col)+ch]
}

// Set stores v at (row, col, ch).
func (b *Bytes) Set(row, col, ch int, v uint8) {
	if checkBounds && (ch < 0 || ch >= b.Channels) {
		panic(fmt.Sprintf("raster: channel %d outside [0,%d)", ch, b.Channels))
	}
	b.Pix[b.Offset(row, col)+ch] = v
}

// Fill sets every pixel to the given channel values. Missing values repeat
// the last one supplied.
func (b *Bytes) Fill(values ...uint8) {
	if len(values) == 0 {
		values = []uint8{0}
	}
	for i := 0; i < len(b.Pix); i += b.Channels {
		for c := 0; c < b.Channels; c++ {
			v := values[len(values)-1]
			if c < len(values) {
				v = values[c]
			}
			b.Pix[i+c] = v
		}
	}
}

// FillRect sets every pixel inside r to the given channel values.
func (b *Bytes) FillRect(r Rect, values ...uint8) {
	if len(values) == 0 {
		values = []uint8{0}
	}
	for row := r.Y0; row < r.Y1; row++ {
		for col := r.X0; col < r.X1; col++ {
			off := b.Offset(row, col)
			for c := 0; c < b.Channels; c++ {
				v := values[len(values)-1]
				if c < len(values) {
					v = values[c]
				}
				b.Pix[off+c] = v
			}
		}
	}
}

// Clone returns a deep copy.
func (b *Bytes) Clone() *Bytes {
	out := &Bytes{Width: b.Width, Height: b.Height, Channels: b.Channels, Pix: make([]uint8, len(b.Pix))}
	copy(out.Pix, b.Pix)
	return out
}

// SameShape reports whether o has the same width, height and channel count.
func (b *Bytes) SameShape(o *Bytes) bool {
	return o != nil && b.Width == o.Width && b.Height == o.Height && b.Channels == o.Channels
}

// FromImage converts img into a raster with the requested channel count
// (1 = luma, 3 = RGB).
func FromImage(img image.Image, channels int) (*Bytes, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	bounds := img.Bounds()
	out := NewBytes(bounds.Dx(), bounds.Dy(), channels)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			off := out.Offset(y-bounds.Min.Y, x-bounds.Min.X)
			if channels == 1 {
				out.Pix[off] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
				continue
			}
			r, g, bl, _ := img.At(x, y).RGBA()
			out.Pix[off] = uint8(r >> 8)
			out.Pix[off+1] = uint8(g >> 8)
			out.Pix[off+2] = uint8(bl >> 8)
		}
	}
	return out, nil
}

// ToImage converts the raster to an image.Gray (1 channel) or image.RGBA
// (3 channels).
func (b *Bytes) ToImage() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)
	if b.Channels == 1 {
		img := image.NewGray(rect)
		copy(img.Pix, b.Pix)
		return img
	}
	img := image.NewRGBA(rect)
	for i, j := 0, 0; i < len(b.Pix); i, j = i+b.Channels, j+4 {
		img.Pix[j] = b.Pix[i]
		if b.Channels >= 3 {
			img.Pix[j+1] = b.Pix[i+1]
			img.Pix[j+2] = b.Pix[i+2]
		} else {
			img.Pix[j+1] = b.Pix[i]
			img.Pix[j+2] = b.Pix[i]
		}
		img.Pix[j+3] = 0xff
	}
	return img
}
