package raster

import "fmt"

// Float is an interleaved float32 raster. Texture source planes and distance
// maps are single-channel Floats.
type Float struct {
	Width    int
	Height   int
	Channels int
	Pix      []float32
}

// NewFloat allocates a zeroed single-channel float raster.
func NewFloat(width, height int) *Float {
	return NewFloatChannels(width, height, 1)
}

// NewFloatChannels allocates a zeroed float raster with the given channel count.
func NewFloatChannels(width, height, channels int) *Float {
	return &Float{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}
}

// Bounds returns the full-raster rectangle.
func (f *Float) Bounds() Rect { return Full(f.Width, f.Height) }

// Offset returns the index in Pix of channel 0 at (row, col).
func (f *Float) Offset(row, col int) int {
	if checkBounds && (row < 0 || row >= f.Height || col < 0 || col >= f.Width) {
		panic(fmt.Sprintf("raster: (%d,%d) outside %dx%d", row, col, f.Width, f.Height))
	}
	return (row*f.Width + col) * f.Channels
}

// At returns channel 0 at (row, col).
func (f *Float) At(row, col int) float32 { return f.Pix[f.Offset(row, col)] }

// Set stores v in channel 0 at (row, col).
func (f *Float) Set(row, col int, v float32) { f.Pix[f.Offset(row, col)] = v }

// Fill sets every element to v.
func (f *Float) Fill(v float32) {
	for i := range f.Pix {
		f.Pix[i] = v
	}
}

// Clone returns a deep copy.
func (f *Float) Clone() *Float {
	out := &Float{Width: f.Width, Height: f.Height, Channels: f.Channels, Pix: make([]float32, len(f.Pix))}
	copy(out.Pix, f.Pix)
	return out
}
