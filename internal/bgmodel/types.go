package bgmodel

import (
	"errors"

	"github.com/banshee-data/layerbg/internal/distance"
)

// MaxChannels is the largest frame channel count the model accepts.
const MaxChannels = 3

// noPending marks a pixel that is not in the conditional-foreground state.
const noPending = -1

var (
	// ErrDimensionMismatch is returned when a frame, mask or model file does
	// not match the model's width, height or channel count.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrDescriptorMismatch is returned when a model file was written with a
	// different texture descriptor length.
	ErrDescriptorMismatch = errors.New("descriptor length mismatch")
	// ErrBadFormat is returned when a model file cannot be parsed.
	ErrBadFormat = errors.New("malformed model file")
	// ErrROIOutOfBounds is returned when a region of interest does not lie
	// inside the frame.
	ErrROIOutOfBounds = errors.New("region of interest out of bounds")
)

// Mode is one appearance hypothesis of a pixel. Texture is a view into the
// model's descriptor arena and is never reassigned.
type Mode struct {
	Mean       [MaxChannels]float32
	Max        [MaxChannels]float32
	Min        [MaxChannels]float32
	Texture    []float32
	Weight     float32
	MaxWeight  float32
	Layer      int // 0 until promoted
	FirstSeen  uint64
	LastSeen   uint64
	Matches    uint64
	PromotedAt uint64
}

func (m *Mode) metric(channels int) distance.Mode {
	return distance.Mode{
		Mean:    m.Mean[:channels],
		Max:     m.Max[:channels],
		Min:     m.Min[:channels],
		Texture: m.Texture,
	}
}

// seed initialises the mode from an observation.
func (m *Mode) seed(color, texture []float32, weight float32, frame uint64) {
	*m = Mode{Texture: m.Texture}
	for c, v := range color {
		m.Mean[c], m.Max[c], m.Min[c] = v, v, v
	}
	copy(m.Texture, texture)
	m.Weight = weight
	m.MaxWeight = weight
	m.FirstSeen = frame
	m.LastSeen = frame
}

// Pixel is the per-pixel record. Rank is always a permutation of the mode
// slots: Rank[:Active] lists active slots by descending weight and
// Rank[Active:] the free ones.
type Pixel struct {
	Active       int
	Reliable     int
	CurrentLayer int
	Rank         [MaxModesLimit]uint8

	pendingFrames int
	pendingMode   int
}

func (px *Pixel) reset(maxModes int) {
	*px = Pixel{pendingMode: noPending}
	for i := 0; i < maxModes; i++ {
		px.Rank[i] = uint8(i)
	}
}

func (px *Pixel) clearPending() {
	px.pendingFrames = 0
	px.pendingMode = noPending
}
