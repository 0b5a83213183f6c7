package bgmodel

import (
	"fmt"
	"slices"

	"github.com/chewxy/math32"
)

// WeightTolerance bounds |Σ weight − 1| for a pixel with active modes.
const WeightTolerance = 1e-4

// Stats summarises the model state.
type Stats struct {
	Frame            uint64
	Pixels           int
	MaskedPixels     int
	ActiveModes      int
	ModeHistogram    [MaxModesLimit + 1]int // pixels by active mode count
	LayeredPixels    int                    // pixels with at least one promoted mode
	MaxLayer         int
	PendingPixels    int // pixels in the conditional-foreground state
	ForegroundPixels int
}

// Stats walks every pixel record.
func (m *Model) Stats() Stats {
	s := Stats{Frame: m.frame, Pixels: len(m.pixels)}
	for i := range m.pixels {
		px := &m.pixels[i]
		if !m.valid[i] {
			s.MaskedPixels++
		}
		s.ActiveModes += px.Active
		s.ModeHistogram[px.Active]++
		if top := maxLayer(px, m.pixelModes(i)); top > 0 {
			s.LayeredPixels++
			if top > s.MaxLayer {
				s.MaxLayer = top
			}
		}
		if px.pendingMode != noPending {
			s.PendingPixels++
		}
		if m.fg.Pix[i] != 0 {
			s.ForegroundPixels++
		}
	}
	return s
}

// ModeState is a copy of one mode.
type ModeState struct {
	Mean       []float32
	Max        []float32
	Min        []float32
	Texture    []float32
	Weight     float32
	MaxWeight  float32
	Layer      int
	FirstSeen  uint64
	LastSeen   uint64
	Matches    uint64
	PromotedAt uint64
}

// PixelState is a copy of one pixel record with its modes in rank order.
type PixelState struct {
	Active        int
	Reliable      int
	CurrentLayer  int
	PendingFrames int
	Modes         []ModeState
}

// PixelState returns a copy of the record at (x, y).
func (m *Model) PixelState(x, y int) (PixelState, error) {
	if x < 0 || x >= m.width || y < 0 || y >= m.height {
		return PixelState{}, fmt.Errorf("pixel (%d,%d) outside %dx%d: %w", x, y, m.width, m.height, ErrROIOutOfBounds)
	}
	i := y*m.width + x
	px := &m.pixels[i]
	modes := m.pixelModes(i)
	st := PixelState{
		Active:        px.Active,
		Reliable:      px.Reliable,
		CurrentLayer:  px.CurrentLayer,
		PendingFrames: px.pendingFrames,
		Modes:         make([]ModeState, px.Active),
	}
	ch := m.channels
	for r := 0; r < px.Active; r++ {
		md := &modes[px.Rank[r]]
		st.Modes[r] = ModeState{
			Mean:       slices.Clone(md.Mean[:ch]),
			Max:        slices.Clone(md.Max[:ch]),
			Min:        slices.Clone(md.Min[:ch]),
			Texture:    slices.Clone(md.Texture),
			Weight:     md.Weight,
			MaxWeight:  md.MaxWeight,
			Layer:      md.Layer,
			FirstSeen:  md.FirstSeen,
			LastSeen:   md.LastSeen,
			Matches:    md.Matches,
			PromotedAt: md.PromotedAt,
		}
	}
	return st, nil
}

// CheckInvariants verifies weight conservation, capacity, rank ordering,
// contiguous layering and masking on every pixel. It returns the first
// violation found.
func (m *Model) CheckInvariants() error {
	for i := range m.pixels {
		px := &m.pixels[i]
		modes := m.pixelModes(i)
		x, y := i%m.width, i/m.width

		if px.Active < 0 || px.Active > m.params.MaxModes {
			return fmt.Errorf("pixel (%d,%d): active %d outside [0,%d]", x, y, px.Active, m.params.MaxModes)
		}
		if px.Reliable > px.Active {
			return fmt.Errorf("pixel (%d,%d): reliable %d > active %d", x, y, px.Reliable, px.Active)
		}
		if !m.valid[i] && px.Active != 0 {
			return fmt.Errorf("pixel (%d,%d): masked pixel holds %d modes", x, y, px.Active)
		}

		var seen [MaxModesLimit]bool
		for r := 0; r < m.params.MaxModes; r++ {
			s := px.Rank[r]
			if int(s) >= m.params.MaxModes || seen[s] {
				return fmt.Errorf("pixel (%d,%d): rank is not a permutation of slots", x, y)
			}
			seen[s] = true
		}
		if px.Active == 0 {
			continue
		}

		var sum float32
		for r := 0; r < px.Active; r++ {
			md := &modes[px.Rank[r]]
			sum += md.Weight
			if r > 0 && md.Weight > modes[px.Rank[r-1]].Weight {
				return fmt.Errorf("pixel (%d,%d): rank %d heavier than rank %d", x, y, r, r-1)
			}
		}
		if math32.Abs(sum-1) > WeightTolerance {
			return fmt.Errorf("pixel (%d,%d): weights sum to %g", x, y, sum)
		}
		if err := checkLayers(px, modes); err != nil {
			return fmt.Errorf("pixel (%d,%d): %w", x, y, err)
		}
	}
	return nil
}
