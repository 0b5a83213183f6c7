package bgmodel

import (
	"github.com/chewxy/math32"

	"github.com/banshee-data/layerbg/internal/distance"
)

// classify runs one frame of the per-pixel state machine and returns the
// fused distance of the decision, clamped to [0, 1].
func (m *Model) classify(pixel int, color []float32) float32 {
	p := &m.params
	px := &m.pixels[pixel]
	modes := m.pixelModes(pixel)
	obs := m.Descriptor(pixel)

	if p.LayerPruning && pruneLayers(px, modes, p.MinLayerWeight) {
		normalize(px, modes)
		px.Reliable = reliableCount(px, modes, p.BackgroundModelPercent)
	}

	if px.Active == 0 {
		modes[px.Rank[0]].seed(color, obs, p.InitialModeWeight, m.frame)
		px.Active = 1
		px.CurrentLayer = 0
		px.clearPending()
		normalize(px, modes)
		px.Reliable = reliableCount(px, modes, p.BackgroundModelPercent)
		return 0
	}

	px.Reliable = reliableCount(px, modes, p.BackgroundModelPercent)

	bestRank := 0
	best := math32.Inf(1)
	for r := 0; r < px.Active; r++ {
		d := distance.Fused(color, obs, modes[px.Rank[r]].metric(m.channels), p.Metric)
		if d < best {
			best, bestRank = d, r
		}
	}
	slot := int(px.Rank[bestRank])
	matched := &modes[slot]
	if bestRank >= px.Reliable && matched.MaxWeight < p.ReliableBackgroundWeight {
		best *= p.UnreliableInflation
	}

	switch {
	case best < p.UpdateThreshold:
		m.update(px, modes, slot, bestRank, color, obs)
	case best < p.GenerateThreshold:
		m.conditional(px, matched, slot, color, obs)
	default:
		m.generate(px, modes, color, obs)
	}

	normalize(px, modes)
	sortByWeight(px, modes)
	px.Reliable = reliableCount(px, modes, p.BackgroundModelPercent)

	if best > 1 {
		return 1
	}
	return best
}

// decayFactor is the per-frame weight loss of a mode. Modes that were once
// strong decay more slowly.
func (m *Model) decayFactor(mode *Mode) float32 {
	return m.params.WeightLearnRate / (1 + m.params.WeightHysteresis*mode.MaxWeight)
}

func (m *Model) update(px *Pixel, modes []Mode, slot, rank int, color, obs []float32) {
	p := &m.params
	a := p.ModeLearnRate
	mode := &modes[slot]

	for c, v := range color {
		mode.Mean[c] = (1-a)*mode.Mean[c] + a*v
		mode.Max[c] = math32.Max(v, (1-a)*mode.Max[c]+a*v)
		mode.Min[c] = math32.Min(v, (1-a)*mode.Min[c]+a*v)
	}
	for i, v := range obs {
		mode.Texture[i] = (1-a)*mode.Texture[i] + a*v
	}

	inc := p.WeightLearnRate * (1 + p.WeightHysteresis*mode.MaxWeight)
	mode.Weight += inc * (1 - mode.Weight)
	if mode.Weight > 1 {
		mode.Weight = 1
	}
	for r := 0; r < px.Active; r++ {
		if s := int(px.Rank[r]); s != slot {
			o := &modes[s]
			o.Weight -= m.decayFactor(o) * o.Weight
		}
	}
	if mode.Weight > mode.MaxWeight {
		mode.MaxWeight = mode.Weight
	}
	mode.Matches++
	mode.LastSeen = m.frame
	px.CurrentLayer = mode.Layer
	px.clearPending()

	if rank < px.Reliable && mode.Layer == 0 && mode.MaxWeight > p.ReliableBackgroundWeight {
		promote(px, modes, slot, m.frame)
	}
}

// conditional handles a borderline match. After PersistenceFrames
// consecutive conditional matches of the same mode the observation is
// absorbed into it.
func (m *Model) conditional(px *Pixel, mode *Mode, slot int, color, obs []float32) {
	if px.pendingMode != slot {
		px.pendingMode = slot
		px.pendingFrames = 0
	}
	px.pendingFrames++
	px.CurrentLayer = 0
	if px.pendingFrames <= m.params.PersistenceFrames {
		return
	}

	for c, v := range color {
		mode.Mean[c], mode.Max[c], mode.Min[c] = v, v, v
	}
	copy(mode.Texture, obs)
	mode.LastSeen = m.frame
	px.CurrentLayer = mode.Layer
	px.clearPending()
}

// generate decays every mode and stores the observation as a new mode,
// overwriting the lowest-ranked slot when the pixel is full.
func (m *Model) generate(px *Pixel, modes []Mode, color, obs []float32) {
	p := &m.params
	for r := 0; r < px.Active; r++ {
		o := &modes[px.Rank[r]]
		o.Weight -= m.decayFactor(o) * o.Weight
	}

	if px.Active >= p.MaxModes {
		removeAt(px, modes, px.Active-1)
	}
	slot := px.Rank[px.Active]
	modes[slot].seed(color, obs, p.InitialModeWeight, m.frame)
	px.Active++
	px.CurrentLayer = 0
	px.clearPending()
}
