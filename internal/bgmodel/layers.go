package bgmodel

import "fmt"

// maxLayer returns the highest layer number in use among active modes.
func maxLayer(px *Pixel, modes []Mode) int {
	top := 0
	for r := 0; r < px.Active; r++ {
		if l := modes[px.Rank[r]].Layer; l > top {
			top = l
		}
	}
	return top
}

// promote assigns the next layer number above the current maximum.
func promote(px *Pixel, modes []Mode, slot int, frame uint64) {
	modes[slot].Layer = maxLayer(px, modes) + 1
	modes[slot].PromotedAt = frame
}

// releaseLayer shifts every active layer above layer down by one so the
// numbers in use stay contiguous from 1.
func releaseLayer(px *Pixel, modes []Mode, layer int) {
	if layer <= 0 {
		return
	}
	for r := 0; r < px.Active; r++ {
		if m := &modes[px.Rank[r]]; m.Layer > layer {
			m.Layer--
		}
	}
}

// removeAt drops the mode at rank position r, releasing its layer. The slot
// moves to the free region of Rank.
func removeAt(px *Pixel, modes []Mode, r int) {
	slot := px.Rank[r]
	layer := modes[slot].Layer
	modes[slot].Layer = 0
	modes[slot].Weight = 0
	copy(px.Rank[r:px.Active], px.Rank[r+1:px.Active])
	px.Active--
	px.Rank[px.Active] = slot
	if px.pendingMode == int(slot) {
		px.clearPending()
	}
	if px.Reliable > px.Active {
		px.Reliable = px.Active
	}
	releaseLayer(px, modes, layer)
}

// pruneLayers removes promoted modes whose weight fell below minWeight and
// reports whether any were removed.
func pruneLayers(px *Pixel, modes []Mode, minWeight float32) bool {
	removed := false
	for r := 0; r < px.Active; {
		m := &modes[px.Rank[r]]
		if m.Layer > 0 && m.Weight < minWeight {
			removeAt(px, modes, r)
			removed = true
			continue
		}
		r++
	}
	return removed
}

// checkLayers verifies that the layers of the active modes are exactly
// 1..k and that the current layer is 0 or one of them.
func checkLayers(px *Pixel, modes []Mode) error {
	var used [MaxModesLimit + 1]bool
	k := 0
	for r := 0; r < px.Active; r++ {
		l := modes[px.Rank[r]].Layer
		if l == 0 {
			continue
		}
		if l < 0 || l > px.Active || used[l] {
			return fmt.Errorf("layer %d repeated or outside [1,%d]", l, px.Active)
		}
		used[l] = true
		k++
	}
	for l := 1; l <= k; l++ {
		if !used[l] {
			return fmt.Errorf("layers not contiguous from 1: %d missing", l)
		}
	}
	if px.CurrentLayer < 0 || px.CurrentLayer > k {
		return fmt.Errorf("current layer %d not in use", px.CurrentLayer)
	}
	return nil
}
