package bgmodel

// sortByWeight orders Rank[:Active] by descending weight with a stable
// insertion sort. Active never exceeds MaxModesLimit.
func sortByWeight(px *Pixel, modes []Mode) {
	for i := 1; i < px.Active; i++ {
		slot := px.Rank[i]
		w := modes[slot].Weight
		j := i
		for j > 0 && modes[px.Rank[j-1]].Weight < w {
			px.Rank[j] = px.Rank[j-1]
			j--
		}
		px.Rank[j] = slot
	}
}

// normalize rescales active weights to sum to 1, dropping modes whose
// weight reached zero.
func normalize(px *Pixel, modes []Mode) {
	for r := 0; r < px.Active; {
		if modes[px.Rank[r]].Weight <= 0 {
			removeAt(px, modes, r)
			continue
		}
		r++
	}
	var sum float32
	for r := 0; r < px.Active; r++ {
		sum += modes[px.Rank[r]].Weight
	}
	if sum <= 0 {
		return
	}
	for r := 0; r < px.Active; r++ {
		modes[px.Rank[r]].Weight /= sum
	}
}

// reliableCount returns the smallest k whose cumulative weight over
// Rank[:k] reaches percent.
func reliableCount(px *Pixel, modes []Mode, percent float32) int {
	var acc float32
	for r := 0; r < px.Active; r++ {
		acc += modes[px.Rank[r]].Weight
		if acc >= percent {
			return r + 1
		}
	}
	return px.Active
}
