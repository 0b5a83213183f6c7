package diag

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/layerbg/internal/bgmodel"
)

// Summary aggregates per-pixel model state.
type Summary struct {
	Frame            uint64    `json:"frame"`
	Pixels           int       `json:"pixels"`
	MaskedPixels     int       `json:"masked_pixels"`
	ForegroundPixels int       `json:"foreground_pixels"`
	LayeredPixels    int       `json:"layered_pixels"`
	PendingPixels    int       `json:"pending_pixels"`
	MaxLayer         int       `json:"max_layer"`
	ModeHistogram    []int     `json:"mode_histogram"`
	ActiveMean       float64   `json:"active_mean"`
	ActiveStdDev     float64   `json:"active_stddev"`
	TopWeightMean    float64   `json:"top_weight_mean"`
	TopWeightP10     float64   `json:"top_weight_p10"`
	TopWeightMedian  float64   `json:"top_weight_median"`
	DistanceMean     float64   `json:"distance_mean"`
	DistanceStdDev   float64   `json:"distance_stddev"`
	DistanceP95      float64   `json:"distance_p95"`
	LayerFractions   []float64 `json:"layer_fractions"` // share of modelled pixels by current layer
}

// Summarize walks every unmasked pixel of m. The caller must hold exclusive
// access to the model.
func Summarize(m *bgmodel.Model) Summary {
	st := m.Stats()
	s := Summary{
		Frame:            st.Frame,
		Pixels:           st.Pixels,
		MaskedPixels:     st.MaskedPixels,
		ForegroundPixels: st.ForegroundPixels,
		LayeredPixels:    st.LayeredPixels,
		PendingPixels:    st.PendingPixels,
		MaxLayer:         st.MaxLayer,
		ModeHistogram:    append([]int(nil), st.ModeHistogram[:m.Params().MaxModes+1]...),
		LayerFractions:   make([]float64, st.MaxLayer+1),
	}

	n := st.Pixels - st.MaskedPixels
	if n == 0 {
		return s
	}
	active := make([]float64, 0, n)
	top := make([]float64, 0, n)
	dist := make([]float64, 0, n)
	raw := m.Distance()
	for y := 0; y < m.Height(); y++ {
		for x := 0; x < m.Width(); x++ {
			if m.Masked(x, y) {
				continue
			}
			ps, err := m.PixelState(x, y)
			if err != nil {
				continue
			}
			active = append(active, float64(ps.Active))
			if len(ps.Modes) > 0 {
				top = append(top, float64(ps.Modes[0].Weight))
			}
			dist = append(dist, float64(raw.At(y, x)))
			if ps.CurrentLayer < len(s.LayerFractions) {
				s.LayerFractions[ps.CurrentLayer]++
			}
		}
	}

	s.ActiveMean, s.ActiveStdDev = meanStdDev(active)
	s.DistanceMean, s.DistanceStdDev = meanStdDev(dist)
	sort.Float64s(dist)
	s.DistanceP95 = stat.Quantile(0.95, stat.Empirical, dist, nil)
	if len(top) > 0 {
		s.TopWeightMean = stat.Mean(top, nil)
		sort.Float64s(top)
		s.TopWeightP10 = stat.Quantile(0.1, stat.Empirical, top, nil)
		s.TopWeightMedian = stat.Quantile(0.5, stat.Empirical, top, nil)
	}
	for i := range s.LayerFractions {
		s.LayerFractions[i] /= float64(len(active))
	}
	return s
}

// meanStdDev is stat.MeanStdDev with a zero deviation for a single value.
func meanStdDev(x []float64) (float64, float64) {
	if len(x) < 2 {
		if len(x) == 1 {
			return x[0], 0
		}
		return 0, 0
	}
	return stat.MeanStdDev(x, nil)
}
