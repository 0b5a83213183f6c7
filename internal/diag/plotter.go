package diag

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/layerbg/internal/bgmodel"
)

// PixelPlotter records the state of selected pixels over time. It samples
// the model on each call to Sample and writes PNG plots of the series with
// GeneratePlots.
type PixelPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	points    []image.Point
	samples   map[image.Point][]PixelSample
}

// PixelSample is one frame of a pixel's state.
type PixelSample struct {
	Frame        uint64
	Distance     float64
	Smoothed     float64
	Active       int
	Reliable     int
	CurrentLayer int
	Weights      []float64 // in rank order
	Layers       []int     // in rank order
}

// NewPixelPlotter creates a plotter for the given pixel coordinates.
func NewPixelPlotter(points []image.Point) *PixelPlotter {
	return &PixelPlotter{
		points:  append([]image.Point(nil), points...),
		samples: make(map[image.Point][]PixelSample),
	}
}

// ParsePoints parses "x,y;x,y;..." into pixel coordinates.
func ParsePoints(s string) ([]image.Point, error) {
	var pts []image.Point
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		xs, ys, ok := strings.Cut(item, ",")
		if !ok {
			return nil, fmt.Errorf("invalid pixel %q: want x,y", item)
		}
		x, err := strconv.Atoi(strings.TrimSpace(xs))
		if err != nil {
			return nil, fmt.Errorf("invalid pixel %q: %w", item, err)
		}
		y, err := strconv.Atoi(strings.TrimSpace(ys))
		if err != nil {
			return nil, fmt.Errorf("invalid pixel %q: %w", item, err)
		}
		if x < 0 || y < 0 {
			return nil, fmt.Errorf("invalid pixel %q: negative coordinate", item)
		}
		pts = append(pts, image.Pt(x, y))
	}
	return pts, nil
}

// Start enables sampling and resets any previous series. outputDir is
// created if needed.
func (pp *PixelPlotter) Start(outputDir string) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	pp.outputDir = outputDir
	pp.enabled = true
	pp.samples = make(map[image.Point][]PixelSample)
	return nil
}

// Stop disables sampling. Call GeneratePlots to produce output files.
func (pp *PixelPlotter) Stop() {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (pp *PixelPlotter) IsEnabled() bool {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.enabled
}

// Sample captures the state of every configured pixel. Call it once per
// processed frame. Points outside the model are ignored.
func (pp *PixelPlotter) Sample(m *bgmodel.Model) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if !pp.enabled || m == nil {
		return
	}
	// Process has already advanced the counter past the sampled frame.
	frame := m.Frame()
	for _, pt := range pp.points {
		st, err := m.PixelState(pt.X, pt.Y)
		if err != nil {
			continue
		}
		s := PixelSample{
			Frame:        frame,
			Distance:     float64(m.Distance().At(pt.Y, pt.X)),
			Smoothed:     float64(m.SmoothedDistance().At(pt.Y, pt.X)),
			Active:       st.Active,
			Reliable:     st.Reliable,
			CurrentLayer: st.CurrentLayer,
			Weights:      make([]float64, len(st.Modes)),
			Layers:       make([]int, len(st.Modes)),
		}
		for r, md := range st.Modes {
			s.Weights[r] = float64(md.Weight)
			s.Layers[r] = md.Layer
		}
		pp.samples[pt] = append(pp.samples[pt], s)
	}
}

// Samples returns a copy of the series recorded for pt.
func (pp *PixelPlotter) Samples(pt image.Point) []PixelSample {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return append([]PixelSample(nil), pp.samples[pt]...)
}

// GetSampleCount returns the total number of samples collected.
func (pp *PixelPlotter) GetSampleCount() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	count := 0
	for _, samples := range pp.samples {
		count += len(samples)
	}
	return count
}

// GetOutputDir returns the current output directory for plots.
func (pp *PixelPlotter) GetOutputDir() string {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.outputDir
}

// GeneratePlots writes two PNG files per sampled pixel: the mode weights by
// rank, and the distance with the current layer. It returns the number of
// pixels plotted.
func (pp *PixelPlotter) GeneratePlots() (int, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}

	pts := make([]image.Point, 0, len(pp.samples))
	for pt := range pp.samples {
		pts = append(pts, pt)
	}
	sort.Slice(pts, func(a, b int) bool {
		if pts[a].Y != pts[b].Y {
			return pts[a].Y < pts[b].Y
		}
		return pts[a].X < pts[b].X
	})

	plotCount := 0
	for _, pt := range pts {
		samples := pp.samples[pt]
		if len(samples) == 0 {
			continue
		}
		if err := pp.generatePixelPlots(pt, samples); err != nil {
			return plotCount, fmt.Errorf("pixel (%d,%d): %w", pt.X, pt.Y, err)
		}
		plotCount++
	}
	return plotCount, nil
}

func (pp *PixelPlotter) generatePixelPlots(pt image.Point, samples []PixelSample) error {
	ranks := 0
	for _, s := range samples {
		ranks = max(ranks, len(s.Weights))
	}

	pW := plot.New()
	pW.Title.Text = fmt.Sprintf("Pixel (%d,%d) - Mode Weights", pt.X, pt.Y)
	pW.X.Label.Text = "Frame"
	pW.Y.Label.Text = "Weight"
	pW.Y.Min = 0
	pW.Y.Max = 1

	colors := generateColors(ranks)
	for r := 0; r < ranks; r++ {
		pts := make(plotter.XYs, 0, len(samples))
		for _, s := range samples {
			if r < len(s.Weights) {
				pts = append(pts, plotter.XY{X: float64(s.Frame), Y: s.Weights[r]})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[r]
		line.Width = vg.Points(1)
		pW.Add(line)
		pW.Legend.Add(fmt.Sprintf("rank %d", r), line)
	}

	pD := plot.New()
	pD.Title.Text = fmt.Sprintf("Pixel (%d,%d) - Distance and Layer", pt.X, pt.Y)
	pD.X.Label.Text = "Frame"
	pD.Y.Label.Text = "Distance / Layer"

	rawPts := make(plotter.XYs, len(samples))
	smoothPts := make(plotter.XYs, len(samples))
	layerPts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		x := float64(s.Frame)
		rawPts[i] = plotter.XY{X: x, Y: s.Distance}
		smoothPts[i] = plotter.XY{X: x, Y: s.Smoothed}
		layerPts[i] = plotter.XY{X: x, Y: float64(s.CurrentLayer)}
	}
	series := []struct {
		label string
		xys   plotter.XYs
		color color.Color
	}{
		{"distance", rawPts, color.RGBA{R: 200, G: 60, B: 60, A: 255}},
		{"smoothed", smoothPts, color.RGBA{R: 60, G: 60, B: 200, A: 255}},
		{"layer", layerPts, color.RGBA{R: 40, G: 160, B: 40, A: 255}},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.xys)
		if err != nil {
			return err
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		pD.Add(line)
		pD.Legend.Add(s.label, line)
	}

	for _, p := range []*plot.Plot{pW, pD} {
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
	}

	wFile := filepath.Join(pp.outputDir, fmt.Sprintf("pixel_%04d_%04d_weights.png", pt.X, pt.Y))
	if err := pW.Save(12*vg.Inch, 5*vg.Inch, wFile); err != nil {
		return fmt.Errorf("save weight plot: %w", err)
	}
	dFile := filepath.Join(pp.outputDir, fmt.Sprintf("pixel_%04d_%04d_distance.png", pt.X, pt.Y))
	if err := pD.Save(12*vg.Inch, 5*vg.Inch, dFile); err != nil {
		return fmt.Errorf("save distance plot: %w", err)
	}
	return nil
}

// generateColors creates a palette of n distinct colours.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
