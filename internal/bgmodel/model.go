package bgmodel

import (
	"fmt"

	"github.com/banshee-data/layerbg/internal/lbp"
	"github.com/banshee-data/layerbg/internal/monitoring"
	"github.com/banshee-data/layerbg/internal/postproc"
	"github.com/banshee-data/layerbg/internal/raster"
)

// Model is the multi-layer background model of one video source.
type Model struct {
	params   Params
	width    int
	height   int
	channels int
	descLen  int
	frame    uint64

	pixels  []Pixel
	modes   []Mode    // width*height*MaxModes, addressed by pixel*MaxModes+slot
	texture []float32 // backing store of every Mode.Texture
	obs     []float32 // current-frame descriptors, descLen per pixel
	valid   []bool

	planes    []*raster.Float
	extractor *lbp.Extractor
	smoother  postproc.Smoother
	edgeAware bool

	raw      *raster.Float
	smoothed *raster.Float
	fg       *raster.Bytes
	bg       *raster.Bytes
	prob     *raster.Bytes
	layerImg *raster.Bytes
	colorBuf [MaxChannels]float32
}

// New builds an empty model for frames of the given size. Configuration
// errors are reported here and never at frame time.
func New(width, height, channels int, p Params) (*Model, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %dx%d", width, height)
	}
	if channels != 1 && channels != MaxChannels {
		return nil, fmt.Errorf("frames must have 1 or %d channels, got %d", MaxChannels, channels)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	m := &Model{
		params:   p,
		width:    width,
		height:   height,
		channels: channels,
		raw:      raster.NewFloat(width, height),
		smoothed: raster.NewFloat(width, height),
		fg:       raster.NewBytes(width, height, 1),
		bg:       raster.NewBytes(width, height, channels),
		prob:     raster.NewBytes(width, height, 1),
		layerImg: raster.NewBytes(width, height, channels),
		valid:    make([]bool, width*height),
	}
	for i := range m.valid {
		m.valid[i] = true
	}

	m.planes = p.LBPSource.NewPlanes(width, height, channels)
	ext, err := lbp.NewExtractor(m.planes, p.LBPLevels, p.LBPMargin)
	if err != nil {
		return nil, fmt.Errorf("texture extractor: %w", err)
	}
	m.extractor = ext
	m.descLen = ext.DescriptorLength()
	m.obs = make([]float32, width*height*m.descLen)

	if err := m.buildSmoother(); err != nil {
		return nil, err
	}
	m.pixels, m.modes, m.texture = allocate(width*height, p.MaxModes, m.descLen)

	monitoring.Logf("[Model] created %dx%dx%d max_modes=%d descriptor=%d source=%s edge_aware=%v",
		width, height, channels, p.MaxModes, m.descLen, p.LBPSource, m.edgeAware)
	return m, nil
}

// NewFromConfig validates cfg and builds a model from it.
func NewFromConfig(width, height, channels int, cfg *Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return New(width, height, channels, cfg.ToParams())
}

// validate applies the Config.Validate ranges to derived parameters, so
// that models built directly from Params are held to the same rules.
func (p Params) validate() error {
	if p.MaxModes < 1 || p.MaxModes > MaxModesLimit {
		return fmt.Errorf("MaxModes must be in [1, %d], got %d", MaxModesLimit, p.MaxModes)
	}
	if p.BackgroundModelPercent <= 0 || p.BackgroundModelPercent > 1 {
		return fmt.Errorf("BackgroundModelPercent must be in (0, 1], got %f", p.BackgroundModelPercent)
	}
	if p.ReliableBackgroundWeight <= 0 || p.ReliableBackgroundWeight > 1 {
		return fmt.Errorf("ReliableBackgroundWeight must be in (0, 1], got %f", p.ReliableBackgroundWeight)
	}
	if p.MinLayerWeight < 0 || p.MinLayerWeight >= 1 {
		return fmt.Errorf("MinLayerWeight must be in [0, 1), got %f", p.MinLayerWeight)
	}
	if p.InitialModeWeight <= 0 || p.InitialModeWeight > 1 {
		return fmt.Errorf("InitialModeWeight must be in (0, 1], got %f", p.InitialModeWeight)
	}
	if p.WeightHysteresis < 0 {
		return fmt.Errorf("WeightHysteresis must be non-negative, got %f", p.WeightHysteresis)
	}
	if p.UnreliableInflation < 1 {
		return fmt.Errorf("UnreliableInflation must be >= 1, got %f", p.UnreliableInflation)
	}
	if p.UpdateThreshold < 0 || p.UpdateThreshold > p.GenerateThreshold {
		return fmt.Errorf("UpdateThreshold must be in [0, GenerateThreshold=%f], got %f", p.GenerateThreshold, p.UpdateThreshold)
	}
	if p.GenerateThreshold > 1 {
		return fmt.Errorf("GenerateThreshold must be <= 1, got %f", p.GenerateThreshold)
	}
	if p.BgThreshold < 0 || p.BgThreshold > 1 {
		return fmt.Errorf("BgThreshold must be in [0, 1], got %f", p.BgThreshold)
	}
	if p.PersistenceFrames < 0 {
		return fmt.Errorf("PersistenceFrames must be non-negative, got %d", p.PersistenceFrames)
	}
	if p.FrameSeconds <= 0 {
		return fmt.Errorf("FrameSeconds must be positive, got %f", p.FrameSeconds)
	}
	if p.ModeLearnRate < 0 || p.ModeLearnRate > 1 || p.WeightLearnRate < 0 || p.WeightLearnRate > 1 {
		return fmt.Errorf("per-frame learning rates must be in [0, 1], got %f/%f", p.ModeLearnRate, p.WeightLearnRate)
	}
	if p.Metric.TextureWeight < 0 || p.Metric.ColorWeight < 0 || p.Metric.TextureWeight+p.Metric.ColorWeight <= 0 {
		return fmt.Errorf("TextureWeight/ColorWeight must be non-negative with a positive sum, got %f/%f", p.Metric.TextureWeight, p.Metric.ColorWeight)
	}
	if p.Metric.ShadowRate <= 0 || p.Metric.HighlightRate < p.Metric.ShadowRate {
		return fmt.Errorf("ShadowRate must be positive and <= HighlightRate, got %f/%f", p.Metric.ShadowRate, p.Metric.HighlightRate)
	}
	if len(p.LBPLevels) == 0 {
		return fmt.Errorf("at least one LBP level is required")
	}
	for i, lv := range p.LBPLevels {
		if lv.Radius <= 0 || lv.Neighbors <= 0 {
			return fmt.Errorf("LBP level %d must have positive radius and neighbours, got %g/%d", i, lv.Radius, lv.Neighbors)
		}
	}
	if p.SmoothingHalfWidth < 0 {
		return fmt.Errorf("SmoothingHalfWidth must be non-negative, got %d", p.SmoothingHalfWidth)
	}
	if p.SmoothingSigma <= 0 {
		return fmt.Errorf("SmoothingSigma must be positive, got %f", p.SmoothingSigma)
	}
	return nil
}

func (m *Model) buildSmoother() error {
	s, edge, err := postproc.NewSmoother(m.params.SmoothingHalfWidth, float64(m.params.SmoothingSigma), m.params.EdgeAwareSmoothing)
	if err != nil {
		return fmt.Errorf("smoother: %w", err)
	}
	if m.params.EdgeAwareSmoothing && !edge {
		monitoring.Logf("[Model] edge-aware smoothing unavailable, using Gaussian only")
	}
	m.smoother, m.edgeAware = s, edge
	return nil
}

// allocate builds empty pixel records and a mode arena whose Texture views
// point into one contiguous descriptor slab.
func allocate(pixels, maxModes, descLen int) ([]Pixel, []Mode, []float32) {
	px := make([]Pixel, pixels)
	for i := range px {
		px[i].reset(maxModes)
	}
	modes := make([]Mode, pixels*maxModes)
	tex := make([]float32, pixels*maxModes*descLen)
	for i := range modes {
		modes[i].Texture = tex[i*descLen : (i+1)*descLen : (i+1)*descLen]
	}
	return px, modes, tex
}

// Descriptor returns the current-frame descriptor of a pixel. It lets the
// texture extractor write straight into the model.
func (m *Model) Descriptor(pixel int) []float32 {
	return m.obs[pixel*m.descLen : (pixel+1)*m.descLen]
}

func (m *Model) pixelModes(pixel int) []Mode {
	n := m.params.MaxModes
	return m.modes[pixel*n : (pixel+1)*n]
}

// Params returns the model parameters.
func (m *Model) Params() Params { return m.params }

// Width returns the frame width.
func (m *Model) Width() int { return m.width }

// Height returns the frame height.
func (m *Model) Height() int { return m.height }

// Channels returns the frame channel count.
func (m *Model) Channels() int { return m.channels }

// DescriptorLength returns the texture descriptor length.
func (m *Model) DescriptorLength() int { return m.descLen }

// Frame returns the number of frames processed.
func (m *Model) Frame() uint64 { return m.frame }

// EdgeAware reports whether the bilateral smoothing pass is active.
func (m *Model) EdgeAware() bool { return m.edgeAware }

// SetMask restricts modelling to pixels where mask is nonzero. Successive
// calls AND with the previous mask. Pixels that become masked lose the
// modes they learned and report zero distance from then on.
func (m *Model) SetMask(mask *raster.Bytes) error {
	if mask == nil || mask.Width != m.width || mask.Height != m.height || mask.Channels != 1 {
		return fmt.Errorf("mask must be %dx%dx1: %w", m.width, m.height, ErrDimensionMismatch)
	}
	for i, v := range mask.Pix {
		if v == 0 && m.valid[i] {
			m.valid[i] = false
			m.clearPixel(i)
		}
	}
	return nil
}

// clearPixel drops every mode of a pixel and zeroes its distance and
// foreground outputs.
func (m *Model) clearPixel(i int) {
	modes := m.pixelModes(i)
	for s := range modes {
		view := modes[s].Texture
		clear(view)
		modes[s] = Mode{Texture: view}
	}
	m.pixels[i].reset(m.params.MaxModes)
	m.raw.Pix[i] = 0
	m.smoothed.Pix[i] = 0
	m.fg.Pix[i] = 0
}

// Masked reports whether the pixel at (x, y) is excluded from modelling.
func (m *Model) Masked(x, y int) bool { return !m.valid[y*m.width+x] }

// Process ingests one frame. A nil roi processes the whole frame; otherwise
// the state of pixels outside roi is left untouched.
func (m *Model) Process(frame *raster.Bytes, roi *raster.Rect) error {
	if frame == nil || frame.Width != m.width || frame.Height != m.height || frame.Channels != m.channels {
		return fmt.Errorf("frame must be %dx%dx%d: %w", m.width, m.height, m.channels, ErrDimensionMismatch)
	}
	r := raster.Full(m.width, m.height)
	if roi != nil {
		if !roi.Within(m.width, m.height) {
			return fmt.Errorf("%s in %dx%d: %w", roi, m.width, m.height, ErrROIOutOfBounds)
		}
		r = *roi
	}
	if r.Empty() {
		m.frame++
		return nil
	}

	m.params.LBPSource.BuildPlanes(frame, m.planes)
	m.extractor.Compute(m, r)

	ch := m.channels
	color := m.colorBuf[:ch]
	for row := r.Y0; row < r.Y1; row++ {
		for col := r.X0; col < r.X1; col++ {
			i := row*m.width + col
			off := i * ch
			if !m.valid[i] {
				m.raw.Pix[i] = 0
				m.pixels[i].CurrentLayer = 0
				copy(m.bg.Pix[off:off+ch], frame.Pix[off:off+ch])
				continue
			}
			for c := 0; c < ch; c++ {
				color[c] = float32(frame.Pix[off+c])
			}
			m.raw.Pix[i] = m.classify(i, color)
			m.paintBackground(i, frame)
		}
	}

	postproc.SmoothAndThreshold(m.smoother, m.raw, m.smoothed, frame, m.params.BgThreshold, m.fg, r)
	foreground := 0
	for row := r.Y0; row < r.Y1; row++ {
		for col := r.X0; col < r.X1; col++ {
			i := row*m.width + col
			if !m.valid[i] {
				m.fg.Pix[i] = 0
			} else if m.fg.Pix[i] != 0 {
				foreground++
			}
		}
	}

	monitoring.Diagf("[Model] frame=%d roi=%s foreground=%d/%d", m.frame, r, foreground, r.Dx()*r.Dy())
	m.frame++
	return nil
}

// paintBackground writes the mean colour of the highest-weight mode.
func (m *Model) paintBackground(pixel int, frame *raster.Bytes) {
	ch := m.channels
	off := pixel * ch
	px := &m.pixels[pixel]
	if px.Active == 0 {
		copy(m.bg.Pix[off:off+ch], frame.Pix[off:off+ch])
		return
	}
	top := &m.pixelModes(pixel)[px.Rank[0]]
	for c := 0; c < ch; c++ {
		m.bg.Pix[off+c] = toByte(top.Mean[c])
	}
}

func toByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// Foreground returns the binary mask of the last frame: 255 foreground,
// 0 background. The raster is owned by the model and overwritten by Process.
func (m *Model) Foreground() *raster.Bytes { return m.fg }

// Background returns the colour of every pixel's highest-weight mode. The
// raster is owned by the model.
func (m *Model) Background() *raster.Bytes { return m.bg }

// Distance returns the raw fused distance of the last frame's decisions.
func (m *Model) Distance() *raster.Float { return m.raw }

// SmoothedDistance returns the smoothed distance map.
func (m *Model) SmoothedDistance() *raster.Float { return m.smoothed }

// ProbabilityImage rescales the smoothed distance onto [0, 255].
func (m *Model) ProbabilityImage() *raster.Bytes {
	postproc.ProbabilityImage(m.smoothed, m.prob)
	return m.prob
}

// LayerImage returns the background colour of pixels whose last matched
// mode carries layer id, black elsewhere.
func (m *Model) LayerImage(id int) *raster.Bytes {
	ch := m.channels
	for i := range m.pixels {
		off := i * ch
		if m.valid[i] && m.pixels[i].CurrentLayer == id {
			copy(m.layerImg.Pix[off:off+ch], m.bg.Pix[off:off+ch])
			continue
		}
		for c := 0; c < ch; c++ {
			m.layerImg.Pix[off+c] = 0
		}
	}
	return m.layerImg
}
