package bgmodel

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/layerbg/internal/config"
	"github.com/banshee-data/layerbg/internal/distance"
	"github.com/banshee-data/layerbg/internal/lbp"
)

// MaxModesLimit is the hard ceiling on modes per pixel.
const MaxModesLimit = config.MaxModesLimit

// Config provides a configuration builder for Params. Rates are expressed
// per second and converted to per-frame rates by ToParams.
type Config struct {
	// Mode store
	MaxModes                 int     // Modes per pixel (default: 5)
	BackgroundModelPercent   float32 // Reliable-set cumulative weight (default: 0.6)
	ReliableBackgroundWeight float32 // Max weight for promotion (default: 0.9)
	MinLayerWeight           float32 // Weight below which layered modes are pruned (default: 0.0001)
	LayerPruning             bool    // Run the pruning pre-pass (default: true)
	WeightHysteresis         float32 // Hysteresis constant C (default: 5)
	UnreliableInflation      float32 // Distance multiplier for unproven modes (default: 2.5)
	InitialModeWeight        float32 // Weight of a new mode (default: 0.01)

	// Thresholds
	UpdateThreshold   float32       // Match distance for update (default: 0.2)
	GenerateThreshold float32       // Distance at which a new mode is generated (default: 0.6)
	BgThreshold       float32       // Smoothed distance foreground threshold (default: 0.2)
	PersistencePeriod time.Duration // Conditional-foreground absorption time (default: 2s)

	// Distance metric
	Metric distance.Params

	// Learning rates
	FrameDuration            time.Duration // Time per frame (default: 40ms)
	ModeLearnRatePerSecond   float32       // Appearance learning rate (default: 0.25)
	WeightLearnRatePerSecond float32       // Weight learning rate (default: 0.25)

	// Texture descriptor
	LBPSource lbp.SourceMode
	LBPLevels []lbp.Level
	LBPMargin float32

	// Post-processing
	SmoothingHalfWidth int
	SmoothingSigma     float32
	EdgeAwareSmoothing bool
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults
// file (config/tuning.defaults.json). Panics if the file cannot be found,
// intended for tests and binaries that have already validated config availability.
func DefaultConfig() *Config {
	c, err := ConfigFromTuning(config.MustLoadDefaultConfig())
	if err != nil {
		panic(err)
	}
	return c
}

// BuiltinConfig returns the compiled-in defaults without reading any file.
func BuiltinConfig() *Config {
	c, err := ConfigFromTuning(config.EmptyTuningConfig())
	if err != nil {
		panic(err)
	}
	return c
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) (*Config, error) {
	src, err := lbp.ParseSourceMode(cfg.GetLBPSource())
	if err != nil {
		return nil, err
	}
	radii, neighbors := cfg.GetLBPRadii(), cfg.GetLBPNeighbors()
	if len(radii) != len(neighbors) {
		return nil, fmt.Errorf("lbp_radii (%d) and lbp_neighbors (%d) differ in length", len(radii), len(neighbors))
	}
	levels := make([]lbp.Level, len(radii))
	for i := range radii {
		levels[i] = lbp.Level{Radius: radii[i], Neighbors: neighbors[i]}
	}

	return &Config{
		MaxModes:                 cfg.GetMaxModes(),
		BackgroundModelPercent:   float32(cfg.GetBackgroundModelPercent()),
		ReliableBackgroundWeight: float32(cfg.GetReliableBackgroundWeight()),
		MinLayerWeight:           float32(cfg.GetMinLayerWeight()),
		LayerPruning:             cfg.GetLayerPruning(),
		WeightHysteresis:         float32(cfg.GetWeightHysteresis()),
		UnreliableInflation:      float32(cfg.GetUnreliableInflation()),
		InitialModeWeight:        float32(cfg.GetInitialModeWeight()),
		UpdateThreshold:          float32(cfg.GetUpdateThreshold()),
		GenerateThreshold:        float32(cfg.GetGenerateThreshold()),
		BgThreshold:              float32(cfg.GetBgThreshold()),
		PersistencePeriod:        cfg.GetPersistencePeriod(),
		Metric: distance.Params{
			TextureWeight:    float32(cfg.GetTextureWeight()),
			ColorWeight:      float32(cfg.GetColorWeight()),
			TextureTolerance: float32(cfg.GetTextureTolerance()),
			ShadowRate:       float32(cfg.GetShadowRate()),
			HighlightRate:    float32(cfg.GetHighlightRate()),
			RangeMargin:      float32(cfg.GetColorRangeMargin()),
			NoiseOffset:      float32(cfg.GetNoiseOffset()),
			MinNoisedAngle:   float32(cfg.GetMinNoisedAngle()),
		},
		FrameDuration:            time.Duration(math.Round(cfg.GetFrameDuration() * float64(time.Second))),
		ModeLearnRatePerSecond:   float32(cfg.GetModeLearnRatePerSecond()),
		WeightLearnRatePerSecond: float32(cfg.GetWeightLearnRatePerSecond()),
		LBPSource:                src,
		LBPLevels:                levels,
		LBPMargin:                float32(cfg.GetLBPMargin()),
		SmoothingHalfWidth:       cfg.GetSmoothingHalfWidth(),
		SmoothingSigma:           float32(cfg.GetSmoothingSigma()),
		EdgeAwareSmoothing:       cfg.GetEdgeAwareSmoothing(),
	}, nil
}

// Validate checks if the configuration is valid.
// Returns an error if any parameter is out of acceptable range.
func (c *Config) Validate() error {
	if c.MaxModes < 1 || c.MaxModes > MaxModesLimit {
		return fmt.Errorf("MaxModes must be in [1, %d], got %d", MaxModesLimit, c.MaxModes)
	}
	if c.BackgroundModelPercent <= 0 || c.BackgroundModelPercent > 1 {
		return fmt.Errorf("BackgroundModelPercent must be in (0, 1], got %f", c.BackgroundModelPercent)
	}
	if c.ReliableBackgroundWeight <= 0 || c.ReliableBackgroundWeight > 1 {
		return fmt.Errorf("ReliableBackgroundWeight must be in (0, 1], got %f", c.ReliableBackgroundWeight)
	}
	if c.MinLayerWeight < 0 || c.MinLayerWeight >= 1 {
		return fmt.Errorf("MinLayerWeight must be in [0, 1), got %f", c.MinLayerWeight)
	}
	if c.InitialModeWeight <= 0 || c.InitialModeWeight > 1 {
		return fmt.Errorf("InitialModeWeight must be in (0, 1], got %f", c.InitialModeWeight)
	}
	if c.WeightHysteresis < 0 {
		return fmt.Errorf("WeightHysteresis must be non-negative, got %f", c.WeightHysteresis)
	}
	if c.UnreliableInflation < 1 {
		return fmt.Errorf("UnreliableInflation must be >= 1, got %f", c.UnreliableInflation)
	}
	if c.UpdateThreshold < 0 || c.UpdateThreshold > c.GenerateThreshold {
		return fmt.Errorf("UpdateThreshold must be in [0, GenerateThreshold=%f], got %f", c.GenerateThreshold, c.UpdateThreshold)
	}
	if c.GenerateThreshold > 1 {
		return fmt.Errorf("GenerateThreshold must be <= 1, got %f", c.GenerateThreshold)
	}
	if c.BgThreshold < 0 || c.BgThreshold > 1 {
		return fmt.Errorf("BgThreshold must be in [0, 1], got %f", c.BgThreshold)
	}
	if c.PersistencePeriod < 0 {
		return fmt.Errorf("PersistencePeriod must be non-negative, got %v", c.PersistencePeriod)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("FrameDuration must be positive, got %v", c.FrameDuration)
	}
	if c.ModeLearnRatePerSecond < 0 || c.WeightLearnRatePerSecond < 0 {
		return fmt.Errorf("learning rates must be non-negative, got %f/%f", c.ModeLearnRatePerSecond, c.WeightLearnRatePerSecond)
	}
	if dt := float32(c.FrameDuration.Seconds()); c.ModeLearnRatePerSecond*dt > 1 || c.WeightLearnRatePerSecond*dt > 1 {
		return fmt.Errorf("learning rates exceed one per frame at %v per frame, got %f/%f", c.FrameDuration, c.ModeLearnRatePerSecond, c.WeightLearnRatePerSecond)
	}
	if c.Metric.TextureWeight < 0 || c.Metric.ColorWeight < 0 || c.Metric.TextureWeight+c.Metric.ColorWeight <= 0 {
		return fmt.Errorf("TextureWeight/ColorWeight must be non-negative with a positive sum, got %f/%f", c.Metric.TextureWeight, c.Metric.ColorWeight)
	}
	if c.Metric.ShadowRate <= 0 || c.Metric.HighlightRate < c.Metric.ShadowRate {
		return fmt.Errorf("ShadowRate must be positive and <= HighlightRate, got %f/%f", c.Metric.ShadowRate, c.Metric.HighlightRate)
	}
	if len(c.LBPLevels) == 0 {
		return fmt.Errorf("at least one LBP level is required")
	}
	for i, lv := range c.LBPLevels {
		if lv.Radius <= 0 || lv.Neighbors <= 0 {
			return fmt.Errorf("LBP level %d must have positive radius and neighbours, got %g/%d", i, lv.Radius, lv.Neighbors)
		}
	}
	if c.SmoothingHalfWidth < 0 {
		return fmt.Errorf("SmoothingHalfWidth must be non-negative, got %d", c.SmoothingHalfWidth)
	}
	if c.SmoothingSigma <= 0 {
		return fmt.Errorf("SmoothingSigma must be positive, got %f", c.SmoothingSigma)
	}
	return nil
}

// ToParams converts the config to Params for use with New.
func (c *Config) ToParams() Params {
	dt := float32(c.FrameDuration.Seconds())
	return Params{
		MaxModes:                 c.MaxModes,
		BackgroundModelPercent:   c.BackgroundModelPercent,
		ReliableBackgroundWeight: c.ReliableBackgroundWeight,
		MinLayerWeight:           c.MinLayerWeight,
		LayerPruning:             c.LayerPruning,
		WeightHysteresis:         c.WeightHysteresis,
		UnreliableInflation:      c.UnreliableInflation,
		InitialModeWeight:        c.InitialModeWeight,
		UpdateThreshold:          c.UpdateThreshold,
		GenerateThreshold:        c.GenerateThreshold,
		BgThreshold:              c.BgThreshold,
		PersistenceFrames:        int(c.PersistencePeriod / c.FrameDuration),
		FrameSeconds:             dt,
		ModeLearnRate:            c.ModeLearnRatePerSecond * dt,
		WeightLearnRate:          c.WeightLearnRatePerSecond * dt,
		Metric:                   c.Metric.Normalized(),
		LBPSource:                c.LBPSource,
		LBPLevels:                append([]lbp.Level(nil), c.LBPLevels...),
		LBPMargin:                c.LBPMargin,
		SmoothingHalfWidth:       c.SmoothingHalfWidth,
		SmoothingSigma:           c.SmoothingSigma,
		EdgeAwareSmoothing:       c.EdgeAwareSmoothing,
	}
}

// WithMaxModes sets the number of modes per pixel.
func (c *Config) WithMaxModes(n int) *Config {
	c.MaxModes = n
	return c
}

// WithThresholds sets the update, generate and foreground thresholds.
func (c *Config) WithThresholds(update, generate, bg float32) *Config {
	c.UpdateThreshold = update
	c.GenerateThreshold = generate
	c.BgThreshold = bg
	return c
}

// WithPersistencePeriod sets how long a conditional match lasts before absorption.
func (c *Config) WithPersistencePeriod(d time.Duration) *Config {
	c.PersistencePeriod = d
	return c
}

// WithFrameDuration sets the time per frame.
func (c *Config) WithFrameDuration(d time.Duration) *Config {
	c.FrameDuration = d
	return c
}

// WithLearnRates sets the per-second mode and weight learning rates.
func (c *Config) WithLearnRates(mode, weight float32) *Config {
	c.ModeLearnRatePerSecond = mode
	c.WeightLearnRatePerSecond = weight
	return c
}

// WithFusionWeights sets the texture and colour weights of the fused distance.
func (c *Config) WithFusionWeights(texture, color float32) *Config {
	c.Metric.TextureWeight = texture
	c.Metric.ColorWeight = color
	return c
}

// WithLBP sets the texture descriptor source, levels and margin.
func (c *Config) WithLBP(src lbp.SourceMode, levels []lbp.Level, margin float32) *Config {
	c.LBPSource = src
	c.LBPLevels = append([]lbp.Level(nil), levels...)
	c.LBPMargin = margin
	return c
}

// WithSmoothing sets the Gaussian half width and sigma.
func (c *Config) WithSmoothing(halfWidth int, sigma float32) *Config {
	c.SmoothingHalfWidth = halfWidth
	c.SmoothingSigma = sigma
	return c
}

// WithEdgeAwareSmoothing requests the bilateral pass when available.
func (c *Config) WithEdgeAwareSmoothing(enabled bool) *Config {
	c.EdgeAwareSmoothing = enabled
	return c
}

// WithLayerPruning enables or disables the pruning pre-pass.
func (c *Config) WithLayerPruning(enabled bool) *Config {
	c.LayerPruning = enabled
	return c
}
