package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// MaxModesLimit is the hard ceiling on modes per pixel.
const MaxModesLimit = 10

// TuningConfig represents the root configuration for background model
// tuning. Every field is optional: omitted fields fall back to the Get*
// defaults, so partial files are safe.
type TuningConfig struct {
	// Mode store
	MaxModes                 *int     `json:"max_modes,omitempty"`
	BackgroundModelPercent   *float64 `json:"background_model_percent,omitempty"`
	ReliableBackgroundWeight *float64 `json:"reliable_background_weight,omitempty"`
	MinLayerWeight           *float64 `json:"min_layer_weight,omitempty"`
	LayerPruning             *bool    `json:"layer_pruning,omitempty"`
	WeightHysteresis         *float64 `json:"weight_hysteresis,omitempty"`
	UnreliableInflation      *float64 `json:"unreliable_distance_inflation,omitempty"`
	InitialModeWeight        *float64 `json:"initial_mode_weight,omitempty"`

	// Thresholds
	UpdateThreshold   *float64 `json:"update_threshold,omitempty"`
	GenerateThreshold *float64 `json:"generate_threshold,omitempty"`
	BgThreshold       *float64 `json:"bg_threshold,omitempty"`
	PersistencePeriod *string  `json:"persistence_period,omitempty"` // duration string like "2s"

	// Distance metric
	TextureWeight    *float64 `json:"texture_weight,omitempty"`
	ColorWeight      *float64 `json:"color_weight,omitempty"`
	TextureTolerance *float64 `json:"texture_tolerance,omitempty"`
	ShadowRate       *float64 `json:"shadow_rate,omitempty"`
	HighlightRate    *float64 `json:"highlight_rate,omitempty"`
	ColorRangeMargin *float64 `json:"color_range_margin,omitempty"`
	NoiseOffset      *float64 `json:"noise_offset,omitempty"`
	MinNoisedAngle   *float64 `json:"min_noised_angle,omitempty"`

	// Learning rates
	FrameDuration            *float64 `json:"frame_duration,omitempty"` // seconds per frame
	ModeLearnRatePerSecond   *float64 `json:"mode_learn_rate_per_second,omitempty"`
	WeightLearnRatePerSecond *float64 `json:"weight_learn_rate_per_second,omitempty"`

	// Texture descriptor
	LBPSource    *string   `json:"lbp_source,omitempty"`
	LBPRadii     []float64 `json:"lbp_radii,omitempty"`
	LBPNeighbors []int     `json:"lbp_neighbors,omitempty"`
	LBPMargin    *float64  `json:"lbp_margin,omitempty"`

	// Post-processing
	SmoothingHalfWidth *int     `json:"smoothing_half_width,omitempty"`
	SmoothingSigma     *float64 `json:"smoothing_sigma,omitempty"`
	EdgeAwareSmoothing *bool    `json:"edge_aware_smoothing,omitempty"`

	// Snapshot persistence
	SnapshotInterval *string `json:"snapshot_interval,omitempty"` // duration string like "10m"
	// SnapshotRetention is how long stored snapshots are kept; "0s" keeps all.
	SnapshotRetention *string `json:"snapshot_retention,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the ranges of every field that is set.
func (c *TuningConfig) Validate() error {
	if c.MaxModes != nil && (*c.MaxModes < 1 || *c.MaxModes > MaxModesLimit) {
		return fmt.Errorf("max_modes must be in [1, %d], got %d", MaxModesLimit, *c.MaxModes)
	}
	unit := map[string]*float64{
		"background_model_percent":   c.BackgroundModelPercent,
		"reliable_background_weight": c.ReliableBackgroundWeight,
		"min_layer_weight":           c.MinLayerWeight,
		"initial_mode_weight":        c.InitialModeWeight,
		"update_threshold":           c.UpdateThreshold,
		"generate_threshold":         c.GenerateThreshold,
		"bg_threshold":               c.BgThreshold,
		"texture_weight":             c.TextureWeight,
		"color_weight":               c.ColorWeight,
		"texture_tolerance":          c.TextureTolerance,
	}
	for name, v := range unit {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}
	if c.TextureWeight != nil && c.ColorWeight != nil && *c.TextureWeight+*c.ColorWeight <= 0 {
		return fmt.Errorf("texture_weight and color_weight must not both be zero")
	}
	if c.UpdateThreshold != nil && c.GenerateThreshold != nil && *c.UpdateThreshold > *c.GenerateThreshold {
		return fmt.Errorf("update_threshold (%f) must not exceed generate_threshold (%f)", *c.UpdateThreshold, *c.GenerateThreshold)
	}
	if c.FrameDuration != nil && *c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive, got %f", *c.FrameDuration)
	}
	if c.SmoothingHalfWidth != nil && *c.SmoothingHalfWidth < 0 {
		return fmt.Errorf("smoothing_half_width must be non-negative, got %d", *c.SmoothingHalfWidth)
	}
	if c.UnreliableInflation != nil && *c.UnreliableInflation < 1 {
		return fmt.Errorf("unreliable_distance_inflation must be >= 1, got %f", *c.UnreliableInflation)
	}
	if len(c.LBPRadii) != len(c.LBPNeighbors) && (c.LBPRadii != nil || c.LBPNeighbors != nil) {
		return fmt.Errorf("lbp_radii (%d) and lbp_neighbors (%d) must have the same length", len(c.LBPRadii), len(c.LBPNeighbors))
	}
	for name, s := range map[string]*string{
		"persistence_period": c.PersistencePeriod,
		"snapshot_interval":  c.SnapshotInterval,
		"snapshot_retention": c.SnapshotRetention,
	} {
		if s != nil && *s != "" {
			d, err := time.ParseDuration(*s)
			if err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
			}
			if d < 0 {
				return fmt.Errorf("%s must be non-negative, got %s", name, *s)
			}
		}
	}
	return nil
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetMaxModes returns the max_modes value or the default.
func (c *TuningConfig) GetMaxModes() int {
	if c.MaxModes == nil {
		return 5
	}
	return *c.MaxModes
}

// GetBackgroundModelPercent returns the reliable-set cumulative weight cutoff.
func (c *TuningConfig) GetBackgroundModelPercent() float64 {
	return getFloat(c.BackgroundModelPercent, 0.6)
}

// GetReliableBackgroundWeight returns the max-weight above which a mode is promoted.
func (c *TuningConfig) GetReliableBackgroundWeight() float64 {
	return getFloat(c.ReliableBackgroundWeight, 0.9)
}

// GetMinLayerWeight returns the weight below which a layered mode is pruned.
func (c *TuningConfig) GetMinLayerWeight() float64 {
	return getFloat(c.MinLayerWeight, 0.0001)
}

// GetLayerPruning returns whether the layer pruning pre-pass runs.
func (c *TuningConfig) GetLayerPruning() bool {
	if c.LayerPruning == nil {
		return true
	}
	return *c.LayerPruning
}

// GetWeightHysteresis returns the hysteresis constant C.
func (c *TuningConfig) GetWeightHysteresis() float64 {
	return getFloat(c.WeightHysteresis, 5)
}

// GetUnreliableInflation returns the distance multiplier applied to unproven modes.
func (c *TuningConfig) GetUnreliableInflation() float64 {
	return getFloat(c.UnreliableInflation, 2.5)
}

// GetInitialModeWeight returns the weight of a newly created mode.
func (c *TuningConfig) GetInitialModeWeight() float64 {
	return getFloat(c.InitialModeWeight, 0.01)
}

// GetUpdateThreshold returns the distance below which a mode is updated.
func (c *TuningConfig) GetUpdateThreshold() float64 {
	return getFloat(c.UpdateThreshold, 0.2)
}

// GetGenerateThreshold returns the distance at or above which a new mode is generated.
func (c *TuningConfig) GetGenerateThreshold() float64 {
	return getFloat(c.GenerateThreshold, 0.6)
}

// GetBgThreshold returns the smoothed-distance foreground threshold.
func (c *TuningConfig) GetBgThreshold() float64 {
	return getFloat(c.BgThreshold, 0.2)
}

// GetPersistencePeriod parses and returns the persistence_period duration.
func (c *TuningConfig) GetPersistencePeriod() time.Duration {
	return getDuration(c.PersistencePeriod, 2*time.Second)
}

// GetTextureWeight returns the texture fusion weight.
func (c *TuningConfig) GetTextureWeight() float64 { return getFloat(c.TextureWeight, 0.5) }

// GetColorWeight returns the colour fusion weight.
func (c *TuningConfig) GetColorWeight() float64 { return getFloat(c.ColorWeight, 0.5) }

// GetTextureTolerance returns the binary probability tolerance of the texture distance.
func (c *TuningConfig) GetTextureTolerance() float64 { return getFloat(c.TextureTolerance, 0.5) }

// GetShadowRate returns the lower colour range multiplier.
func (c *TuningConfig) GetShadowRate() float64 { return getFloat(c.ShadowRate, 0.6) }

// GetHighlightRate returns the upper colour range multiplier.
func (c *TuningConfig) GetHighlightRate() float64 { return getFloat(c.HighlightRate, 1.2) }

// GetColorRangeMargin returns the additive colour range margin.
func (c *TuningConfig) GetColorRangeMargin() float64 { return getFloat(c.ColorRangeMargin, 5) }

// GetNoiseOffset returns the colour noise offset used for the noise-floor angle.
func (c *TuningConfig) GetNoiseOffset() float64 { return getFloat(c.NoiseOffset, 6) }

// GetMinNoisedAngle returns the minimum noise-floor angle in radians.
func (c *TuningConfig) GetMinNoisedAngle() float64 { return getFloat(c.MinNoisedAngle, 0.01) }

// GetFrameDuration returns seconds per frame.
func (c *TuningConfig) GetFrameDuration() float64 { return getFloat(c.FrameDuration, 0.04) }

// GetModeLearnRatePerSecond returns the mode appearance learning rate per second.
func (c *TuningConfig) GetModeLearnRatePerSecond() float64 {
	return getFloat(c.ModeLearnRatePerSecond, 0.25)
}

// GetWeightLearnRatePerSecond returns the mode weight learning rate per second.
func (c *TuningConfig) GetWeightLearnRatePerSecond() float64 {
	return getFloat(c.WeightLearnRatePerSecond, 0.25)
}

// GetLBPSource returns the texture source plane selection.
func (c *TuningConfig) GetLBPSource() string {
	if c.LBPSource == nil || *c.LBPSource == "" {
		return "gray"
	}
	return *c.LBPSource
}

// GetLBPRadii returns the neighbour radius of each descriptor level.
func (c *TuningConfig) GetLBPRadii() []float64 {
	if len(c.LBPRadii) == 0 {
		return []float64{2}
	}
	return append([]float64(nil), c.LBPRadii...)
}

// GetLBPNeighbors returns the neighbour count of each descriptor level.
func (c *TuningConfig) GetLBPNeighbors() []int {
	if len(c.LBPNeighbors) == 0 {
		return []int{6}
	}
	return append([]int(nil), c.LBPNeighbors...)
}

// GetLBPMargin returns the robustness margin of the binary comparison.
func (c *TuningConfig) GetLBPMargin() float64 { return getFloat(c.LBPMargin, 3) }

// GetSmoothingHalfWidth returns the Gaussian kernel half width.
func (c *TuningConfig) GetSmoothingHalfWidth() int {
	if c.SmoothingHalfWidth == nil {
		return 6
	}
	return *c.SmoothingHalfWidth
}

// GetSmoothingSigma returns the Gaussian sigma.
func (c *TuningConfig) GetSmoothingSigma() float64 { return getFloat(c.SmoothingSigma, 2.5) }

// GetEdgeAwareSmoothing returns whether the bilateral pass is requested.
func (c *TuningConfig) GetEdgeAwareSmoothing() bool {
	if c.EdgeAwareSmoothing == nil {
		return false
	}
	return *c.EdgeAwareSmoothing
}

// GetSnapshotInterval parses and returns the snapshot_interval duration.
func (c *TuningConfig) GetSnapshotInterval() time.Duration {
	return getDuration(c.SnapshotInterval, 10*time.Minute)
}

// GetSnapshotRetention parses and returns the snapshot_retention duration.
func (c *TuningConfig) GetSnapshotRetention() time.Duration {
	return getDuration(c.SnapshotRetention, 24*time.Hour)
}
