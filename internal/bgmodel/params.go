package bgmodel

import (
	"github.com/banshee-data/layerbg/internal/distance"
	"github.com/banshee-data/layerbg/internal/lbp"
)

// Params is the immutable per-model configuration with learning rates
// already converted to per-frame values.
type Params struct {
	MaxModes                 int
	BackgroundModelPercent   float32
	ReliableBackgroundWeight float32
	MinLayerWeight           float32
	LayerPruning             bool
	WeightHysteresis         float32
	UnreliableInflation      float32
	InitialModeWeight        float32

	UpdateThreshold    float32
	GenerateThreshold  float32
	BgThreshold        float32
	PersistenceFrames  int // conditional matches tolerated before absorption
	FrameSeconds       float32

	ModeLearnRate   float32 // α, per frame
	WeightLearnRate float32 // α_w, per frame

	Metric distance.Params

	LBPSource lbp.SourceMode
	LBPLevels []lbp.Level
	LBPMargin float32

	SmoothingHalfWidth int
	SmoothingSigma     float32
	EdgeAwareSmoothing bool
}

// DefaultParams returns the compiled-in defaults.
func DefaultParams() Params {
	return BuiltinConfig().ToParams()
}
