package bgmodel

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/layerbg/internal/lbp"
	"github.com/banshee-data/layerbg/internal/raster"
)

func TestNewRejectsBadConfiguration(t *testing.T) {
	p := testParams()

	_, err := New(0, 10, 3, p)
	assert.Error(t, err)
	_, err = New(10, -1, 3, p)
	assert.Error(t, err)
	_, err = New(10, 10, 2, p)
	assert.Error(t, err)

	tooMany := p
	tooMany.MaxModes = MaxModesLimit + 1
	_, err = New(10, 10, 3, tooMany)
	assert.Error(t, err)

	inverted := p
	inverted.UpdateThreshold, inverted.GenerateThreshold = 0.7, 0.3
	_, err = New(10, 10, 3, inverted)
	assert.Error(t, err)
}

func TestColdStart(t *testing.T) {
	m := newTestModel(t, 8, 6, 3, testParams())
	require.NoError(t, m.Process(uniformFrame(8, 6, 3, 128), nil))

	for _, st := range allPixelStates(t, m) {
		require.Equal(t, 1, st.Active)
		require.Len(t, st.Modes, 1)
		assert.Equal(t, float32(1), st.Modes[0].Weight)
		assert.Equal(t, 0, st.Modes[0].Layer)
		assert.Equal(t, []float32{128, 128, 128}, st.Modes[0].Mean)
	}
	for _, d := range m.Distance().Pix {
		require.Zero(t, d)
	}
	for _, v := range m.Foreground().Pix {
		require.Zero(t, v)
	}
	assert.Equal(t, uint64(1), m.Frame())
	require.NoError(t, m.CheckInvariants())
}

func TestStableSceneIsBackground(t *testing.T) {
	m := newTestModel(t, 16, 12, 3, testParams())
	feed(t, m, uniformFrame(16, 12, 3, 128), 51)

	for i, v := range m.Foreground().Pix {
		require.Zero(t, v, "pixel %d", i)
	}
	for i, v := range m.Background().Pix {
		require.Equal(t, uint8(128), v, "byte %d", i)
	}
	st, err := m.PixelState(8, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.Modes[0].Layer, "stable mode is promoted to the first layer")
	assert.Equal(t, 1, st.CurrentLayer)
	assert.Equal(t, uint64(1), st.Modes[0].PromotedAt)
	require.NoError(t, m.CheckInvariants())
}

func TestShadowMatchesBackground(t *testing.T) {
	m := newTestModel(t, 16, 12, 3, testParams())
	feed(t, m, uniformFrame(16, 12, 3, 128), 30)

	require.NoError(t, m.Process(uniformFrame(16, 12, 3, 100), nil))
	assert.Zero(t, m.Distance().At(6, 8))
	assert.Zero(t, m.Foreground().At(6, 8, 0))

	st, err := m.PixelState(8, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Active, "a darker shade of the same colour must not create a mode")
}

func TestPersistentObjectIsAbsorbed(t *testing.T) {
	const w, h = 40, 40
	m := newTestModel(t, w, h, 3, testParams())
	require.Equal(t, 50, m.Params().PersistenceFrames)

	feed(t, m, uniformFrame(w, h, 3, 128), 60)
	require.Zero(t, m.Foreground().At(20, 20, 0))

	frame := uniformFrame(w, h, 3, 128)
	frame.FillRect(raster.R(10, 10, 30, 30), 230)

	for k := 1; k <= 60; k++ {
		require.NoError(t, m.Process(frame, nil))
		st, err := m.PixelState(20, 20)
		require.NoError(t, err)
		require.Equal(t, 1, st.Active, "frame %d: absorption must not create a mode", k)

		fg := m.Foreground().At(20, 20, 0)
		switch {
		case k <= 50:
			require.Equal(t, uint8(255), fg, "frame %d: object should be foreground", k)
			assert.InDelta(t, 0.5, m.Distance().At(20, 20), 1e-6)
		case k >= 52:
			require.Equal(t, uint8(0), fg, "frame %d: object should be absorbed", k)
		}
	}

	st, err := m.PixelState(20, 20)
	require.NoError(t, err)
	assertMean(t, []float32{230, 230, 230}, st.Modes[0].Mean)
	assert.Equal(t, uint8(230), m.Background().At(20, 20, 0))
	require.NoError(t, m.CheckInvariants())
}

func colorOnlyParams() Params {
	cfg := BuiltinConfig().WithFusionWeights(0, 1)
	return cfg.ToParams()
}

func TestNovelColourCreatesMode(t *testing.T) {
	p := colorOnlyParams()
	p.MaxModes = 2
	m := newTestModel(t, 6, 6, 3, p)
	feed(t, m, uniformFrame(6, 6, 3, 128), 10)

	require.NoError(t, m.Process(uniformFrame(6, 6, 3, 230, 20, 20), nil))
	st, err := m.PixelState(3, 3)
	require.NoError(t, err)
	require.Equal(t, 2, st.Active)
	assert.Equal(t, []float32{230, 20, 20}, st.Modes[1].Mean)
	assert.Equal(t, 0, st.CurrentLayer)
	assert.Equal(t, float32(1), m.Distance().At(3, 3))
	assert.Equal(t, uint8(255), m.Foreground().At(3, 3, 0))

	// A full pixel overwrites its lowest-ranked mode.
	require.NoError(t, m.Process(uniformFrame(6, 6, 3, 10, 200, 10), nil))
	st, err = m.PixelState(3, 3)
	require.NoError(t, err)
	require.Equal(t, 2, st.Active)
	assertMean(t, []float32{128, 128, 128}, st.Modes[0].Mean)
	assert.Equal(t, []float32{10, 200, 10}, st.Modes[1].Mean)
	require.NoError(t, m.CheckInvariants())
}

func TestLayerPromotionAndPruning(t *testing.T) {
	p := colorOnlyParams()
	p.WeightHysteresis = 0
	p.WeightLearnRate = 0.2
	m := newTestModel(t, 3, 3, 3, p)

	feed(t, m, uniformFrame(3, 3, 3, 128), 5)
	st, err := m.PixelState(1, 1)
	require.NoError(t, err)
	require.Equal(t, 1, st.Modes[0].Layer)

	maxLayerSeen := 0
	for k := 0; k < 200; k++ {
		require.NoError(t, m.Process(uniformFrame(3, 3, 3, 230, 20, 20), nil))
		require.NoError(t, m.CheckInvariants(), "frame %d", k)
		st, err = m.PixelState(1, 1)
		require.NoError(t, err)
		for _, md := range st.Modes {
			if md.Layer > maxLayerSeen {
				maxLayerSeen = md.Layer
			}
		}
	}
	assert.Equal(t, 2, maxLayerSeen, "the new colour is promoted above the old layer")

	require.Equal(t, 1, st.Active, "the old layer decays below the minimum weight and is pruned")
	assertMean(t, []float32{230, 20, 20}, st.Modes[0].Mean)
	assert.Equal(t, 1, st.Modes[0].Layer, "layers are renumbered after pruning")
	assert.Equal(t, 1, st.CurrentLayer)
}

func TestMaskedPixelsAreNeverModelled(t *testing.T) {
	const w, h = 12, 10
	m := newTestModel(t, w, h, 3, testParams())

	mask := raster.NewBytes(w, h, 1)
	mask.Fill(255)
	mask.FillRect(raster.R(0, 0, 4, 10), 0)
	require.NoError(t, m.SetMask(mask))

	// A second mask is ANDed with the first.
	second := raster.NewBytes(w, h, 1)
	second.Fill(1)
	second.FillRect(raster.R(10, 0, 12, 2), 0)
	require.NoError(t, m.SetMask(second))

	assert.Error(t, m.SetMask(raster.NewBytes(w, h+1, 1)))

	rng := rand.New(rand.NewSource(3))
	for k := 0; k < 40; k++ {
		require.NoError(t, m.Process(randomFrame(rng, w, h, 3), nil))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				masked := x < 4 || (x >= 10 && y < 2)
				require.Equal(t, masked, m.Masked(x, y), "(%d,%d)", x, y)
				if !masked {
					continue
				}
				require.Zero(t, m.Distance().At(y, x))
				require.Zero(t, m.Foreground().At(y, x, 0))
				st, err := m.PixelState(x, y)
				require.NoError(t, err)
				require.Zero(t, st.Active)
			}
		}
	}
	assert.Equal(t, 4*10+2*2, m.Stats().MaskedPixels)
	require.NoError(t, m.CheckInvariants())
}

func TestMaskAfterTrainingDropsModes(t *testing.T) {
	const w, h = 8, 8
	m := newTestModel(t, w, h, 3, testParams())
	feed(t, m, uniformFrame(w, h, 3, 90, 120, 60), 5)
	require.Equal(t, w*h, m.Stats().ActiveModes)

	mask := raster.NewBytes(w, h, 1)
	mask.Fill(255)
	mask.FillRect(raster.R(0, 0, 2, h), 0)
	require.NoError(t, m.SetMask(mask))

	require.NoError(t, m.CheckInvariants())
	assert.Equal(t, (w-2)*h, m.Stats().ActiveModes)
	st, err := m.PixelState(0, 0)
	require.NoError(t, err)
	assert.Zero(t, st.Active)
	assert.Zero(t, st.CurrentLayer)
	assert.Zero(t, m.Distance().At(0, 0))

	feed(t, m, uniformFrame(w, h, 3, 90, 120, 60), 1)
	require.NoError(t, m.CheckInvariants())
	assert.Equal(t, (w-2)*h, m.Stats().ActiveModes)

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf, SaveInfo))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	pixels := lines[len(lines)-w*h:]
	assert.True(t, strings.HasPrefix(pixels[0], "0 0 0 "), "masked pixel saved as %q", pixels[0])
	assert.True(t, strings.HasPrefix(pixels[2], "1 "), "modelled pixel saved as %q", pixels[2])
}

func TestNewValidatesParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"background percent zero", func(p *Params) { p.BackgroundModelPercent = 0 }},
		{"reliable weight above one", func(p *Params) { p.ReliableBackgroundWeight = 1.5 }},
		{"min layer weight one", func(p *Params) { p.MinLayerWeight = 1 }},
		{"negative hysteresis", func(p *Params) { p.WeightHysteresis = -1 }},
		{"generate above one", func(p *Params) { p.GenerateThreshold = 1.5 }},
		{"bg threshold", func(p *Params) { p.BgThreshold = -0.1 }},
		{"negative persistence", func(p *Params) { p.PersistenceFrames = -1 }},
		{"frame seconds", func(p *Params) { p.FrameSeconds = 0 }},
		{"learn rate above one", func(p *Params) { p.ModeLearnRate = 2 }},
		{"fusion weights", func(p *Params) { p.Metric.TextureWeight, p.Metric.ColorWeight = 0, 0 }},
		{"shadow rate", func(p *Params) { p.Metric.ShadowRate = 0 }},
		{"no lbp levels", func(p *Params) { p.LBPLevels = nil }},
		{"lbp neighbours", func(p *Params) { p.LBPLevels = []lbp.Level{{Radius: 1, Neighbors: 0}} }},
		{"sigma", func(p *Params) { p.SmoothingSigma = 0 }},
		{"half width", func(p *Params) { p.SmoothingHalfWidth = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := testParams()
			tc.mutate(&p)
			_, err := New(8, 8, 3, p)
			assert.Error(t, err)
		})
	}
}

func TestROILeavesOtherPixelsUntouched(t *testing.T) {
	const w, h = 12, 12
	m := newTestModel(t, w, h, 3, colorOnlyParams())
	feed(t, m, uniformFrame(w, h, 3, 128), 10)
	before := allPixelStates(t, m)
	roi := raster.R(2, 3, 7, 9)
	require.NoError(t, m.Process(uniformFrame(w, h, 3, 10, 200, 10), &roi))
	after := allPixelStates(t, m)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if roi.Contains(x, y) {
				assert.Equal(t, 2, after[i].Active, "(%d,%d) inside roi", x, y)
				continue
			}
			if diff := cmp.Diff(before[i], after[i]); diff != "" {
				t.Fatalf("(%d,%d) outside roi changed (-before +after):\n%s", x, y, diff)
			}
		}
	}

	bad := raster.R(5, 5, 13, 8)
	assert.ErrorIs(t, m.Process(uniformFrame(w, h, 3, 1), &bad), ErrROIOutOfBounds)

	empty := raster.R(4, 4, 4, 8)
	require.NoError(t, m.Process(uniformFrame(w, h, 3, 1), &empty))
	if diff := cmp.Diff(after, allPixelStates(t, m)); diff != "" {
		t.Fatalf("empty roi changed state:\n%s", diff)
	}
}

func TestProcessRejectsWrongShape(t *testing.T) {
	m := newTestModel(t, 8, 8, 3, testParams())
	assert.ErrorIs(t, m.Process(uniformFrame(8, 7, 3, 0), nil), ErrDimensionMismatch)
	assert.ErrorIs(t, m.Process(uniformFrame(8, 8, 1, 0), nil), ErrDimensionMismatch)
	assert.ErrorIs(t, m.Process(nil, nil), ErrDimensionMismatch)
	assert.Zero(t, m.Frame())
}

func TestInvariantsHoldUnderRandomInput(t *testing.T) {
	p := testParams()
	p.MaxModes = 3
	m := newTestModel(t, 12, 10, 3, p)

	rng := rand.New(rand.NewSource(11))
	base := randomFrame(rng, 12, 10, 3)
	for k := 0; k < 120; k++ {
		f := base
		if k%4 == 3 {
			f = randomFrame(rng, 12, 10, 3)
		}
		require.NoError(t, m.Process(f, nil))
		require.NoError(t, m.CheckInvariants(), "frame %d", k)
		for _, d := range m.Distance().Pix {
			require.GreaterOrEqual(t, d, float32(0))
			require.LessOrEqual(t, d, float32(1))
		}
	}

	s := m.Stats()
	assert.Equal(t, uint64(120), s.Frame)
	assert.Equal(t, 120, s.Pixels)
	assert.LessOrEqual(t, s.ActiveModes, 3*120)
	assert.Zero(t, s.ModeHistogram[0])
}

func TestGrayFrames(t *testing.T) {
	cfg := BuiltinConfig()
	m, err := NewFromConfig(10, 10, 1, cfg)
	require.NoError(t, err)
	feed(t, m, uniformFrame(10, 10, 1, 90), 20)
	assert.Equal(t, uint8(90), m.Background().At(5, 5, 0))
	assert.Zero(t, m.Foreground().At(5, 5, 0))

	bad := BuiltinConfig().WithMaxModes(0)
	_, err = NewFromConfig(10, 10, 1, bad)
	assert.Error(t, err)
}

func TestLayerAndProbabilityImages(t *testing.T) {
	m := newTestModel(t, 6, 6, 3, colorOnlyParams())
	feed(t, m, uniformFrame(6, 6, 3, 128), 5)

	layer1 := m.LayerImage(1)
	assert.Equal(t, uint8(128), layer1.At(2, 2, 1))
	layer2 := m.LayerImage(2)
	assert.Zero(t, layer2.At(2, 2, 1))

	require.NoError(t, m.Process(uniformFrame(6, 6, 3, 230, 20, 20), nil))
	prob := m.ProbabilityImage()
	assert.Equal(t, uint8(255), prob.At(3, 3, 0))
	assert.Zero(t, m.LayerImage(1).At(3, 3, 0), "foreground pixels carry no layer")
}

func TestConfigToParams(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	p := cfg.ToParams()
	assert.Equal(t, 5, p.MaxModes)
	assert.InDelta(t, 0.01, p.ModeLearnRate, 1e-7)
	assert.InDelta(t, 0.01, p.WeightLearnRate, 1e-7)
	assert.Equal(t, 50, p.PersistenceFrames)
	assert.InDelta(t, 0.5, p.Metric.TextureWeight, 1e-7)

	cfg.WithFrameDuration(100 * time.Millisecond).WithPersistencePeriod(time.Second).WithFusionWeights(3, 1)
	p = cfg.ToParams()
	assert.Equal(t, 10, p.PersistenceFrames)
	assert.InDelta(t, 0.025, p.ModeLearnRate, 1e-7)
	assert.InDelta(t, 0.75, p.Metric.TextureWeight, 1e-7)
	assert.InDelta(t, 0.25, p.Metric.ColorWeight, 1e-7)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"max modes zero", func(c *Config) { c.MaxModes = 0 }},
		{"max modes above limit", func(c *Config) { c.MaxModes = 11 }},
		{"update above generate", func(c *Config) { c.WithThresholds(0.7, 0.5, 0.2) }},
		{"frame duration", func(c *Config) { c.FrameDuration = 0 }},
		{"no lbp levels", func(c *Config) { c.LBPLevels = nil }},
		{"zero fusion weights", func(c *Config) { c.WithFusionWeights(0, 0) }},
		{"sigma", func(c *Config) { c.WithSmoothing(3, 0) }},
		{"inflation", func(c *Config) { c.UnreliableInflation = 0.5 }},
		{"shadow above highlight", func(c *Config) { c.Metric.ShadowRate = 2 }},
		{"learn rate above one per frame", func(c *Config) { c.WithLearnRates(30, 0.25) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := BuiltinConfig()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
