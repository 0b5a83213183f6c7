package bgmodel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/layerbg/internal/monitoring"
	"github.com/banshee-data/layerbg/internal/raster"
)

func init() {
	monitoring.SetLogger(nil)
}

func testParams() Params {
	return BuiltinConfig().ToParams()
}

func newTestModel(t *testing.T, w, h, ch int, p Params) *Model {
	t.Helper()
	m, err := New(w, h, ch, p)
	require.NoError(t, err)
	return m
}

func uniformFrame(w, h, ch int, v ...uint8) *raster.Bytes {
	f := raster.NewBytes(w, h, ch)
	f.Fill(v...)
	return f
}

func randomFrame(rng *rand.Rand, w, h, ch int) *raster.Bytes {
	f := raster.NewBytes(w, h, ch)
	rng.Read(f.Pix)
	return f
}

func feed(t *testing.T, m *Model, f *raster.Bytes, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, m.Process(f, nil))
	}
}

func allPixelStates(t *testing.T, m *Model) []PixelState {
	t.Helper()
	out := make([]PixelState, 0, m.Width()*m.Height())
	for y := 0; y < m.Height(); y++ {
		for x := 0; x < m.Width(); x++ {
			st, err := m.PixelState(x, y)
			require.NoError(t, err)
			out = append(out, st)
		}
	}
	return out
}

// assertMean compares colours that went through the moving-average update.
func assertMean(t *testing.T, want, got []float32) {
	t.Helper()
	require.Len(t, got, len(want))
	for c := range want {
		assert.InDelta(t, want[c], got[c], 1e-3, "channel %d", c)
	}
}
