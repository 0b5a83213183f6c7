package diag

import (
	"bytes"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/layerbg/internal/bgmodel"
	"github.com/banshee-data/layerbg/internal/monitoring"
	"github.com/banshee-data/layerbg/internal/raster"
)

func init() {
	monitoring.SetLogger(nil)
}

func newModel(t *testing.T, w, h int) *bgmodel.Model {
	t.Helper()
	m, err := bgmodel.NewFromConfig(w, h, 3, bgmodel.BuiltinConfig())
	require.NoError(t, err)
	return m
}

func feedUniform(t *testing.T, m *bgmodel.Model, n int, v ...uint8) {
	t.Helper()
	f := raster.NewBytes(m.Width(), m.Height(), m.Channels())
	f.Fill(v...)
	for i := 0; i < n; i++ {
		require.NoError(t, m.Process(f, nil))
	}
}

func TestParsePoints(t *testing.T) {
	tests := []struct {
		in      string
		want    []image.Point
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "1,2", want: []image.Point{{1, 2}}},
		{in: "1,2; 30, 40 ;", want: []image.Point{{1, 2}, {30, 40}}},
		{in: "1", wantErr: true},
		{in: "a,2", wantErr: true},
		{in: "1,b", wantErr: true},
		{in: "-1,2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePoints(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPixelPlotterSampling(t *testing.T) {
	m := newModel(t, 12, 10)
	pp := NewPixelPlotter([]image.Point{{2, 3}, {11, 9}, {50, 50}})

	// Disabled plotters ignore samples.
	feedUniform(t, m, 1, 100, 100, 100)
	pp.Sample(m)
	assert.Equal(t, 0, pp.GetSampleCount())
	assert.False(t, pp.IsEnabled())

	dir := filepath.Join(t.TempDir(), "plots")
	require.NoError(t, pp.Start(dir))
	assert.True(t, pp.IsEnabled())
	assert.Equal(t, dir, pp.GetOutputDir())

	for i := 0; i < 8; i++ {
		feedUniform(t, m, 1, 100, 100, 100)
		pp.Sample(m)
	}
	pp.Stop()
	pp.Sample(m)

	// (50,50) lies outside the model.
	assert.Equal(t, 16, pp.GetSampleCount())
	samples := pp.Samples(image.Pt(2, 3))
	require.Len(t, samples, 8)
	assert.Equal(t, uint64(2), samples[0].Frame)
	assert.Equal(t, uint64(9), samples[7].Frame)
	for _, s := range samples {
		assert.Equal(t, 1, s.Active)
		require.Len(t, s.Weights, 1)
		assert.InDelta(t, 1.0, s.Weights[0], 1e-6)
	}

	n, err := pp.GeneratePlots()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, name := range []string{
		"pixel_0002_0003_weights.png",
		"pixel_0002_0003_distance.png",
		"pixel_0011_0009_weights.png",
		"pixel_0011_0009_distance.png",
	} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size())
	}
}

func TestPixelPlotterWithoutStart(t *testing.T) {
	pp := NewPixelPlotter(nil)
	_, err := pp.GeneratePlots()
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	m := newModel(t, 10, 8)
	mask := raster.NewBytes(10, 8, 1)
	mask.Fill(255)
	mask.FillRect(raster.R(0, 0, 2, 8), 0)
	require.NoError(t, m.SetMask(mask))

	feedUniform(t, m, 5, 80, 90, 100)
	s := Summarize(m)

	assert.Equal(t, uint64(5), s.Frame)
	assert.Equal(t, 80, s.Pixels)
	assert.Equal(t, 16, s.MaskedPixels)
	assert.Equal(t, 0, s.ForegroundPixels)
	assert.InDelta(t, 1.0, s.ActiveMean, 1e-9)
	assert.InDelta(t, 0.0, s.ActiveStdDev, 1e-9)
	assert.InDelta(t, 1.0, s.TopWeightMean, 1e-6)
	assert.InDelta(t, 1.0, s.TopWeightMedian, 1e-6)
	assert.InDelta(t, 0.0, s.DistanceMean, 1e-6)
	require.Len(t, s.ModeHistogram, m.Params().MaxModes+1)
	assert.Equal(t, 16, s.ModeHistogram[0])
	assert.Equal(t, 64, s.ModeHistogram[1])
	require.NotEmpty(t, s.LayerFractions)
	total := 0.0
	for _, f := range s.LayerFractions {
		total += f
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestSummarizeFreshModel(t *testing.T) {
	s := Summarize(newModel(t, 4, 4))
	assert.Equal(t, uint64(0), s.Frame)
	assert.Equal(t, 0.0, s.ActiveMean)
	assert.Equal(t, 0.0, s.TopWeightMean)
}

func TestRenderLayerMap(t *testing.T) {
	m := newModel(t, 40, 30)
	feedUniform(t, m, 3, 50, 60, 70)

	var buf bytes.Buffer
	require.NoError(t, RenderLayerMap(&buf, m, 0))
	html := buf.String()
	assert.Contains(t, html, "Active modes")
	assert.Contains(t, html, "Current layer")
	assert.Contains(t, html, "stride=1")

	buf.Reset()
	require.NoError(t, RenderLayerMap(&buf, m, 300))
	assert.Contains(t, buf.String(), "stride=2")
}

func TestHandlers(t *testing.T) {
	m := newModel(t, 16, 12)
	feedUniform(t, m, 2, 10, 20, 30)
	s := bgmodel.NewSynchronized(m)
	mux := http.NewServeMux()
	AttachRoutes(mux, s)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/layers?max_points=5000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sum Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, uint64(2), sum.Frame)
	assert.Equal(t, 16*12, sum.Pixels)
}
