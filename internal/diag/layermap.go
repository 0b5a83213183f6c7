package diag

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/layerbg/internal/bgmodel"
	"github.com/banshee-data/layerbg/internal/httputil"
)

// DefaultMaxPoints bounds the number of scatter points per chart.
const DefaultMaxPoints = 20000

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderLayerMap writes an HTML page with two scatter charts of m: the
// active mode count and the current layer of every pixel. Pixels are
// downsampled by a square stride so that at most maxPoints appear per
// chart. The caller must hold exclusive access to the model.
func RenderLayerMap(w io.Writer, m *bgmodel.Model, maxPoints int) error {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	width, height := m.Width(), m.Height()
	stride := 1
	if n := width * height; n > maxPoints {
		stride = int(math.Ceil(math.Sqrt(float64(n) / float64(maxPoints))))
	}

	active := make([]opts.ScatterData, 0, (width/stride+1)*(height/stride+1))
	layers := make([]opts.ScatterData, 0, cap(active))
	maxActive, maxLayer := 1, 1
	for y := 0; y < height; y += stride {
		for x := 0; x < width; x += stride {
			if m.Masked(x, y) {
				continue
			}
			ps, err := m.PixelState(x, y)
			if err != nil {
				return err
			}
			maxActive = max(maxActive, ps.Active)
			maxLayer = max(maxLayer, ps.CurrentLayer)
			// Image rows grow downwards.
			active = append(active, opts.ScatterData{Value: []interface{}{x, -y, ps.Active}})
			layers = append(layers, opts.ScatterData{Value: []interface{}{x, -y, ps.CurrentLayer}})
		}
	}

	subtitle := fmt.Sprintf("frame=%d size=%dx%d stride=%d", m.Frame(), width, height, stride)
	page := components.NewPage()
	page.AddCharts(
		pixelScatter("Active modes", subtitle, "active", active, maxActive, width, height),
		pixelScatter("Current layer", subtitle, "layer", layers, maxLayer, width, height),
	)
	return page.Render(w)
}

func pixelScatter(title, subtitle, series string, data []opts.ScatterData, maxValue, width, height int) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: width, Name: "x", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -height, Max: 0, Name: "y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxValue),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries(series, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	return scatter
}

// LayerMapHandler serves RenderLayerMap for a shared model. The optional
// max_points query parameter overrides DefaultMaxPoints.
func LayerMapHandler(s *bgmodel.Synchronized) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		maxPoints := DefaultMaxPoints
		if mp := r.URL.Query().Get("max_points"); mp != "" {
			if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 200000 {
				maxPoints = v
			}
		}
		var buf bytes.Buffer
		err := s.Do(func(m *bgmodel.Model) error {
			return RenderLayerMap(&buf, m, maxPoints)
		})
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}

// SummaryHandler serves Summarize as JSON.
func SummaryHandler(s *bgmodel.Synchronized) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sum Summary
		_ = s.Do(func(m *bgmodel.Model) error {
			sum = Summarize(m)
			return nil
		})
		httputil.WriteJSON(w, http.StatusOK, sum)
	})
}

// AttachRoutes mounts /debug/layers and /debug/model on mux.
func AttachRoutes(mux *http.ServeMux, s *bgmodel.Synchronized) {
	mux.Handle("/debug/layers", LayerMapHandler(s))
	mux.Handle("/debug/model", SummaryHandler(s))
}
