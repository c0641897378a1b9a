package webui

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/display"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/httputil"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
)

var sweepVerdicts = []radar.Verdict{radar.Calibrated, radar.Background, radar.Caution, radar.Alarm}

// sweepSeries splits points by verdict and converts them to XY in meters.
// Angle zero points right and angles grow counter-clockwise.
func sweepSeries(points []display.Point, scale radar.Scale) map[radar.Verdict][]opts.ScatterData {
	out := make(map[radar.Verdict][]opts.ScatterData)
	for _, p := range points {
		r := p.RenderDistance
		if scale.RenderRadius > 0 {
			r = r * scale.MaxRange / scale.RenderRadius
		}
		theta := p.Angle * math.Pi / 180.0
		x := r * math.Cos(theta)
		y := r * math.Sin(theta)
		out[p.Verdict] = append(out[p.Verdict], opts.ScatterData{Value: []interface{}{x, y}})
	}
	return out
}

// handleSweep renders the latest scene as a polar->XY scatter.
func (h *Hub) handleSweep(w http.ResponseWriter, r *http.Request) {
	s := h.latest.Load()
	if s == nil {
		httputil.NotFound(w, "no scene rendered yet")
		return
	}

	pad := h.scale.MaxRange * 1.05
	if pad == 0 {
		pad = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sweep", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Current sweep", Subtitle: fmt.Sprintf("points=%d angle=%.2f threshold=%.2fm", len(s.Points), s.Angle, s.Threshold)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	series := sweepSeries(s.Points, h.scale)
	for _, v := range sweepVerdicts {
		scatter.AddSeries(v.String(), series[v],
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: v.Color()}))
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
