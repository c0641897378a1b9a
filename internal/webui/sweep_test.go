package webui

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/display"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
)

func TestSweepSeries(t *testing.T) {
	series := sweepSeries([]display.Point{
		{Angle: 90, Verdict: radar.Caution, RenderDistance: 120},
		{Angle: 180, Verdict: radar.Background, RenderDistance: 240},
		{Angle: 0, Verdict: radar.Caution, RenderDistance: 24},
	}, radar.DefaultScale)

	require.Len(t, series[radar.Caution], 2)
	xy := series[radar.Caution][0].Value.([]interface{})
	assert.InDelta(t, 0.0, xy[0].(float64), 1e-9)
	assert.InDelta(t, 5.0, xy[1].(float64), 1e-9)

	xy = series[radar.Background][0].Value.([]interface{})
	assert.InDelta(t, -10.0, xy[0].(float64), 1e-9)
	assert.Empty(t, series[radar.Alarm])
}

func TestSweepPage(t *testing.T) {
	hub := NewHub(radar.DefaultScale)

	rec := httptest.NewRecorder()
	hub.handleSweep(rec, httptest.NewRequest(http.MethodGet, "/sweep", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	hub.Render(&display.Snapshot{Points: []display.Point{{Angle: 45, Verdict: radar.Alarm, RenderDistance: 10}}})
	rec = httptest.NewRecorder()
	hub.handleSweep(rec, httptest.NewRequest(http.MethodGet, "/sweep", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Current sweep")
}
