package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/display"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/monitoring"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(radar.DefaultScale)
	mux := http.NewServeMux()
	require.NoError(t, hub.Attach(mux))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) (int, []byte) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	mt, data, err := ws.ReadMessage()
	require.NoError(t, err)
	return mt, data
}

type message struct {
	Type         string           `json:"type"`
	Seq          uint64           `json:"seq"`
	RenderRadius float64          `json:"render_radius"`
	Points       []map[string]any `json:"points"`
	FrameSeq     uint64           `json:"frame_seq"`
}

func readText(t *testing.T, ws *websocket.Conn) message {
	t.Helper()
	mt, data := read(t, ws)
	require.Equal(t, websocket.TextMessage, mt)
	var m message
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.White)
	return img
}

func TestHubBroadcast(t *testing.T) {
	hub, srv := newTestServer(t)
	ws := dial(t, srv)

	cfg := readText(t, ws)
	assert.Equal(t, "config", cfg.Type)
	assert.Equal(t, 240.0, cfg.RenderRadius)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, time.Millisecond)

	hub.Render(&display.Snapshot{
		Seq:    1,
		Points: []display.Point{{Angle: 0, Verdict: radar.Alarm, RenderDistance: 7.2}},
	})
	m := readText(t, ws)
	assert.Equal(t, "scene", m.Type)
	assert.Equal(t, uint64(1), m.Seq)
	require.Len(t, m.Points, 1)
	assert.Equal(t, "alarm", m.Points[0]["verdict"])

	hub.Render(&display.Snapshot{Seq: 2, Frame: solid(8, 6), FrameSeq: 1})
	assert.Equal(t, uint64(2), readText(t, ws).Seq)
	mt, data := read(t, ws)
	require.Equal(t, websocket.BinaryMessage, mt)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())

	// Same frame again: only the scene goes out.
	hub.Render(&display.Snapshot{Seq: 3, Frame: solid(8, 6), FrameSeq: 1})
	assert.Equal(t, uint64(3), readText(t, ws).Seq)
	hub.Render(&display.Snapshot{Seq: 4})
	assert.Equal(t, uint64(4), readText(t, ws).Seq)
}

func TestHubLateJoinerGetsCurrentState(t *testing.T) {
	hub, srv := newTestServer(t)
	hub.Render(&display.Snapshot{Seq: 7, Frame: solid(4, 4), FrameSeq: 3})

	ws := dial(t, srv)
	assert.Equal(t, "config", readText(t, ws).Type)
	m := readText(t, ws)
	assert.Equal(t, uint64(7), m.Seq)
	assert.Equal(t, uint64(3), m.FrameSeq)
	mt, _ := read(t, ws)
	assert.Equal(t, websocket.BinaryMessage, mt)
}

func TestHubDropsClosedClients(t *testing.T) {
	hub, srv := newTestServer(t)
	ws := dial(t, srv)
	readText(t, ws)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, time.Millisecond)
}

func TestHubRunClosesClients(t *testing.T) {
	hub := NewHub(radar.DefaultScale)
	mux := http.NewServeMux()
	require.NoError(t, hub.Attach(mux))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	ws := dial(t, srv)
	readText(t, ws)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)
}

func TestIndexPage(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), `<canvas id="radar"`)
}
