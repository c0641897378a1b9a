// Package webui is the browser display: a websocket hub that pushes every
// rendered scene and the latest annotated video frame, the radar page that
// draws them, and an echarts view of the current sweep.
package webui

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"image"
	"image/jpeg"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/display"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/monitoring"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
)

//go:embed web/*
var webFS embed.FS

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	// DefaultJPEGQuality is used for frames pushed to browsers.
	DefaultJPEGQuality = 80
)

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

// Hub fans snapshots out to websocket clients. It implements
// display.Renderer; Render only stores the snapshot and wakes Run, so a
// slow browser never holds up the display loop.
type Hub struct {
	upgrader websocket.Upgrader
	scale    radar.Scale
	quality  int
	logf     func(string, ...any)

	mu      sync.Mutex
	clients map[*client]struct{}

	latest atomic.Pointer[display.Snapshot]
	wake   chan struct{}

	frameMu  sync.Mutex
	frameSeq uint64
	frame    []byte
}

var _ display.Renderer = (*Hub)(nil)

// NewHub returns a Hub drawing with the given scale.
func NewHub(scale radar.Scale) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		scale:   scale,
		quality: DefaultJPEGQuality,
		logf:    monitoring.Prefixed("webui"),
		clients: make(map[*client]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Render implements display.Renderer.
func (h *Hub) Render(s *display.Snapshot) {
	h.latest.Store(s)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Latest returns the last snapshot handed to Render, or nil.
func (h *Hub) Latest() *display.Snapshot {
	return h.latest.Load()
}

// ClientCount returns the number of connected browsers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run broadcasts the newest snapshot whenever Render is called, until ctx
// is done. Snapshots arriving while a broadcast is in flight are coalesced.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case <-h.wake:
			if s := h.latest.Load(); s != nil {
				h.broadcast(s)
			}
		}
	}
}

type configMessage struct {
	Type         string  `json:"type"`
	MaxRange     float64 `json:"max_range"`
	RenderRadius float64 `json:"render_radius"`
}

type sceneMessage struct {
	Type string `json:"type"`
	*display.Snapshot
}

func sceneJSON(s *display.Snapshot) ([]byte, error) {
	return json.Marshal(sceneMessage{Type: "scene", Snapshot: s})
}

// frameJPEG returns the encoded frame of s, encoding it at most once per
// frame sequence number. fresh is set the first time a frame is seen. It
// returns nil when s has no frame.
func (h *Hub) frameJPEG(s *display.Snapshot) (b []byte, fresh bool) {
	if s.Frame == nil {
		return nil, false
	}
	h.frameMu.Lock()
	defer h.frameMu.Unlock()
	if h.frame != nil && h.frameSeq == s.FrameSeq {
		return h.frame, false
	}
	b, err := encodeJPEG(s.Frame, h.quality)
	if err != nil {
		h.logf("encode frame %d: %v", s.FrameSeq, err)
		return nil, false
	}
	h.frame, h.frameSeq = b, s.FrameSeq
	return b, true
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Hub) broadcast(s *display.Snapshot) {
	payload, err := sceneJSON(s)
	if err != nil {
		h.logf("marshal scene: %v", err)
		return
	}

	frame, fresh := h.frameJPEG(s)
	if !fresh {
		frame = nil
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(websocket.TextMessage, payload); err != nil {
			h.remove(c)
			continue
		}
		if frame != nil {
			if err := c.write(websocket.BinaryMessage, frame); err != nil {
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

// ServeWS upgrades the request and registers the browser. The first
// messages are the drawing config and, when available, the current scene
// and frame.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := &client{conn: conn}
	cfg, _ := json.Marshal(configMessage{
		Type:         "config",
		MaxRange:     h.scale.MaxRange,
		RenderRadius: h.scale.RenderRadius,
	})
	if err := c.write(websocket.TextMessage, cfg); err != nil {
		conn.Close()
		return
	}
	if s := h.latest.Load(); s != nil {
		if payload, err := sceneJSON(s); err == nil {
			_ = c.write(websocket.TextMessage, payload)
		}
		if frame, _ := h.frameJPEG(s); frame != nil {
			_ = c.write(websocket.BinaryMessage, frame)
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.serveClient(c)
}

// serveClient keeps the connection alive and notices when it goes away.
// Browsers send commands through the HTTP API, so inbound messages are
// ignored.
func (h *Hub) serveClient(c *client) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					_ = c.conn.Close()
					return
				}
			}
		}
	}()
	defer close(done)
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Attach registers the page, the websocket and the sweep chart on mux.
func (h *Hub) Attach(mux *http.ServeMux) error {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return err
	}
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/sweep", h.handleSweep)
	return nil
}
