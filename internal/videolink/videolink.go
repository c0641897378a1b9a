// Package videolink receives length-prefixed image frames from the rig,
// runs object detection on each one and publishes annotated frames.
package videolink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/detect"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/display"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/framecodec"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/monitoring"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/timeutil"
)

var ErrNotConnected = errors.New("video link not connected")

// Config configures a Client.
type Config struct {
	Addr         string
	DialTimeout  time.Duration
	MaxFrameSize int

	Detector detect.Detector
	Display  display.Display
	OnStatus radar.StatusFunc

	// Reconnect makes Run dial again after the stream ends instead of
	// returning. The initial Connect failure is still returned.
	Reconnect bool
	Backoff   time.Duration
	Clock     timeutil.Clock

	// Dial is replaced in tests.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Stats are counters since the Client was created.
type Stats struct {
	State        radar.LinkState `json:"state"`
	Addr         string          `json:"addr"`
	Frames       uint64          `json:"frames"`
	DecodeErrors uint64          `json:"decode_errors"`
	Detections   uint64          `json:"detections"`
}

// Client is the video connection.
type Client struct {
	cfg  Config
	logf func(string, ...any)

	mu   sync.Mutex
	conn net.Conn

	state        atomic.Int32
	frames       atomic.Uint64
	decodeErrors atomic.Uint64
	detections   atomic.Uint64
}

// New returns an unconnected Client.
func New(cfg Config) *Client {
	if cfg.Detector == nil {
		cfg.Detector = detect.Nop{}
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Dial == nil {
		d := &net.Dialer{Timeout: cfg.DialTimeout}
		cfg.Dial = d.DialContext
	}
	return &Client{cfg: cfg, logf: monitoring.Prefixed(radar.VideoLink)}
}

func (c *Client) setState(s radar.LinkState) {
	if radar.LinkState(c.state.Swap(int32(s))) == s {
		return
	}
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(radar.VideoLink, s)
	}
	if c.cfg.Display != nil && s != radar.Connecting {
		c.cfg.Display.OnConnectionStatus(radar.VideoLink, s == radar.Connected)
	}
}

// State returns the current link state.
func (c *Client) State() radar.LinkState {
	return radar.LinkState(c.state.Load())
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	return Stats{
		State:        c.State(),
		Addr:         c.cfg.Addr,
		Frames:       c.frames.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		Detections:   c.detections.Load(),
	}
}

// Connect dials the video stream once.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(radar.Connecting)
	conn, err := c.cfg.Dial(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		c.setState(radar.Disconnected)
		return fmt.Errorf("connect video %s: %w", c.cfg.Addr, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(radar.Connected)
	c.logf("connected to %s", c.cfg.Addr)
	return nil
}

// Run reads frames until ctx is done or the stream ends. A clean close or
// a frame cut short by the peer ends Run with a nil error; with Reconnect
// set it instead waits Backoff and dials again.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	for {
		err := c.stream(ctx)
		c.closeConn()
		c.setState(radar.Disconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case errors.Is(err, framecodec.ErrConnectionClosed):
			c.logf("stream closed")
			err = nil
		case errors.Is(err, framecodec.ErrTruncatedFrame):
			c.logf("stream closed mid-frame")
			err = nil
		default:
			c.logf("stream failed: %v", err)
		}
		if !c.cfg.Reconnect {
			return err
		}
		if err := c.redial(ctx); err != nil {
			return err
		}
	}
}

// Serve connects and then runs. Without Reconnect a failed first dial is
// returned to the caller; with it Serve keeps dialing until ctx is done.
func (c *Client) Serve(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		if !c.cfg.Reconnect || ctx.Err() != nil {
			return err
		}
		c.logf("%v", err)
		if err := c.redial(ctx); err != nil {
			return err
		}
	}
	return c.Run(ctx)
}

// redial retries Connect with a fixed backoff until it succeeds.
func (c *Client) redial(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.cfg.Clock.After(c.cfg.Backoff):
		}
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logf("%v", err)
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) stream(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	// Closing the socket is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	fr := framecodec.NewReader(conn, c.cfg.MaxFrameSize)
	for {
		payload, err := fr.Next()
		if err != nil {
			return err
		}
		c.handleFrame(payload)
	}
}

// handleFrame decodes, detects, annotates and publishes one frame. A frame
// that does not decode is skipped; framing is unaffected.
func (c *Client) handleFrame(payload []byte) {
	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		c.decodeErrors.Add(1)
		c.logf("skipping undecodable frame (%d bytes): %v", len(payload), err)
		return
	}
	c.frames.Add(1)

	dets, err := c.cfg.Detector.Detect(img)
	if err != nil {
		c.logf("detect on %s frame: %v", format, err)
	}
	c.detections.Add(uint64(len(dets)))

	if c.cfg.Display != nil {
		c.cfg.Display.OnVideoFrame(Annotate(img, dets))
	}
}
