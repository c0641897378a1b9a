package sensorlink

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/monitoring"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/timeutil"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// fakeDialer refuses the first failures attempts, then hands out conns.
// Once conns is drained it blocks until the context ends.
type fakeDialer struct {
	clock    timeutil.Clock
	failures int
	conns    chan Conn

	mu       sync.Mutex
	attempts []time.Time
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	d.attempts = append(d.attempts, d.clock.Now())
	n := len(d.attempts)
	d.mu.Unlock()

	if n <= d.failures {
		return nil, errors.New("connection refused")
	}
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) String() string { return "fake" }

func (d *fakeDialer) attemptTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.attempts...)
}

type stateLog struct {
	mu     sync.Mutex
	states []radar.LinkState
	ch     chan radar.LinkState
}

func newStateLog() *stateLog {
	return &stateLog{ch: make(chan radar.LinkState, 64)}
}

func (s *stateLog) record(link string, st radar.LinkState) {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
	s.ch <- st
}

func (s *stateLog) waitFor(t *testing.T, want radar.LinkState) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-s.ch:
			if st == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func (s *stateLog) all() []radar.LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]radar.LinkState(nil), s.states...)
}

func startLink(t *testing.T, cfg Config) (cancel func() error) {
	t.Helper()
	l := New(cfg)
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func TestRunReconnectsAfterFailures(t *testing.T) {
	const failures = 3
	clock := timeutil.NewMockClock(epoch)
	clock.SetAutoAdvance(true)

	server, client := net.Pipe()
	defer server.Close()
	d := &fakeDialer{clock: clock, failures: failures, conns: make(chan Conn, 1)}
	d.conns <- client

	states := newStateLog()
	stop := startLink(t, Config{Dialer: d, Clock: clock, OnStatus: states.record})
	states.waitFor(t, radar.Connected)
	require.ErrorIs(t, stop(), context.Canceled)

	attempts := d.attemptTimes()
	require.Len(t, attempts, failures+1)
	for i := 1; i < len(attempts); i++ {
		gap := attempts[i].Sub(attempts[i-1])
		assert.GreaterOrEqual(t, gap, time.Second, "attempt %d came %v after the previous", i, gap)
	}
	for _, w := range clock.Waits() {
		assert.Equal(t, DefaultBackoff, w)
	}

	want := []radar.LinkState{
		radar.Connecting, radar.Disconnected,
		radar.Connecting, radar.Disconnected,
		radar.Connecting, radar.Disconnected,
		radar.Connecting, radar.Connected,
		radar.Disconnected,
	}
	assert.Equal(t, want, states.all())
}

func TestRunParsesRecordsInOrder(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	d := &fakeDialer{clock: timeutil.RealClock{}, conns: make(chan Conn, 1)}
	d.conns <- client

	readings := make(chan radar.Reading, 8)
	states := newStateLog()
	l := New(Config{
		Dialer:    d,
		OnReading: func(r radar.Reading) { readings <- r },
		OnStatus:  states.record,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	states.waitFor(t, radar.Connected)

	go io.WriteString(server, "0,250\n1,100\r\nbad\r2,x\n3,50\r\n")

	var got []radar.Reading
	for len(got) < 3 {
		select {
		case r := <-readings:
			got = append(got, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d readings, want 3", len(got))
		}
	}
	assert.Equal(t, []radar.Reading{
		{Angle: 0, Distance: 2.5},
		{Angle: 2.8125, Distance: 1},
		{Angle: 8.4375, Distance: 0.5},
	}, got)

	st := l.Stats()
	assert.Equal(t, uint64(3), st.Records)
	assert.Equal(t, uint64(2), st.Malformed)
	assert.Equal(t, radar.Connected, st.State)
}

func TestRunReconnectsAfterDeviceCloses(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	clock.SetAutoAdvance(true)

	first, firstClient := net.Pipe()
	second, secondClient := net.Pipe()
	defer second.Close()
	d := &fakeDialer{clock: clock, conns: make(chan Conn, 2)}
	d.conns <- firstClient
	d.conns <- secondClient

	states := newStateLog()
	stop := startLink(t, Config{Dialer: d, Clock: clock, OnStatus: states.record})
	states.waitFor(t, radar.Connected)

	first.Close()
	states.waitFor(t, radar.Disconnected)
	states.waitFor(t, radar.Connected)
	require.ErrorIs(t, stop(), context.Canceled)

	attempts := d.attemptTimes()
	require.Len(t, attempts, 2)
	assert.Equal(t, time.Second, attempts[1].Sub(attempts[0]))
}

func TestRunCancelInterruptsBackoff(t *testing.T) {
	d := &fakeDialer{clock: timeutil.RealClock{}, failures: 1 << 30}
	states := newStateLog()
	stop := startLink(t, Config{Dialer: d, Backoff: time.Hour, OnStatus: states.record})
	states.waitFor(t, radar.Disconnected)

	start := time.Now()
	require.ErrorIs(t, stop(), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWrite(t *testing.T) {
	l := New(Config{Dialer: &fakeDialer{clock: timeutil.RealClock{}}})
	_, err := l.Write([]byte("start"))
	assert.ErrorIs(t, err, ErrNotConnected)

	server, client := net.Pipe()
	defer server.Close()
	d := &fakeDialer{clock: timeutil.RealClock{}, conns: make(chan Conn, 1)}
	d.conns <- client
	states := newStateLog()
	l = New(Config{Dialer: d, OnStatus: states.record})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	states.waitFor(t, radar.Connected)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := server.Read(buf)
		got <- string(buf[:n])
	}()
	n, err := l.Write([]byte("start"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "start", <-got, "tokens are sent raw, without a newline")
}

func TestSubscribe(t *testing.T) {
	l := New(Config{Dialer: &fakeDialer{clock: timeutil.RealClock{}}})
	id, ch := l.Subscribe()
	l.handleRecord("0,100")
	l.handleRecord("")
	l.handleRecord("junk")
	assert.Equal(t, "0,100", <-ch)
	assert.Equal(t, "junk", <-ch)

	l.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	_, ch2 := l.Subscribe()
	l.Close()
	_, ok = <-ch2
	assert.False(t, ok)
}

func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAdminSend(t *testing.T) {
	l := New(Config{Dialer: &fakeDialer{clock: timeutil.RealClock{}}})
	mux := http.NewServeMux()
	l.AttachAdminRoutes(mux)

	tests := []struct {
		name   string
		method string
		form   url.Values
		want   int
	}{
		{"not connected", http.MethodPost, url.Values{"command": {"start"}}, http.StatusServiceUnavailable},
		{"empty", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest},
		{"get", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := localHostRequest(tt.method, "/debug/sensor-send", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAdminPage(t *testing.T) {
	l := New(Config{Dialer: &fakeDialer{clock: timeutil.RealClock{}}})
	mux := http.NewServeMux()
	l.AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/sensor", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sensor link: fake")
}

func TestSerialDialer(t *testing.T) {
	var gotPath string
	var gotMode *serial.Mode
	d := SerialDialer{
		Path:    "/dev/ttyUSB0",
		Options: PortOptions{BaudRate: 9600},
		open: func(path string, mode *serial.Mode) (serial.Port, error) {
			gotPath, gotMode = path, mode
			return nil, errors.New("no such device")
		},
	}
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/ttyUSB0")
	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, 9600, gotMode.BaudRate)
	assert.Equal(t, "serial://"+gotPath, d.String())

	_, err = SerialDialer{Options: PortOptions{Parity: "x"}}.Dial(context.Background())
	assert.Error(t, err)
}

func TestTCPDialer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			io.WriteString(c, "4,200\n")
			c.Close()
		}
	}()

	conn, err := TCPDialer{Addr: ln.Addr().String(), Timeout: time.Second}.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	b, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "4,200\n", string(b))
}
