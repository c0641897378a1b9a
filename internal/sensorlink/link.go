// Package sensorlink owns the text-protocol connection to the rotating
// sensor. It parses "angle,distance" records, reconnects forever with a
// fixed backoff, carries control commands back to the device and lets debug
// clients tail the raw stream.
package sensorlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/monitoring"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/timeutil"
)

// DefaultBackoff is the pause between connection attempts.
const DefaultBackoff = time.Second

var (
	ErrNotConnected = errors.New("sensor link not connected")
	ErrWriteFailed  = errors.New("short write to sensor link")
)

// Config configures a Link.
type Config struct {
	Dialer Dialer
	// OnReading is called on the link goroutine for every valid record, in
	// arrival order. It must not block for long.
	OnReading func(radar.Reading)
	// OnStatus observes state transitions.
	OnStatus radar.StatusFunc
	// Backoff defaults to DefaultBackoff.
	Backoff time.Duration
	Clock   timeutil.Clock
}

// Stats are counters since the Link was created.
type Stats struct {
	State     radar.LinkState `json:"state"`
	Endpoint  string          `json:"endpoint"`
	Attempts  uint64          `json:"attempts"`
	Connects  uint64          `json:"connects"`
	Records   uint64          `json:"records"`
	Malformed uint64          `json:"malformed"`
}

// Link is the sensor connection. Run drives it; Write and the subscriber
// methods may be called from any goroutine.
type Link struct {
	dialer    Dialer
	onReading func(radar.Reading)
	onStatus  radar.StatusFunc
	backoff   time.Duration
	clock     timeutil.Clock
	logf      func(string, ...any)

	connMu sync.Mutex
	conn   Conn

	writeMu sync.Mutex

	state     atomic.Int32
	attempts  atomic.Uint64
	connects  atomic.Uint64
	records   atomic.Uint64
	malformed atomic.Uint64

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
}

// New returns a Link that has not connected yet.
func New(cfg Config) *Link {
	l := &Link{
		dialer:      cfg.Dialer,
		onReading:   cfg.OnReading,
		onStatus:    cfg.OnStatus,
		backoff:     cfg.Backoff,
		clock:       cfg.Clock,
		logf:        monitoring.Prefixed(radar.SensorLink),
		subscribers: make(map[string]chan string),
	}
	if l.backoff <= 0 {
		l.backoff = DefaultBackoff
	}
	if l.clock == nil {
		l.clock = timeutil.RealClock{}
	}
	if l.onReading == nil {
		l.onReading = func(radar.Reading) {}
	}
	return l
}

// State returns the current link state.
func (l *Link) State() radar.LinkState {
	return radar.LinkState(l.state.Load())
}

func (l *Link) setState(s radar.LinkState) {
	if radar.LinkState(l.state.Swap(int32(s))) == s {
		return
	}
	if l.onStatus != nil {
		l.onStatus(radar.SensorLink, s)
	}
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() Stats {
	return Stats{
		State:     l.State(),
		Endpoint:  l.dialer.String(),
		Attempts:  l.attempts.Load(),
		Connects:  l.connects.Load(),
		Records:   l.records.Load(),
		Malformed: l.malformed.Load(),
	}
}

// Run connects and reads records until ctx is done, reconnecting after every
// failure or disconnect. It only returns ctx.Err().
func (l *Link) Run(ctx context.Context) error {
	defer l.setState(radar.Disconnected)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.setState(radar.Connecting)
		l.attempts.Add(1)
		conn, err := l.dialer.Dial(ctx)
		if err != nil {
			l.logf("connect %s failed: %v", l.dialer, err)
			l.setState(radar.Disconnected)
			if err := l.wait(ctx); err != nil {
				return err
			}
			continue
		}

		l.connects.Add(1)
		l.attach(conn)
		l.setState(radar.Connected)
		l.logf("connected to %s", l.dialer)

		err = l.monitor(ctx, conn)
		l.detach()
		conn.Close()
		l.setState(radar.Disconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			l.logf("connection lost: %v", err)
		} else {
			l.logf("connection closed by device")
		}
		if err := l.wait(ctx); err != nil {
			return err
		}
	}
}

func (l *Link) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(l.backoff):
		return nil
	}
}

func (l *Link) attach(c Conn) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	l.conn = c
}

func (l *Link) detach() {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	l.conn = nil
}

// monitor reads records from conn until the stream ends or ctx is done.
func (l *Link) monitor(ctx context.Context, conn Conn) error {
	scan := bufio.NewScanner(conn)
	scan.Split(splitRecords)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs on its own goroutine so cancellation is observed
	// without waiting for the device to send something.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				scanErrChan <- ctx.Err()
				return
			}
		}
		scanErrChan <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			// Unblock the reader goroutine.
			conn.Close()
			return ctx.Err()

		case line, ok := <-lineChan:
			if !ok {
				return <-scanErrChan
			}
			l.handleRecord(line)
		}
	}
}

func (l *Link) handleRecord(line string) {
	if line == "" {
		return
	}
	l.publish(line)

	reading, err := ParseRecord(line)
	if err != nil {
		l.malformed.Add(1)
		l.logf("discarding record: %v", err)
		return
	}
	l.records.Add(1)
	l.onReading(reading)
}

// Write sends p to the device as-is. It fails with ErrNotConnected when no
// connection is up.
func (l *Link) Write(p []byte) (int, error) {
	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	n, err := conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("write sensor link: %w", err)
	}
	if n != len(p) {
		return n, ErrWriteFailed
	}
	return n, nil
}

// Subscribe returns a channel receiving every raw record. Slow subscribers
// miss records rather than stall the link.
func (l *Link) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, 16)
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	l.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (l *Link) Unsubscribe(id string) {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	if ch, ok := l.subscribers[id]; ok {
		close(ch)
		delete(l.subscribers, id)
	}
}

func (l *Link) publish(line string) {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	for _, ch := range l.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

// Close closes every subscriber channel.
func (l *Link) Close() {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	for id, ch := range l.subscribers {
		close(ch)
		delete(l.subscribers, id)
	}
}
