// Package groundstation wires the sensor and video links, the classifier,
// the control channel and the display loop into one running station.
package groundstation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/calibration"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/classify"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/control"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/detect"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/display"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/sensorlink"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/timeutil"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/videolink"
)

// Recorder receives the events worth keeping. *db.Recorder implements it.
type Recorder interface {
	LinkState(link, state string)
	Intrusion(angle, distance, renderDistance float64, verdict string, threshold float64)
	Command(command string, err error)
}

type Options struct {
	SensorDialer sensorlink.Dialer

	// VideoAddr is the host:port of the frame stream. Empty disables video.
	VideoAddr      string
	VideoReconnect bool
	VideoDial      func(ctx context.Context, network, addr string) (net.Conn, error)
	DialTimeout    time.Duration
	MaxFrameSize   int
	Detector       detect.Detector

	Scale       radar.Scale
	Threshold   float64
	Backoff     time.Duration
	DisplayTick time.Duration
	Clock       timeutil.Clock

	Recorder  Recorder
	Renderers []display.Renderer
}

// Station is safe for concurrent use. Run drives the links and the display
// loop; the command methods may be called from any goroutine.
type Station struct {
	store      *calibration.Store
	classifier *classify.Classifier
	sensor     *sensorlink.Link
	video      *videolink.Client
	control    *control.Channel
	bus        *display.Bus
	loop       *display.Loop
	recorder   Recorder

	// sweepMu orders point publication against Restart so a reset display
	// never receives a point from before the reset.
	sweepMu sync.Mutex
	running atomic.Bool

	quit     chan struct{}
	quitOnce sync.Once
}

// New builds a Station. Nothing is dialed until Run.
func New(opts Options) (*Station, error) {
	if opts.SensorDialer == nil {
		return nil, errors.New("groundstation: sensor dialer is required")
	}
	if opts.Scale == (radar.Scale{}) {
		opts.Scale = radar.DefaultScale
	}
	if opts.Threshold == 0 {
		opts.Threshold = classify.DefaultThreshold
	}

	s := &Station{
		store:    calibration.NewStore(),
		bus:      display.NewBus(display.DefaultBuffer),
		recorder: opts.Recorder,
		quit:     make(chan struct{}),
	}
	s.classifier = classify.New(s.store, opts.Scale)
	if err := s.classifier.SetThreshold(opts.Threshold); err != nil {
		return nil, err
	}

	s.sensor = sensorlink.New(sensorlink.Config{
		Dialer:    opts.SensorDialer,
		OnReading: s.handleReading,
		OnStatus:  s.handleStatus,
		Backoff:   opts.Backoff,
		Clock:     opts.Clock,
	})
	s.control = control.New(s.sensor)

	if opts.VideoAddr != "" {
		s.video = videolink.New(videolink.Config{
			Addr:         opts.VideoAddr,
			DialTimeout:  opts.DialTimeout,
			MaxFrameSize: opts.MaxFrameSize,
			Detector:     opts.Detector,
			Display:      s.bus,
			OnStatus:     s.handleStatus,
			Reconnect:    opts.VideoReconnect,
			Backoff:      opts.Backoff,
			Clock:        opts.Clock,
			Dial:         opts.VideoDial,
		})
	}

	s.loop = display.NewLoop(s.bus, opts.DisplayTick, opts.Clock, opts.Renderers...)
	s.bus.SetThreshold(opts.Threshold, opts.Scale.Render(opts.Threshold))
	return s, nil
}

// Sensor returns the sensor link, for admin routes.
func (s *Station) Sensor() *sensorlink.Link { return s.sensor }

// Snapshot returns the last rendered scene.
func (s *Station) Snapshot() *display.Snapshot { return s.loop.Snapshot() }

func (s *Station) handleReading(r radar.Reading) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	res := s.classifier.Process(r)
	s.bus.OnAngleUpdate(r.Angle)
	s.bus.OnPointClassified(res.Point.Angle, res.Point.Verdict, res.Point.RenderDistance)

	if s.recorder != nil && res.Escalated() && res.Point.Verdict.IsIntrusion() {
		s.recorder.Intrusion(res.Point.Angle, res.Point.Distance, res.Point.RenderDistance,
			res.Point.Verdict.String(), res.Threshold)
	}
}

func (s *Station) handleStatus(link string, state radar.LinkState) {
	// The video client reports to the display itself.
	if link == radar.SensorLink {
		s.bus.OnConnectionStatus(link, state == radar.Connected)
	}
	if s.recorder != nil {
		s.recorder.LinkState(link, state.String())
	}
}

func (s *Station) send(cmd control.Command) error {
	err := s.control.Send(cmd)
	if s.recorder != nil {
		s.recorder.Command(string(cmd), err)
	}
	return err
}

func (s *Station) setRunning(on bool) {
	s.running.Store(on)
	s.bus.SetRunning(on)
}

// Start sends start and animates the sweep. The returned error is the send
// failure, if any; the sweep state changes regardless.
func (s *Station) Start() error {
	err := s.send(control.Start)
	s.setRunning(true)
	return err
}

// Stop sends stop and freezes the sweep.
func (s *Station) Stop() error {
	err := s.send(control.Stop)
	s.setRunning(false)
	return err
}

// Quit stops the sweep, sends quit and makes Run return.
func (s *Station) Quit() error {
	s.setRunning(false)
	err := s.send(control.Quit)
	s.quitOnce.Do(func() { close(s.quit) })
	return err
}

// Restart stops, clears every live point and baseline, resets the angle and
// starts again. The calibration mode is left as it was.
func (s *Station) Restart() error {
	stopErr := s.Stop()

	s.sweepMu.Lock()
	s.classifier.Reset()
	s.store.Clear()
	s.bus.Reset()
	s.sweepMu.Unlock()

	return errors.Join(stopErr, s.Start())
}

// SetCalibration turns calibration mode on or off.
func (s *Station) SetCalibration(active bool) {
	s.store.SetMode(active)
	s.bus.SetCalibrating(active)
}

// ToggleCalibration flips calibration mode and returns the new mode.
func (s *Station) ToggleCalibration() bool {
	active := s.store.Toggle()
	s.bus.SetCalibrating(active)
	return active
}

// SetThreshold changes the minimum safety distance in meters.
func (s *Station) SetThreshold(v float64) error {
	if err := s.classifier.SetThreshold(v); err != nil {
		return err
	}
	s.bus.SetThreshold(v, s.classifier.Scale().Render(v))
	return nil
}

// CalibrationState describes the baseline map.
type CalibrationState struct {
	Active  bool                `json:"active"`
	Summary calibration.Summary `json:"summary"`
}

func (s *Station) Calibration() CalibrationState {
	return CalibrationState{
		Active:  s.store.Active(),
		Summary: calibration.Summarize(s.store.Snapshot()),
	}
}

// CalibrationProfile returns the baselines and the live points, both in
// render space and sorted by angle.
func (s *Station) CalibrationProfile() (baselines []calibration.Entry, live []calibration.Entry) {
	baselines = s.store.Snapshot()
	for _, p := range s.classifier.Points() {
		if p.Verdict == radar.Calibrated {
			continue
		}
		live = append(live, calibration.Entry{Angle: p.Angle, Baseline: p.RenderDistance})
	}
	return baselines, live
}

// Status is a point-in-time view of the station.
type Status struct {
	Running       bool              `json:"running"`
	Calibrating   bool              `json:"calibrating"`
	Threshold     float64           `json:"threshold"`
	Baselines     int               `json:"baselines"`
	LivePoints    int               `json:"live_points"`
	Sensor        sensorlink.Stats  `json:"sensor"`
	Video         *videolink.Stats  `json:"video,omitempty"`
	LastCommand   *control.Sent     `json:"last_command,omitempty"`
	DroppedFrames uint64            `json:"dropped_frames"`
	Scene         *display.Snapshot `json:"scene"`
}

func (s *Station) Status() Status {
	st := Status{
		Running:       s.running.Load(),
		Calibrating:   s.store.Active(),
		Threshold:     s.classifier.Threshold(),
		Baselines:     s.store.Len(),
		LivePoints:    len(s.classifier.Points()),
		Sensor:        s.sensor.Stats(),
		LastCommand:   s.control.Last(),
		DroppedFrames: s.bus.DroppedFrames(),
		Scene:         s.loop.Snapshot(),
	}
	if s.video != nil {
		v := s.video.Stats()
		st.Video = &v
	}
	return st
}

// Run starts the display loop and both links and blocks until ctx is done
// or Quit is called. It returns nil after Quit and ctx.Err() otherwise.
func (s *Station) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("%s stopped: %v", name, err)
			}
		}()
	}

	spawn("display loop", s.loop.Run)
	spawn("sensor link", s.sensor.Run)
	if s.video != nil {
		spawn("video link", s.video.Serve)
	}

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-s.quit:
	}
	cancel()
	wg.Wait()
	s.sensor.Close()

	if err != nil {
		return fmt.Errorf("station: %w", err)
	}
	return nil
}
