package display

import (
	"image"
	"maps"
	"sort"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
)

// Scene is the display state. Only the display loop touches it.
type Scene struct {
	Angle           float64
	Running         bool
	Calibrating     bool
	Threshold       float64
	ThresholdRadius float64
	Links           map[string]bool
	Points          map[float64]Point

	Frame    image.Image
	FrameSeq uint64
}

func newScene() *Scene {
	return &Scene{
		Links:  make(map[string]bool),
		Points: make(map[float64]Point),
	}
}

// Snapshot is an immutable copy of the Scene.
type Snapshot struct {
	Seq             uint64          `json:"seq"`
	Angle           float64         `json:"angle"`
	Running         bool            `json:"running"`
	Calibrating     bool            `json:"calibrating"`
	Threshold       float64         `json:"threshold"`
	ThresholdRadius float64         `json:"threshold_radius"`
	Links           map[string]bool `json:"links"`
	Points          []Point         `json:"points"`

	// Frame is shared, not copied; image producers never mutate a frame
	// after publishing it.
	Frame    image.Image `json:"-"`
	FrameSeq uint64      `json:"frame_seq"`
}

func (s *Scene) snapshot(seq uint64) *Snapshot {
	pts := make([]Point, 0, len(s.Points))
	for _, p := range s.Points {
		pts = append(pts, p)
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].Angle < pts[j].Angle })
	return &Snapshot{
		Seq:             seq,
		Angle:           s.Angle,
		Running:         s.Running,
		Calibrating:     s.Calibrating,
		Threshold:       s.Threshold,
		ThresholdRadius: s.ThresholdRadius,
		Links:           maps.Clone(s.Links),
		Points:          pts,
		Frame:           s.Frame,
		FrameSeq:        s.FrameSeq,
	}
}

// event is one update to the Scene.
type event interface {
	apply(s *Scene)
}

type angleEvent float64

func (e angleEvent) apply(s *Scene) { s.Angle = float64(e) }

type pointEvent Point

func (e pointEvent) apply(s *Scene) { s.Points[e.Angle] = Point(e) }

type statusEvent struct {
	link      string
	connected bool
}

func (e statusEvent) apply(s *Scene) {
	s.Links[e.link] = e.connected
	if e.link == radar.VideoLink && !e.connected {
		s.Frame = nil
	}
}

type runningEvent bool

func (e runningEvent) apply(s *Scene) { s.Running = bool(e) }

type calibratingEvent bool

func (e calibratingEvent) apply(s *Scene) { s.Calibrating = bool(e) }

type thresholdEvent struct{ meters, radius float64 }

func (e thresholdEvent) apply(s *Scene) {
	s.Threshold = e.meters
	s.ThresholdRadius = e.radius
}

// resetEvent clears the sweep: angle back to zero and every point gone.
type resetEvent struct{}

func (resetEvent) apply(s *Scene) {
	s.Angle = 0
	clear(s.Points)
}
