// Package classify turns sensor readings into rendered, classified points.
package classify

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/calibration"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
)

// Threshold limits, in meters.
const (
	DefaultThreshold = 0.5
	MinThreshold     = 0.5
	MaxThreshold     = 10.0
)

var ErrThresholdOutOfRange = errors.New("threshold out of range")

// Classify returns the verdict for a reading outside calibration mode.
//
// The backdrop test compares the render-space distance against a baseline
// that was also recorded in render space, while the safety test compares
// the raw distance in meters against the threshold in meters.
func Classify(renderDistance, baseline float64, hasBaseline bool, rawDistance, threshold float64) radar.Verdict {
	if !hasBaseline || renderDistance >= baseline {
		return radar.Background
	}
	if rawDistance < threshold {
		return radar.Alarm
	}
	return radar.Caution
}

// Point is the live rendered point at one angle.
type Point struct {
	Angle          float64       `json:"angle"`
	Distance       float64       `json:"distance"`
	RenderDistance float64       `json:"render_distance"`
	Verdict        radar.Verdict `json:"verdict"`
}

// Result is what Process produced for one reading.
type Result struct {
	Point Point
	// Previous is the verdict of the point this one superseded, if any.
	Previous    radar.Verdict
	HadPrevious bool
	// Threshold is the safety distance the verdict was decided against.
	Threshold float64
}

// Escalated reports whether the reading turned an angle into an intrusion
// it was not already showing.
func (r Result) Escalated() bool {
	if !r.Point.Verdict.IsIntrusion() {
		return false
	}
	return !r.HadPrevious || r.Previous < r.Point.Verdict
}

// Classifier applies Classify against a calibration store and keeps exactly
// one live point per angle key. It is safe for concurrent use.
type Classifier struct {
	store *calibration.Store
	scale radar.Scale

	mu        sync.Mutex
	threshold float64
	points    map[float64]Point
}

// New returns a Classifier using store for baselines.
func New(store *calibration.Store, scale radar.Scale) *Classifier {
	return &Classifier{
		store:     store,
		scale:     scale,
		threshold: DefaultThreshold,
		points:    make(map[float64]Point),
	}
}

// Scale returns the render scale.
func (c *Classifier) Scale() radar.Scale { return c.scale }

// Threshold returns the minimum safety distance in meters.
func (c *Classifier) Threshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// SetThreshold updates the minimum safety distance. Values outside
// [MinThreshold, MaxThreshold] are rejected.
func (c *Classifier) SetThreshold(v float64) error {
	if !(v >= MinThreshold && v <= MaxThreshold) {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrThresholdOutOfRange, v, MinThreshold, MaxThreshold)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = v
	return nil
}

// Process handles one reading. While calibrating the render distance is
// recorded as the baseline and the point is Calibrated; otherwise it is
// classified. Either way it supersedes any live point at the same angle.
func (c *Classifier) Process(r radar.Reading) Result {
	render := c.scale.Render(r.Distance)

	c.mu.Lock()
	defer c.mu.Unlock()

	var v radar.Verdict
	if c.store.RecordIfCalibrating(r.Angle, render) {
		v = radar.Calibrated
	} else {
		baseline, ok := c.store.BaselineFor(r.Angle)
		v = Classify(render, baseline, ok, r.Distance, c.threshold)
	}

	prev, had := c.points[r.Angle]
	p := Point{Angle: r.Angle, Distance: r.Distance, RenderDistance: render, Verdict: v}
	c.points[r.Angle] = p
	return Result{Point: p, Previous: prev.Verdict, HadPrevious: had, Threshold: c.threshold}
}

// Points returns the live points sorted by angle.
func (c *Classifier) Points() []Point {
	c.mu.Lock()
	out := make([]Point, 0, len(c.points))
	for _, p := range c.points {
		out = append(out, p)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Angle < out[j].Angle })
	return out
}

// Reset drops every live point.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.points)
}
