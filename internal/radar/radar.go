// Package radar holds the domain types shared by the sensor link, the
// classifier and the display: readings, verdicts and link states, plus the
// unit conversions of the rotating-sensor wire protocol.
package radar

import (
	"fmt"
	"math"
)

const (
	// AngleStepDegrees is the size of one device angle step. The rig reports
	// its heading as one of 128 discrete steps around the circle.
	AngleStepDegrees = 360.0 / 128.0

	// CentimetersPerMeter converts the device distance unit to meters.
	CentimetersPerMeter = 100.0
)

// Reading is one parsed sensor sample.
type Reading struct {
	Angle    float64 // degrees
	Distance float64 // meters
}

func (r Reading) String() string {
	return fmt.Sprintf("%.4f°@%.2fm", r.Angle, r.Distance)
}

// FromDevice converts raw device units into a Reading.
func FromDevice(angleUnits, distanceCentimeters float64) Reading {
	return Reading{
		Angle:    angleUnits * AngleStepDegrees,
		Distance: distanceCentimeters / CentimetersPerMeter,
	}
}

// Verdict is the classification attached to a rendered point.
type Verdict int

const (
	// Calibrated marks a point recorded as a baseline while calibrating.
	Calibrated Verdict = iota
	// Background means nothing closer than the known backdrop.
	Background
	// Caution means something is in front of the backdrop but outside the
	// minimum safety distance.
	Caution
	// Alarm means something is within the minimum safety distance.
	Alarm
)

var verdictNames = [...]string{
	Calibrated: "calibrated",
	Background: "background",
	Caution:    "caution",
	Alarm:      "alarm",
}

func (v Verdict) String() string {
	if v < 0 || int(v) >= len(verdictNames) {
		return fmt.Sprintf("verdict(%d)", int(v))
	}
	return verdictNames[v]
}

// Color is the display colour used for the verdict.
func (v Verdict) Color() string {
	switch v {
	case Calibrated:
		return "#1e90ff"
	case Caution:
		return "#ffa500"
	case Alarm:
		return "#ff0000"
	default:
		return "#00ff00"
	}
}

// IsIntrusion reports whether v is Caution or Alarm.
func (v Verdict) IsIntrusion() bool {
	return v == Caution || v == Alarm
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// LinkState is the connection state of one link.
type LinkState int

const (
	Disconnected LinkState = iota
	Connecting
	Connected
)

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("linkstate(%d)", int(s))
}

func (s LinkState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Link names used in status callbacks.
const (
	SensorLink = "sensor"
	VideoLink  = "video"
)

// StatusFunc observes link state transitions.
type StatusFunc func(link string, state LinkState)

// Scale maps a distance in meters onto the display radius. Distances beyond
// MaxRange are clamped to the outer ring.
type Scale struct {
	MaxRange     float64 // meters
	RenderRadius float64 // display units
}

// DefaultScale is a 10 m range drawn on a 240 unit radius.
var DefaultScale = Scale{MaxRange: 10, RenderRadius: 240}

// Render returns the render-space distance for d meters.
func (s Scale) Render(d float64) float64 {
	if s.MaxRange <= 0 {
		return 0
	}
	return math.Min(d, s.MaxRange) * s.RenderRadius / s.MaxRange
}
