// Package display is the hand-off between the link goroutines and the
// single display loop. Links call the Display methods on a Bus, which turns
// each call into an immutable event. Loop applies events to the Scene it
// owns and hands a snapshot to its renderers on every tick.
package display

import (
	"image"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
)

// Display receives updates from the links.
type Display interface {
	OnAngleUpdate(angle float64)
	OnPointClassified(angle float64, verdict radar.Verdict, renderDistance float64)
	OnConnectionStatus(link string, connected bool)
	OnVideoFrame(img image.Image)
}

// Point is one rendered dot.
type Point struct {
	Angle          float64       `json:"angle"`
	Verdict        radar.Verdict `json:"verdict"`
	RenderDistance float64       `json:"render_distance"`
}

// Renderer draws snapshots. Render runs on the display loop goroutine and
// must return quickly.
type Renderer interface {
	Render(s *Snapshot)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(s *Snapshot)

func (f RendererFunc) Render(s *Snapshot) { f(s) }
