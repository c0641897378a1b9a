package display

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/timeutil"
)

// DefaultTick is the redraw period.
const DefaultTick = 30 * time.Millisecond

// Loop owns the Scene. Run must be called from exactly one goroutine.
type Loop struct {
	bus       *Bus
	tick      time.Duration
	clock     timeutil.Clock
	renderers []Renderer

	scene *Scene
	dirty bool
	seq   uint64
	last  atomic.Pointer[Snapshot]
}

// NewLoop returns a Loop draining bus. A zero tick selects DefaultTick and
// a nil clock the real one.
func NewLoop(bus *Bus, tick time.Duration, clock timeutil.Clock, renderers ...Renderer) *Loop {
	if tick <= 0 {
		tick = DefaultTick
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	l := &Loop{
		bus:       bus,
		tick:      tick,
		clock:     clock,
		renderers: renderers,
		scene:     newScene(),
	}
	l.last.Store(l.scene.snapshot(0))
	return l
}

// Snapshot returns the most recently rendered snapshot. It is safe to call
// from any goroutine.
func (l *Loop) Snapshot() *Snapshot {
	return l.last.Load()
}

// Run applies events and renders on every tick until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.bus.close()
	ticker := l.clock.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.drain()
			l.render()
			return ctx.Err()

		case ev := <-l.bus.events:
			ev.apply(l.scene)
			l.dirty = true

		case <-l.bus.frameReady:
			if img := l.bus.takeFrame(); img != nil {
				l.scene.Frame = img
				l.scene.FrameSeq++
				l.dirty = true
			}

		case <-ticker.C():
			l.render()
		}
	}
}

// drain applies queued events without blocking.
func (l *Loop) drain() {
	for {
		select {
		case ev := <-l.bus.events:
			ev.apply(l.scene)
			l.dirty = true
		default:
			return
		}
	}
}

func (l *Loop) render() {
	if !l.dirty {
		return
	}
	l.dirty = false
	l.seq++
	snap := l.scene.snapshot(l.seq)
	l.last.Store(snap)
	for _, r := range l.renderers {
		r.Render(snap)
	}
}
