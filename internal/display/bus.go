package display

import (
	"image"
	"sync"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
)

// DefaultBuffer is the event queue length.
const DefaultBuffer = 1024

// Bus is the producer side of the display loop. It is safe for concurrent
// use. Scene events are queued in order and block when the queue is full;
// video frames go through a single slot that keeps only the newest frame.
type Bus struct {
	events chan event
	done   chan struct{}
	once   sync.Once

	frameMu    sync.Mutex
	frame      image.Image
	frameReady chan struct{}
	dropped    uint64
}

var _ Display = (*Bus)(nil)

// NewBus returns a Bus with a queue of n events (DefaultBuffer if n <= 0).
func NewBus(n int) *Bus {
	if n <= 0 {
		n = DefaultBuffer
	}
	return &Bus{
		events:     make(chan event, n),
		done:       make(chan struct{}),
		frameReady: make(chan struct{}, 1),
	}
}

func (b *Bus) send(e event) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.events <- e:
	case <-b.done:
	}
}

// close is called by the loop on exit so producers never block on a dead
// consumer.
func (b *Bus) close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bus) OnAngleUpdate(angle float64) { b.send(angleEvent(angle)) }

func (b *Bus) OnPointClassified(angle float64, verdict radar.Verdict, renderDistance float64) {
	b.send(pointEvent{Angle: angle, Verdict: verdict, RenderDistance: renderDistance})
}

// OnConnectionStatus queues a link change. A video disconnect first discards
// any frame still waiting in the slot, so the loop cannot show it after the
// status is applied.
func (b *Bus) OnConnectionStatus(link string, connected bool) {
	if link == radar.VideoLink && !connected {
		b.takeFrame()
	}
	b.send(statusEvent{link: link, connected: connected})
}

// OnVideoFrame replaces any frame the loop has not picked up yet.
func (b *Bus) OnVideoFrame(img image.Image) {
	b.frameMu.Lock()
	if b.frame != nil {
		b.dropped++
	}
	b.frame = img
	b.frameMu.Unlock()

	select {
	case b.frameReady <- struct{}{}:
	default:
	}
}

func (b *Bus) takeFrame() image.Image {
	b.frameMu.Lock()
	defer b.frameMu.Unlock()
	img := b.frame
	b.frame = nil
	return img
}

// DroppedFrames returns how many frames were replaced before display.
func (b *Bus) DroppedFrames() uint64 {
	b.frameMu.Lock()
	defer b.frameMu.Unlock()
	return b.dropped
}

// SetRunning shows or hides the sweep animation.
func (b *Bus) SetRunning(running bool) { b.send(runningEvent(running)) }

// SetCalibrating updates the calibration indicator.
func (b *Bus) SetCalibrating(on bool) { b.send(calibratingEvent(on)) }

// SetThreshold updates the safety circle.
func (b *Bus) SetThreshold(meters, renderRadius float64) {
	b.send(thresholdEvent{meters: meters, radius: renderRadius})
}

// Reset clears the sweep.
func (b *Bus) Reset() { b.send(resetEvent{}) }
