package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/calibration"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/control"
)

// Rig is a simulated rotating sensor: a wall at a fixed distance all round
// and an intruder that walks towards the sensor and back inside a sector.
type Rig struct {
	WallCM        int
	IntruderFrom  int // first device step of the intruder sector
	IntruderWidth int // steps

	mu      sync.Mutex
	running bool
	step    int
	turn    int
}

func NewRig() *Rig {
	return &Rig{WallCM: 300, IntruderFrom: 20, IntruderWidth: 6}
}

// Apply updates the rig state for one command. It reports whether the
// command asks the rig to shut down.
func (r *Rig) Apply(cmd control.Command) (quit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch cmd {
	case control.Start:
		r.running = true
	case control.Stop:
		r.running = false
	case control.Quit:
		r.running = false
		return true
	}
	return false
}

func (r *Rig) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// intruderCM is the intruder distance on the given turn: it closes in from
// the wall to 20 cm over ten turns and backs off again.
func (r *Rig) intruderCM(turn int) int {
	phase := turn % 20
	if phase >= 10 {
		phase = 19 - phase
	}
	return r.WallCM - (r.WallCM-20)*phase/9
}

// Next returns the record for the current step and advances the sweep.
func (r *Rig) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	dist := r.WallCM
	if r.step >= r.IntruderFrom && r.step < r.IntruderFrom+r.IntruderWidth {
		dist = r.intruderCM(r.turn)
	}
	rec := fmt.Sprintf("%d,%d\n", r.step, dist)

	r.step++
	if r.step == calibration.DeviceSteps {
		r.step = 0
		r.turn++
	}
	return rec
}

var commandTokens = []control.Command{control.Start, control.Stop, control.Quit}

// scanCommands pulls command tokens off the front of buf. Commands arrive
// with no separator, so a token split across reads is kept in rest for the
// next call. Bytes that cannot start a token are dropped.
func scanCommands(buf []byte) (cmds []control.Command, rest []byte) {
	for len(buf) > 0 {
		matched, partial := false, false
		for _, c := range commandTokens {
			tok := []byte(c)
			if bytes.HasPrefix(buf, tok) {
				cmds = append(cmds, c)
				buf = buf[len(tok):]
				matched = true
				break
			}
			if bytes.HasPrefix(tok, buf) {
				partial = true
			}
		}
		if matched {
			continue
		}
		if partial {
			return cmds, buf
		}
		buf = buf[1:]
	}
	return cmds, nil
}

// Camera renders synthetic frames: a grey scene with a box that drifts
// across it.
type Camera struct {
	Width, Height int
	frame         int
}

func NewCamera() *Camera {
	return &Camera{Width: 320, Height: 240}
}

func (c *Camera) Next() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 60, G: 60, B: 60, A: 255}}, image.Point{}, draw.Src)

	size := c.Height / 4
	x := int(float64(c.Width-size) * (0.5 + 0.5*math.Sin(float64(c.frame)/15)))
	y := (c.Height - size) / 2
	draw.Draw(img, image.Rect(x, y, x+size, y+size), &image.Uniform{C: color.RGBA{R: 200, G: 180, B: 40, A: 255}}, image.Point{}, draw.Src)

	c.frame++
	return img
}
