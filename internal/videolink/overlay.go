package videolink

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/detect"
)

var (
	boxColor   = color.RGBA{R: 255, B: 255, A: 255}
	labelColor = color.RGBA{B: 255, A: 255}
)

const boxThickness = 3

// Annotate returns a copy of img with a box and caption per detection.
func Annotate(img image.Image, dets []detect.Detection) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	for _, d := range dets {
		drawBox(out, d.Box, boxThickness, boxColor)
		drawLabel(out, d.Box.Min, d.Caption(), labelColor)
	}
	return out
}

func drawBox(dst *image.RGBA, r image.Rectangle, thickness int, c color.Color) {
	r = r.Canon()
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text with its baseline at the box corner, moved down
// when that would put it above the frame.
func drawLabel(dst *image.RGBA, at image.Point, text string, c color.Color) {
	face := basicfont.Face7x13
	y := at.Y
	if top := dst.Bounds().Min.Y + face.Ascent; y < top {
		y = top
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(at.X, y),
	}
	d.DrawString(text)
}
