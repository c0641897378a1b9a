package calibration

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Overlay is an extra series drawn on top of the baseline profile, such as
// the live classified points.
type Overlay struct {
	Label  string
	Color  color.Color
	Points []Entry
}

// WriteProfilePNG renders baseline against angle as a PNG.
func WriteProfilePNG(w io.Writer, entries []Entry, overlays ...Overlay) error {
	p := plot.New()
	p.Title.Text = "Calibration profile"
	p.X.Label.Text = "Angle (deg)"
	p.Y.Label.Text = "Render distance"
	p.X.Min = 0
	p.X.Max = 360
	p.Add(plotter.NewGrid())

	if len(entries) > 0 {
		pts := make(plotter.XYs, len(entries))
		for i, e := range entries {
			pts[i] = plotter.XY{X: e.Angle, Y: e.Baseline}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("baseline line: %w", err)
		}
		line.Color = color.RGBA{R: 30, G: 144, B: 255, A: 255}
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("baseline", line)
	}

	for _, o := range overlays {
		if len(o.Points) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(o.Points))
		for i, e := range o.Points {
			pts[i] = plotter.XY{X: e.Angle, Y: e.Baseline}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("%s scatter: %w", o.Label, err)
		}
		sc.GlyphStyle.Color = o.Color
		sc.GlyphStyle.Radius = vg.Points(2)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(o.Label, sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render profile: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
