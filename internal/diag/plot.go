package diag

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"

	// Liberation fonts register automatically on import
	_ "gonum.org/v1/plot/font/liberation"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/ironsheep/evocal/internal/evolve"
)

// Series colours: detected points blue, projections red, the first and last
// projection yellow.
var (
	DetectedColor  = colorful.Hsv(240, 1, 1)
	ProjectedColor = colorful.Hsv(0, 1, 1)
	EndpointColor  = colorful.Hsv(60, 1, 1)
)

// RenderSolution overlays detected and projected points on the highpassed
// frame and writes the figure to path. The format follows the extension
// (png, svg, pdf, ...).
func RenderSolution(hp image.Image, detected, projected []r2.Point, path string) error {
	b := hp.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	if w == 0 || h == 0 {
		return errors.New("empty background image")
	}

	p := plot.New()
	p.Title.Text = "Calibration"
	p.X.Label.Text = "x [px]"
	p.Y.Label.Text = "y [px]"
	p.X.Min, p.X.Max = 0, w
	p.Y.Min, p.Y.Max = 0, h

	p.Add(plotter.NewImage(hp, 0, 0, w, h))

	det, err := scatter(detected, h, DetectedColor, draw.CircleGlyph{}, 3)
	if err != nil {
		return fmt.Errorf("detected points: %w", err)
	}
	proj, err := scatter(projected, h, ProjectedColor, draw.CrossGlyph{}, 3)
	if err != nil {
		return fmt.Errorf("projected points: %w", err)
	}
	p.Add(det, proj)
	p.Legend.Add("detected", det)
	p.Legend.Add("projected", proj)

	if len(projected) > 0 {
		ends := []r2.Point{projected[0], projected[len(projected)-1]}
		end, err := scatter(ends, h, EndpointColor, draw.RingGlyph{}, 5)
		if err != nil {
			return fmt.Errorf("end points: %w", err)
		}
		p.Add(end)
		p.Legend.Add("first/last", end)
	}

	// Keep roughly the frame's aspect ratio.
	width := 8 * vg.Inch
	height := vg.Length(float64(width) * h / w)
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

// RenderHistory plots the minimum and maximum population fitness against
// iteration and writes the figure to path. Non-finite samples are skipped.
func RenderHistory(history []evolve.HistoryPoint, path string) error {
	if len(history) == 0 {
		return errors.New("no history samples")
	}

	p := plot.New()
	p.Title.Text = "Fitness"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "fitness"
	p.Add(plotter.NewGrid())

	minPts := make(plotter.XYs, 0, len(history))
	maxPts := make(plotter.XYs, 0, len(history))
	for _, hp := range history {
		x := float64(hp.Iteration)
		if finite(hp.Min) {
			minPts = append(minPts, plotter.XY{X: x, Y: hp.Min})
		}
		if finite(hp.Max) {
			maxPts = append(maxPts, plotter.XY{X: x, Y: hp.Max})
		}
	}

	for _, s := range []struct {
		name string
		pts  plotter.XYs
		c    colorful.Color
	}{
		{"min", minPts, DetectedColor},
		{"max", maxPts, ProjectedColor},
	} {
		if len(s.pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return fmt.Errorf("%s series: %w", s.name, err)
		}
		line.Color = s.c
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

// scatter converts image points to plot space, where y grows upward.
func scatter(points []r2.Point, height float64, c color.Color, shape draw.GlyphDrawer, radius float64) (*plotter.Scatter, error) {
	xys := make(plotter.XYs, 0, len(points))
	for _, pt := range points {
		if !finite(pt.X) || !finite(pt.Y) {
			continue
		}
		xys = append(xys, plotter.XY{X: pt.X, Y: height - pt.Y})
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = shape
	s.GlyphStyle.Radius = vg.Points(radius)
	return s, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
