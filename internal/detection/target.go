package detection

import (
	"fmt"
	"image"
	"sort"

	"github.com/golang/geo/r2"
)

// CorresNone marks a target with no known correspondence.
const CorresNone = -1

// DefaultSumGrey is the sum-of-grey placeholder given to targets whose
// detector does not measure it.
const DefaultSumGrey = 10

// Point is a sub-pixel image position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Target is a detected particle or reference point.
type Target struct {
	PNR     int     `json:"pnr" yaml:"pnr"`           // sequence number within the frame
	X       float64 `json:"x" yaml:"x"`               // pixel column
	Y       float64 `json:"y" yaml:"y"`               // pixel row
	N       int     `json:"n" yaml:"n"`               // pixel count
	NX      int     `json:"nx" yaml:"nx"`             // extent in x
	NY      int     `json:"ny" yaml:"ny"`             // extent in y
	SumGrey int     `json:"sum_grey" yaml:"sum_grey"` // sum of grey values
	TNR     int     `json:"tnr" yaml:"tnr"`           // correspondence number, CorresNone if unknown
}

// Pos returns the target position.
func (t Target) Pos() Point { return Point{X: t.X, Y: t.Y} }

// Targetize turns detected positions into targets numbered in order. Pixel
// counts are placeholders derived from approxSize: 4*s*s pixels spanning
// 2*s in each direction.
func Targetize(points []Point, approxSize, sumGrey int) []Target {
	targets := make([]Target, len(points))
	for i, p := range points {
		targets[i] = Target{
			PNR:     i,
			X:       p.X,
			Y:       p.Y,
			N:       approxSize * approxSize * 4,
			NX:      approxSize * 2,
			NY:      approxSize * 2,
			SumGrey: sumGrey,
			TNR:     CorresNone,
		}
	}
	return targets
}

// Positions returns the positions of targets as plane points.
func Positions(targets []Target) []r2.Point {
	points := make([]r2.Point, len(targets))
	for i, t := range targets {
		points[i] = r2.Point{X: t.X, Y: t.Y}
	}
	return points
}

// TargetParams bounds what counts as a reference target in a highpassed
// image.
type TargetParams struct {
	GreyThreshold int `yaml:"grey_threshold" json:"grey_threshold"` // pixels above this belong to a target
	MinPixels     int `yaml:"min_pixels" json:"min_pixels"`
	MaxPixels     int `yaml:"max_pixels" json:"max_pixels"`
	MinX          int `yaml:"min_x" json:"min_x"`
	MaxX          int `yaml:"max_x" json:"max_x"`
	MinY          int `yaml:"min_y" json:"min_y"`
	MaxY          int `yaml:"max_y" json:"max_y"`
	SumGreyMin    int `yaml:"sum_grey_min" json:"sum_grey_min"`
}

// DefaultTargetParams returns thresholds suited to dot targets a few pixels
// across.
func DefaultTargetParams() TargetParams {
	return TargetParams{
		GreyThreshold: 40,
		MinPixels:     4,
		MaxPixels:     500,
		MinX:          2,
		MaxX:          100,
		MinY:          2,
		MaxY:          100,
		SumGreyMin:    100,
	}
}

// Validate checks that the size limits are ordered.
func (p TargetParams) Validate() error {
	if p.GreyThreshold < 0 || p.GreyThreshold > 255 {
		return fmt.Errorf("grey threshold must be in [0,255], got %d", p.GreyThreshold)
	}
	if p.MinPixels > p.MaxPixels {
		return fmt.Errorf("min pixels %d exceeds max pixels %d", p.MinPixels, p.MaxPixels)
	}
	if p.MinX > p.MaxX || p.MinY > p.MaxY {
		return fmt.Errorf("target extent limits are inverted")
	}
	return nil
}

// DetectTargets recognises reference targets in a highpassed frame.
//
// Pixels brighter than the grey threshold are grouped into 8-connected
// regions. A region is a target when its pixel count, extents and summed grey
// value fall within p. The position is the grey-weighted centroid. Targets
// are ordered by row, then column, and numbered in that order.
func DetectTargets(hp *image.Gray, p TargetParams) ([]Target, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b := hp.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil, ErrEmptyImage
	}

	grey := func(x, y int) int { return int(hp.GrayAt(x+b.Min.X, y+b.Min.Y).Y) }

	bright := make([][]bool, height)
	for y := 0; y < height; y++ {
		bright[y] = make([]bool, width)
		for x := 0; x < width; x++ {
			bright[y][x] = grey(x, y) > p.GreyThreshold
		}
	}

	var targets []Target
	for _, region := range findRegions(bright, width, height) {
		n := len(region)
		if n < p.MinPixels || n > p.MaxPixels {
			continue
		}

		minX, maxX := region[0].x, region[0].x
		minY, maxY := region[0].y, region[0].y
		sumG, sx, sy := 0, 0.0, 0.0
		for _, px := range region {
			g := grey(px.x, px.y)
			sumG += g
			sx += float64(px.x * g)
			sy += float64(px.y * g)
			minX, maxX = min(minX, px.x), max(maxX, px.x)
			minY, maxY = min(minY, px.y), max(maxY, px.y)
		}
		nx, ny := maxX-minX+1, maxY-minY+1
		if nx < p.MinX || nx > p.MaxX || ny < p.MinY || ny > p.MaxY {
			continue
		}
		if sumG < p.SumGreyMin || sumG == 0 {
			continue
		}

		targets = append(targets, Target{
			X:       sx / float64(sumG),
			Y:       sy / float64(sumG),
			N:       n,
			NX:      nx,
			NY:      ny,
			SumGrey: sumG,
			TNR:     CorresNone,
		})
	}

	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].Y != targets[j].Y {
			return targets[i].Y < targets[j].Y
		}
		return targets[i].X < targets[j].X
	})
	for i := range targets {
		targets[i].PNR = i
	}
	return targets, nil
}

type pixel struct{ x, y int }

// findRegions groups set pixels into 8-connected regions.
func findRegions(mask [][]bool, width, height int) [][]pixel {
	visited := make([][]bool, height)
	for y := 0; y < height; y++ {
		visited[y] = make([]bool, width)
	}

	var regions [][]pixel
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask[y][x] && !visited[y][x] {
				var region []pixel
				floodFill(mask, visited, x, y, width, height, &region)
				regions = append(regions, region)
			}
		}
	}
	return regions
}

func floodFill(mask, visited [][]bool, startX, startY, width, height int, region *[]pixel) {
	stack := []pixel{{x: startX, y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.x < 0 || p.x >= width || p.y < 0 || p.y >= height {
			continue
		}
		if visited[p.y][p.x] || !mask[p.y][p.x] {
			continue
		}

		visited[p.y][p.x] = true
		*region = append(*region, p)

		// 8-connected neighbors
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, pixel{x: p.x + dx, y: p.y + dy})
			}
		}
	}
}
