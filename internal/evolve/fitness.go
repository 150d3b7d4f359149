package evolve

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/ironsheep/evocal/internal/calib"
)

// Problem holds everything fixed while a calibration is fitted.
type Problem struct {
	// RefPoints are the known 3-D points of the calibration target.
	RefPoints []r3.Vector

	// Detected are the 2-D pixel positions found in the calibration image.
	Detected []r2.Point

	Glass   r3.Vector
	Control calib.ControlParams
}

// Fitness projects the reference points through the calibration encoded by
// solution and returns, summed over every projection, the squared distance
// to its nearest detected point. Spurious detections far from every
// projection do not change the score.
//
// Invalid vectors and projections that are not finite score +Inf.
func (p *Problem) Fitness(solution calib.Vector) float64 {
	cal, err := calib.FromVector(solution, p.Glass)
	if err != nil {
		return math.Inf(1)
	}
	projected := cal.PixelCoords(p.RefPoints, p.Control)
	return NearestSquaredSum(projected, p.Detected)
}

// NearestSquaredSum returns the sum over projected of the squared distance to
// the closest detected point. It is 0 when nothing is projected and +Inf when
// there are projections but no detections to match them to.
func NearestSquaredSum(projected, detected []r2.Point) float64 {
	if len(projected) == 0 {
		return 0
	}
	if len(detected) == 0 {
		return math.Inf(1)
	}

	pts := make(kdtree.Points, len(detected))
	for i, d := range detected {
		pts[i] = kdtree.Point{d.X, d.Y}
	}
	tree := kdtree.New(pts, false)

	sum := 0.0
	for _, q := range projected {
		if math.IsNaN(q.X) || math.IsNaN(q.Y) || math.IsInf(q.X, 0) || math.IsInf(q.Y, 0) {
			return math.Inf(1)
		}
		_, dist := tree.Nearest(kdtree.Point{q.X, q.Y})
		sum += dist
	}
	return sum
}
