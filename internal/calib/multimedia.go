package calib

import (
	"math"

	"github.com/golang/geo/r3"
)

const (
	radialShiftTolerance = 0.001
	radialShiftMaxIter   = 40
)

// MultimediaParams describes the optical path from the camera to the object:
// a medium with index N1 on the camera side, one or more wall layers with
// indices N2 and thicknesses D, and a medium with index N3 on the object side.
type MultimediaParams struct {
	N1 float64   `yaml:"cam_side_n" json:"cam_side_n"`
	N2 []float64 `yaml:"wall_ns" json:"wall_ns"`
	D  []float64 `yaml:"wall_thicks" json:"wall_thicks"`
	N3 float64   `yaml:"object_side_n" json:"object_side_n"`
}

// Air returns a single-layer path with all indices equal to 1.
func Air() MultimediaParams {
	return MultimediaParams{N1: 1, N2: []float64{1}, D: []float64{0}, N3: 1}
}

// homogeneous reports whether no refraction takes place.
func (mm MultimediaParams) homogeneous() bool {
	if mm.N1 != 1 || mm.N3 != 1 {
		return false
	}
	for _, n := range mm.N2 {
		if n != 1 {
			return false
		}
	}
	return true
}

func (mm MultimediaParams) firstThickness() float64 {
	if len(mm.D) == 0 {
		return 0
	}
	return mm.D[0]
}

// glassFrame holds an object point expressed in a frame whose Z axis is the
// glass normal and whose origin lies under the camera, plus the points needed
// to transform back.
type glassFrame struct {
	camZ   float64
	point  r3.Vector
	crossP r3.Vector
	crossC r3.Vector
}

func (c *Calibration) toGlassFrame(p r3.Vector, mm MultimediaParams) glassFrame {
	d0 := mm.firstThickness()
	glassDist := c.Glass.Norm()
	camGlass := c.Ext.Pos.Dot(c.Glass)/glassDist - glassDist - d0
	pointGlass := p.Dot(c.Glass)/glassDist - glassDist

	crossC := c.Ext.Pos.Sub(c.Glass.Mul(camGlass / glassDist))
	crossP := p.Sub(c.Glass.Mul(pointGlass / glassDist))

	return glassFrame{
		camZ:   camGlass + d0,
		point:  r3.Vector{X: crossC.Sub(crossP).Norm(), Y: 0, Z: pointGlass},
		crossP: crossP,
		crossC: crossC,
	}
}

func (c *Calibration) fromGlassFrame(t glassFrame, mm MultimediaParams) r3.Vector {
	glassDist := c.Glass.Norm()
	afterGlass := t.crossC.Sub(c.Glass.Mul(mm.firstThickness() / glassDist))
	lateral := t.crossP.Sub(afterGlass)

	pos := afterGlass.Add(c.Glass.Mul(t.point.Z / glassDist))
	if n := lateral.Norm(); n > 0 {
		pos = pos.Add(lateral.Mul(t.point.X / n))
	}
	return pos
}

// radialShift returns the factor by which the radial distance of a point in
// the glass frame must be scaled so that a straight ray from a camera at
// height camZ hits the refracted position.
func radialShift(camZ float64, p r3.Vector, mm MultimediaParams) float64 {
	shift, _ := iterateRadialShift(camZ, p, mm, radialShiftMaxIter)
	return shift
}

// iterateRadialShift runs at most maxIter refinement steps and reports how
// many it used. A run that needs the whole budget gives up with a factor of
// 1, even when the last step converged.
func iterateRadialShift(camZ float64, p r3.Vector, mm MultimediaParams, maxIter int) (float64, int) {
	if mm.homogeneous() {
		return 1, 0
	}

	zout := p.Z
	for i := 1; i < len(mm.D); i++ {
		zout += mm.D[i]
	}

	r := math.Hypot(p.X, p.Y)
	rq := r
	for it := 0; it < maxIter; it++ {
		beta1 := math.Atan(rq / (camZ - p.Z))
		sin1 := math.Sin(beta1)
		beta3 := math.Asin(sin1 * mm.N1 / mm.N3)

		rbeta := (camZ-mm.firstThickness())*math.Tan(beta1) - zout*math.Tan(beta3)
		for i, n2 := range mm.N2 {
			if i >= len(mm.D) {
				break
			}
			rbeta += mm.D[i] * math.Tan(math.Asin(sin1*mm.N1/n2))
		}

		rdiff := r - rbeta
		rq += rdiff
		if math.Abs(rdiff) > radialShiftTolerance {
			continue
		}
		if it+1 >= maxIter {
			return 1, it + 1
		}
		if r == 0 {
			return 1, it + 1
		}
		return rq / r, it + 1
	}
	return 1, maxIter
}
