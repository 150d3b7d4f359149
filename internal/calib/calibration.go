package calib

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// VectorLen is the number of genes in a calibration Vector.
const VectorLen = 14

var (
	// ErrVectorLength is returned when a Vector does not have VectorLen genes.
	ErrVectorLength = errors.New("calibration vector must have 14 genes")

	// ErrBoundsMismatch is returned when bounds and vector lengths differ.
	ErrBoundsMismatch = errors.New("bounds length does not match vector length")

	// ErrInvalidBound is returned when a bound has min > max or a non-finite end.
	ErrInvalidBound = errors.New("invalid parameter bound")
)

// Vector is the flat encoding of a calibration searched by the fitter.
// See the package documentation for the gene layout.
type Vector []float64

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Intersection returns the point where the optical axis crosses Z=0.
func (v Vector) Intersection() r3.Vector { return r3.Vector{X: v[0], Y: v[1]} }

// Radius returns the distance from the intersection to the projection centre.
func (v Vector) Radius() float64 { return v[2] }

// Angles returns omega, phi and kappa.
func (v Vector) Angles() [3]float64 { return [3]float64{v[3], v[4], v[5]} }

// Bound is an inclusive [Min, Max] range for one gene.
type Bound struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Width returns Max - Min.
func (b Bound) Width() float64 { return b.Max - b.Min }

// Contains reports whether x lies inside the bound.
func (b Bound) Contains(x float64) bool { return x >= b.Min && x <= b.Max }

// Bounds holds one Bound per gene.
type Bounds []Bound

// Validate checks that there is one well-formed bound per gene of a vector
// with n genes.
func (bs Bounds) Validate(n int) error {
	if len(bs) != n {
		return fmt.Errorf("%w: %d bounds for %d genes", ErrBoundsMismatch, len(bs), n)
	}
	for i, b := range bs {
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
			return fmt.Errorf("%w: gene %d is not finite", ErrInvalidBound, i)
		}
		if b.Min > b.Max {
			return fmt.Errorf("%w: gene %d has min %g > max %g", ErrInvalidBound, i, b.Min, b.Max)
		}
	}
	return nil
}

// Contains reports whether every gene of v is inside its bound.
func (bs Bounds) Contains(v Vector) bool {
	if len(bs) != len(v) {
		return false
	}
	for i, b := range bs {
		if !b.Contains(v[i]) {
			return false
		}
	}
	return true
}

// Exterior is the exterior orientation: projection centre and rotation.
type Exterior struct {
	Pos   r3.Vector
	Omega float64
	Phi   float64
	Kappa float64

	// DM is the rotation matrix derived from the three angles.
	DM [3][3]float64
}

// Interior is the primary point and camera constant.
type Interior struct {
	XH float64
	YH float64
	CC float64
}

// AddedPar holds the Brown distortion and affine correction terms.
type AddedPar struct {
	K1, K2, K3 float64
	P1, P2     float64
	SCX        float64 // x scale
	She        float64 // shear angle
}

// Calibration is a complete camera model able to project object points.
type Calibration struct {
	Ext   Exterior
	Int   Interior
	Added AddedPar

	// Glass is the vector from the origin to the nearest point of the glass
	// interface; its direction is the interface normal.
	Glass r3.Vector
}

// ExteriorPosition places the projection centre at distance R from the
// intersection point, along the optical axis given by the angles. The sign
// conventions follow the transpose of the omega-phi-kappa rotation, since the
// angles are reversed when moving from the camera frame to the global frame.
func ExteriorPosition(inters r3.Vector, radius float64, angles [3]float64) r3.Vector {
	so, co := math.Sincos(angles[0])
	sp, cp := math.Sincos(angles[1])
	dir := r3.Vector{X: sp, Y: -cp * so, Z: cp * co}
	return inters.Add(dir.Mul(radius))
}

// RotationMatrix returns the omega-phi-kappa rotation matrix.
func RotationMatrix(omega, phi, kappa float64) [3][3]float64 {
	so, co := math.Sincos(omega)
	sp, cp := math.Sincos(phi)
	sk, ck := math.Sincos(kappa)

	return [3][3]float64{
		{cp * ck, -cp * sk, sp},
		{co*sk + so*sp*ck, co*ck - so*sp*sk, -so * cp},
		{so*sk - co*sp*ck, so*ck + co*sp*sk, co * cp},
	}
}

// NewCalibration builds a calibration from its parts and derives the
// rotation matrix. The affine correction is the identity.
func NewCalibration(pos r3.Vector, angles [3]float64, in Interior, k [3]float64, p [2]float64, glass r3.Vector) *Calibration {
	return &Calibration{
		Ext: Exterior{
			Pos:   pos,
			Omega: angles[0],
			Phi:   angles[1],
			Kappa: angles[2],
			DM:    RotationMatrix(angles[0], angles[1], angles[2]),
		},
		Int: in,
		Added: AddedPar{
			K1: k[0], K2: k[1], K3: k[2],
			P1: p[0], P2: p[1],
			SCX: 1,
		},
		Glass: glass,
	}
}

// FromVector decodes a 14-gene vector into a calibration.
func FromVector(v Vector, glass r3.Vector) (*Calibration, error) {
	if len(v) != VectorLen {
		return nil, fmt.Errorf("%w: got %d", ErrVectorLength, len(v))
	}
	angles := v.Angles()
	pos := ExteriorPosition(v.Intersection(), v.Radius(), angles)

	return NewCalibration(
		pos,
		angles,
		Interior{XH: v[6], YH: v[7], CC: v[8]},
		[3]float64{v[9], v[10], v[11]},
		[2]float64{v[12], v[13]},
		glass,
	), nil
}

// FlatImageCoord projects an object point to flat (undistorted) image
// coordinates, refracting through the multimedia interface.
func (c *Calibration) FlatImageCoord(p r3.Vector, mm MultimediaParams) (x, y float64) {
	t := c.toGlassFrame(p, mm)
	shift := radialShift(t.camZ, t.point, mm)
	t.point.X *= shift
	t.point.Y *= shift
	pos := c.fromGlassFrame(t, mm)

	d := pos.Sub(c.Ext.Pos)
	dm := c.Ext.DM
	deno := dm[0][2]*d.X + dm[1][2]*d.Y + dm[2][2]*d.Z
	x = -c.Int.CC * (dm[0][0]*d.X + dm[1][0]*d.Y + dm[2][0]*d.Z) / deno
	y = -c.Int.CC * (dm[0][1]*d.X + dm[1][1]*d.Y + dm[2][1]*d.Z) / deno
	return x, y
}

// ImageCoord projects an object point to distorted metric image coordinates.
func (c *Calibration) ImageCoord(p r3.Vector, mm MultimediaParams) (x, y float64) {
	x, y = c.FlatImageCoord(p, mm)
	return c.FlatToDist(x, y)
}

// FlatToDist shifts flat coordinates by the primary point and applies the
// Brown distortion and affine correction.
func (c *Calibration) FlatToDist(x, y float64) (float64, float64) {
	return DistortBrownAffine(x+c.Int.XH, y+c.Int.YH, c.Added)
}

// DistortBrownAffine applies radial and decentering distortion followed by
// the affine scale/shear correction.
func DistortBrownAffine(x, y float64, ap AddedPar) (float64, float64) {
	r2 := x*x + y*y
	if r2 == 0 {
		return x, y
	}
	radial := ap.K1*r2 + ap.K2*r2*r2 + ap.K3*r2*r2*r2
	xd := x + x*radial + ap.P1*(r2+2*x*x) + 2*ap.P2*x*y
	yd := y + y*radial + ap.P2*(r2+2*y*y) + 2*ap.P1*x*y

	sinShe, cosShe := math.Sincos(ap.She)
	return ap.SCX*xd - sinShe*yd, cosShe * yd
}

// MetricToPixel converts metric image coordinates to pixel coordinates.
func MetricToPixel(x, y float64, cpar ControlParams) r2.Point {
	return r2.Point{
		X: x/cpar.PixelWidth + float64(cpar.ImageWidth)/2,
		Y: -y/cpar.PixelHeight + float64(cpar.ImageHeight)/2,
	}
}

// PixelCoords projects every point to pixel coordinates.
func (c *Calibration) PixelCoords(points []r3.Vector, cpar ControlParams) []r2.Point {
	out := make([]r2.Point, len(points))
	for i, p := range points {
		x, y := c.ImageCoord(p, cpar.Multimedia)
		out[i] = MetricToPixel(x, y, cpar)
	}
	return out
}
