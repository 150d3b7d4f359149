// Package calib implements the camera model used to fit and evaluate
// calibrations: exterior orientation, interior orientation, Brown distortion
// with an affine correction, and refraction through a planar multimedia
// (air/glass/water) interface described by a glass vector.
//
// # Coordinate Systems
//
// Object space is a right-handed metric frame, usually millimetres, with the
// calibration target near the Z=0 plane. Flat image coordinates are metric
// coordinates on the sensor relative to the primary point. Pixel coordinates
// use the image convention: (0,0) is the top-left pixel, X grows rightward and
// Y grows downward.
//
// # Calibration Vector
//
// The fitter works on a flat 14-gene Vector rather than on a Calibration:
//
//	[0:2]   x, y of the intersection of the optical axis with Z=0
//	[2]     R, distance from the intersection to the projection centre
//	[3:6]   omega, phi, kappa
//	[6:9]   xh, yh, cc (primary point and camera constant)
//	[9:12]  k1, k2, k3 (radial distortion)
//	[12:14] p1, p2 (decentering)
//
// FromVector turns a Vector into a Calibration that can project points.
package calib
