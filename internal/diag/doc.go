// Package diag renders calibration diagnostics: overlays of detected and
// projected points on the highpassed frame, fitness history plots and a
// plain text report of a calibration vector.
package diag
