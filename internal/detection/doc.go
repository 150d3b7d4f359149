// Package detection finds particles and reference targets in camera frames.
//
// Three detectors are provided, each returning a slice of Target:
//
//   - DetectLargeParticles: normalised cross-correlation with a disk
//     template followed by peak finding. Suited to particles many pixels
//     across.
//   - DetectBlobs: difference of Gaussians over a short scale range with
//     overlap pruning. Suited to small particles.
//   - DetectTargets: connected regions of a highpassed frame filtered by
//     size and brightness. Used for calibration target dots.
//
// # Algorithm Overview
//
// Template matching computes the correlation term by 2D FFT and the window
// statistics with integral images, so its cost does not grow with the
// template area. The response is centred on the template: the value at
// (x, y) scores a particle centred on (x, y).
//
// The blob detector blurs the frame at sigmas 1, 1.6, 2.56, 4.096 and 6.5536,
// scales each difference layer by its sigma, and keeps 3x3x3 scale-space
// maxima above the threshold.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// Target positions are (x, y) in that order.
//
// # Targets
//
// Detectors that do not measure pixel counts or brightness fill them with
// placeholders (see Targetize). Every target starts with TNR set to
// CorresNone.
package detection
