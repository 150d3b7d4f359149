// Package imaging loads camera frames and prepares them for particle and
// target detection.
//
// Frames are decoded once through ImageCache and converted either to a
// floating point Raster (values in [0, 1]) for the correlation and scale-space
// detectors, or to an 8-bit highpassed image for reference-target
// recognition.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Filters never modify their
// input and can be called concurrently.
//
// # Filters
//
//   - Highpass: box lowpass subtraction, clipped at zero, 8-bit output
//   - GaussianBlur: separable float Gaussian, kernel truncated at 4 sigma,
//     edges repeated outward
//
// # Performance Considerations
//
// Large 16-bit frames occupy eight bytes per pixel once converted to a
// Raster. Use Evict() or Clear() to manage memory for long-running processes.
package imaging
