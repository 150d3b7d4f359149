// Package blobfile reads the binary files written by the real-time blob
// recorder.
//
// A file is a header followed by frames, all little-endian:
//
//	header:  framecount int32, tstart [7]int32, tend [7]int32
//	frame:   stamp int32, frame_n int32, blob_count int32
//	record:  x0 x1 y0 y1 int16, higher_bits 64-bit
//
// higher_bits packs the blob area (bits 0..19) and the centroid in 1/256
// pixel units (x in bits 24..43, y in bits 44..63). It is decoded as an
// unsigned value so y never picks up a sign.
package blobfile
