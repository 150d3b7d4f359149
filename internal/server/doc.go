// Package server implements an MCP (Model Context Protocol) server exposing
// the particle detectors, blob file reader and camera projection as tools.
//
// # Protocol
//
// The server speaks JSON-RPC 2.0, one request per line on stdin and one
// response per line on stdout. Supported methods are initialize, tools/list,
// tools/call and ping; notifications/initialized is accepted silently.
//
// # Tools
//
//   - frame_info: dimensions, format and bit depth of a frame
//   - particles_detect_large: template matching with a disk
//   - particles_detect_blobs: difference-of-Gaussians blobs
//   - particles_detect_targets: highpass and connected-region targets
//   - blobfile_read_frame: one frame of a recorded blob file
//   - blobfile_scan: header and frame summary of several blob files
//   - calib_project: project 3D points with a calibration vector
//
// Detection tools accept an optional roi; targets are still reported in
// full-frame coordinates.
//
// Tool results are returned as pretty-printed JSON in a single text content
// item. Tool failures use error code -32000, malformed parameters -32602 and
// unknown methods -32601.
//
// Frames are cached by path for the lifetime of the server.
package server
