package calib

import (
	"fmt"
	"math"
)

// camera0 bounds every gene and fills in whatever the other presets leave out.
var camera0 = Bounds{
	{-20, 20}, {-20, 20},                                     // offset
	{210, 300},                                               // R
	{-0.3, 0.3}, {math.Pi - 0.3, math.Pi + 0.3}, {-0.5, 0.5}, // angles
	{-0.05, 0.05}, {-0.05, 0.05}, {70, 90},                   // primary point
	{-1e-5, 1e-5}, {-1e-5, 1e-5}, {-1e-5, 1e-5},              // radial distortion
	{-1e-5, 1e-5}, {-1e-5, 1e-5},                             // decentering
}

var presets = map[int]Bounds{
	0: camera0,
	1: {{-20, 20}, {-20, 20}, {210, 300}, {-0.3, 0.3}, {math.Pi - 0.3, math.Pi + 0.3}, {-0.5, 0.5}},
	2: {{-20, 20}, {-20, 20}, {210, 300}, {-0.4, 0.4}, {-0.3, 0.3}, {-0.3, 0.3}},
	3: {{-20, 20}, {-20, 20}, {210, 300}, {-0.3, 0.3}, {-0.3, 0.3}, {-0.3, 0.3}},
}

// PresetBounds returns the search bounds of a numbered camera in the
// four-camera rig, completed to VectorLen genes.
func PresetBounds(camera int) (Bounds, error) {
	b, ok := presets[camera]
	if !ok {
		return nil, fmt.Errorf("no preset bounds for camera %d", camera)
	}
	return CompleteBounds(b), nil
}

// CompleteBounds pads partial bounds with the camera 0 ranges so that every
// gene is bounded. Bounds longer than VectorLen are returned unchanged.
func CompleteBounds(b Bounds) Bounds {
	out := make(Bounds, 0, VectorLen)
	out = append(out, b...)
	for i := len(out); i < VectorLen; i++ {
		out = append(out, camera0[i])
	}
	return out
}
