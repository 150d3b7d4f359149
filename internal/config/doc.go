// Package config loads calibration run descriptions.
//
// A run is described in YAML (or JSON5 for .json and .json5 files):
//
//	scene:
//	  image_size: [1280, 1024]
//	  pixel_size: [0.014, 0.014]
//	  cam_side_n: 1
//	  wall_ns: [1.46]
//	  wall_thicks: [5]
//	  object_side_n: 1.33
//	target:
//	  number: 0
//	  image: cam0.tif
//	  known_points: calblock.txt
//	  glass_vec: [0, 0, 20]
//	search:
//	  pop_size: 1500
//	  bounds: [[-20, 20], [-20, 20], [210, 300]]
//	detection:
//	  grey_threshold: 40
//	output:
//	  plot: cam0.png
//
// Only target.image, target.known_points, the scene sizes and a non-zero
// glass vector are required.
package config
