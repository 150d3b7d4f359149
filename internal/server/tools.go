package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var pathProperty = map[string]interface{}{
	"type":        "string",
	"description": "Absolute path to the image file",
}

var roiProperty = map[string]interface{}{
	"type": "string",
	"description": "Optional region of interest: a named region (top-left, top-right, bottom-left, bottom-right, " +
		"top-half, bottom-half, left-half, right-half, center) or \"x1,y1,x2,y2\". Coordinates in the " +
		"result stay relative to the full image. Default: full image",
}

var highpassProperty = map[string]interface{}{
	"type":        "integer",
	"description": "Box filter width for background removal before detection. 0 disables it",
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "frame_info",
			Description: "Load a camera frame and return its dimensions, format and bit depth.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},

		// Particle detection
		{
			Name:        "particles_detect_large",
			Description: "Find large bright particles by normalised cross-correlation with a disk template, followed by peak finding.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"approx_size": map[string]interface{}{
						"type":        "integer",
						"description": "Particle radius in pixels. Default 15",
						"default":     15,
					},
					"peak_thresh": map[string]interface{}{
						"type":        "number",
						"description": "Minimum correlation of a peak. Default 0.5",
						"default":     0.5,
					},
					"roi":           roiProperty,
					"highpass_size": highpassProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "particles_detect_blobs",
			Description: "Find particles with a difference-of-Gaussians blob detector.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"approx_size": map[string]interface{}{
						"type":        "integer",
						"description": "Pixel count reported for every target. Default 15",
						"default":     15,
					},
					"thresh": map[string]interface{}{
						"type":        "number",
						"description": "Minimum scale-space response, with intensities in [0, 1]. Default 0.1",
						"default":     0.1,
					},
					"roi":           roiProperty,
					"highpass_size": highpassProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "particles_detect_targets",
			Description: "Highpass the frame and find calibration targets as connected bright regions with grey-weighted centroids.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"highpass_size": map[string]interface{}{
						"type":        "integer",
						"description": "Box filter width for background removal. Default 25",
						"default":     25,
					},
					"grey_threshold": map[string]interface{}{
						"type":        "integer",
						"description": "Minimum highpassed grey value of a target pixel. Default 40",
						"default":     40,
					},
					"min_pixels": map[string]interface{}{
						"type":        "integer",
						"description": "Minimum pixel count of a target. Default 4",
						"default":     4,
					},
					"max_pixels": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum pixel count of a target. Default 500",
						"default":     500,
					},
					"roi": roiProperty,
				},
				"required": []string{"path"},
			},
		},

		// Blob files
		{
			Name:        "blobfile_read_frame",
			Description: "Read one frame from a recorded blob file and return its blobs as targets.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the blob file",
					},
					"frame": map[string]interface{}{
						"type":        "integer",
						"description": "Frame number, from 0. Default 0",
						"default":     0,
					},
					"approx_size": map[string]interface{}{
						"type":        "integer",
						"description": "Pixel count reported for every target. Default 15",
						"default":     15,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "blobfile_scan",
			Description: "Summarise the headers and first frames of several blob files.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Absolute paths to blob files",
					},
					"max_frames": map[string]interface{}{
						"type":        "integer",
						"description": "Frames to read per file. Default 100",
						"default":     100,
					},
				},
				"required": []string{"paths"},
			},
		},

		// Calibration
		{
			Name:        "calib_project",
			Description: "Project 3D points to pixel coordinates with a 14-parameter calibration vector.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"vector": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"minItems":    14,
						"maxItems":    14,
						"description": "Calibration vector: intersection x, y, radius, omega, phi, kappa, xh, yh, cc, k1, k2, k3, p1, p2",
					},
					"points": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type":     "array",
							"items":    map[string]interface{}{"type": "number"},
							"minItems": 3,
							"maxItems": 3,
						},
						"description": "3D points as [x, y, z]",
					},
					"known_points": map[string]interface{}{
						"type":        "string",
						"description": "Path to a known-points file, used when points is empty",
					},
					"glass_vec": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"description": "Glass normal vector. Default [0, 0, 1]",
					},
					"image_size": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "integer"},
						"description": "Sensor width and height in pixels",
					},
					"pixel_size": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"description": "Pixel width and height in mm",
					},
					"multimedia": map[string]interface{}{
						"type":        "object",
						"description": "Optional optical path: cam_side_n, wall_ns, wall_thicks, object_side_n. Default air",
					},
				},
				"required": []string{"vector", "image_size", "pixel_size"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
