package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r3"

	"github.com/ironsheep/evocal/internal/blobfile"
	"github.com/ironsheep/evocal/internal/calib"
	"github.com/ironsheep/evocal/internal/detection"
	"github.com/ironsheep/evocal/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "particles_detect_large").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	case "frame_info":
		return s.handleFrameInfo(args)

	// Particle detection
	case "particles_detect_large":
		return s.handleDetectLarge(args)
	case "particles_detect_blobs":
		return s.handleDetectBlobs(args)
	case "particles_detect_targets":
		return s.handleDetectTargets(args)

	// Blob files
	case "blobfile_read_frame":
		return s.handleBlobfileReadFrame(args)
	case "blobfile_scan":
		return s.handleBlobfileScan(ctx, args)

	// Calibration
	case "calib_project":
		return s.handleCalibProject(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	e := &MCPError{
		Code:    code,
		Message: message,
	}
	if data != "" {
		e.Data = data
	}
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   e,
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// DetectionResult is returned by the particle detection tools.
type DetectionResult struct {
	Count   int                `json:"count"`
	Region  image.Rectangle    `json:"region"`
	Targets []detection.Target `json:"targets"`
}

// loadRegion loads path, crops it to roi and optionally highpasses it. The
// offset of the region in the full frame is returned with it.
func (s *Server) loadRegion(path, roi string, highpassSize int) (image.Image, image.Rectangle, error) {
	if path == "" {
		return nil, image.Rectangle{}, errors.New("path is required")
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, image.Rectangle{}, err
	}

	b := img.Bounds()
	rect, err := imaging.ParseRegion(roi, b.Dx(), b.Dy())
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	if rect.Empty() {
		rect = image.Rect(0, 0, b.Dx(), b.Dy())
	}
	region, err := imaging.CropRegion(img, rect)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	if highpassSize > 0 {
		region = imaging.Highpass(region, highpassSize)
	}
	return region, rect, nil
}

// detectionResult shifts targets found in a region back to frame coordinates.
func detectionResult(targets []detection.Target, rect image.Rectangle) *DetectionResult {
	for i := range targets {
		targets[i].X += float64(rect.Min.X)
		targets[i].Y += float64(rect.Min.Y)
	}
	if targets == nil {
		targets = []detection.Target{}
	}
	return &DetectionResult{Count: len(targets), Region: rect, Targets: targets}
}

// === Frame information ===

type frameInfoArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleFrameInfo(args json.RawMessage) (interface{}, error) {
	var a frameInfoArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}
	return imaging.LoadFrameInfo(s.cache, a.Path)
}

// === Particle detection ===

type detectLargeArgs struct {
	Path         string   `json:"path"`
	ApproxSize   int      `json:"approx_size"`
	PeakThresh   *float64 `json:"peak_thresh"`
	ROI          string   `json:"roi"`
	HighpassSize int      `json:"highpass_size"`
}

func (s *Server) handleDetectLarge(args json.RawMessage) (interface{}, error) {
	var a detectLargeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.ApproxSize == 0 {
		a.ApproxSize = 15
	}
	thresh := 0.5
	if a.PeakThresh != nil {
		thresh = *a.PeakThresh
	}

	img, rect, err := s.loadRegion(a.Path, a.ROI, a.HighpassSize)
	if err != nil {
		return nil, err
	}
	targets, err := detection.DetectLargeParticles(img, a.ApproxSize, thresh)
	if err != nil {
		return nil, err
	}
	return detectionResult(targets, rect), nil
}

type detectBlobsArgs struct {
	Path         string   `json:"path"`
	ApproxSize   int      `json:"approx_size"`
	Thresh       *float64 `json:"thresh"`
	ROI          string   `json:"roi"`
	HighpassSize int      `json:"highpass_size"`
}

func (s *Server) handleDetectBlobs(args json.RawMessage) (interface{}, error) {
	var a detectBlobsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.ApproxSize == 0 {
		a.ApproxSize = 15
	}
	thresh := 0.1
	if a.Thresh != nil {
		thresh = *a.Thresh
	}

	img, rect, err := s.loadRegion(a.Path, a.ROI, a.HighpassSize)
	if err != nil {
		return nil, err
	}
	targets, err := detection.DetectBlobs(img, a.ApproxSize, thresh)
	if err != nil {
		return nil, err
	}
	return detectionResult(targets, rect), nil
}

type detectTargetsArgs struct {
	Path          string `json:"path"`
	HighpassSize  *int   `json:"highpass_size"`
	GreyThreshold int    `json:"grey_threshold"`
	MinPixels     int    `json:"min_pixels"`
	MaxPixels     int    `json:"max_pixels"`
	ROI           string `json:"roi"`
}

func (s *Server) handleDetectTargets(args json.RawMessage) (interface{}, error) {
	var a detectTargetsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	size := 25
	if a.HighpassSize != nil {
		size = *a.HighpassSize
	}
	p := detection.DefaultTargetParams()
	if a.GreyThreshold > 0 {
		p.GreyThreshold = a.GreyThreshold
	}
	if a.MinPixels > 0 {
		p.MinPixels = a.MinPixels
	}
	if a.MaxPixels > 0 {
		p.MaxPixels = a.MaxPixels
	}

	img, rect, err := s.loadRegion(a.Path, a.ROI, 0)
	if err != nil {
		return nil, err
	}
	// A size of 0 still produces the grey frame.
	targets, err := detection.DetectTargets(imaging.Highpass(img, size), p)
	if err != nil {
		return nil, err
	}
	return detectionResult(targets, rect), nil
}

// === Blob files ===

type blobfileReadFrameArgs struct {
	Path       string `json:"path"`
	Frame      int    `json:"frame"`
	ApproxSize int    `json:"approx_size"`
}

// BlobFrameResult is returned by blobfile_read_frame.
type BlobFrameResult struct {
	Frame     int                `json:"frame"`
	Stamp     int32              `json:"stamp"`
	FrameN    int32              `json:"frame_n"`
	BlobCount int                `json:"blob_count"`
	Targets   []detection.Target `json:"targets"`
}

func (s *Server) handleBlobfileReadFrame(args json.RawMessage) (interface{}, error) {
	var a blobfileReadFrameArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}
	if a.ApproxSize == 0 {
		a.ApproxSize = 15
	}

	f, err := blobfile.ReadFrame(a.Path, a.Frame)
	if err != nil {
		return nil, err
	}
	return &BlobFrameResult{
		Frame:     f.Index,
		Stamp:     f.Stamp,
		FrameN:    f.FrameN,
		BlobCount: len(f.Records),
		Targets:   f.Targets(a.ApproxSize),
	}, nil
}

type blobfileScanArgs struct {
	Paths     []string `json:"paths"`
	MaxFrames int      `json:"max_frames"`
}

func (s *Server) handleBlobfileScan(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a blobfileScanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.Paths) == 0 {
		return nil, errors.New("paths must not be empty")
	}
	if a.MaxFrames <= 0 {
		a.MaxFrames = 100
	}
	return blobfile.ScanFiles(ctx, a.Paths, a.MaxFrames)
}

// === Calibration ===

type calibProjectArgs struct {
	Vector      []float64               `json:"vector"`
	Points      [][3]float64            `json:"points"`
	KnownPoints string                  `json:"known_points"`
	GlassVec    *[3]float64             `json:"glass_vec"`
	ImageSize   [2]int                  `json:"image_size"`
	PixelSize   [2]float64              `json:"pixel_size"`
	Multimedia  *calib.MultimediaParams `json:"multimedia"`
}

// ProjectedPoint is one projected point in pixel coordinates. Points that
// cannot be projected have Valid unset and zero coordinates.
type ProjectedPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Valid bool    `json:"valid"`
}

// ProjectResult is returned by calib_project.
type ProjectResult struct {
	Count  int              `json:"count"`
	Points []ProjectedPoint `json:"points"`
}

func (s *Server) handleCalibProject(args json.RawMessage) (interface{}, error) {
	var a calibProjectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	glass := r3.Vector{Z: 1}
	if a.GlassVec != nil {
		glass = r3.Vector{X: a.GlassVec[0], Y: a.GlassVec[1], Z: a.GlassVec[2]}
	}
	if glass.Norm() == 0 {
		return nil, errors.New("glass_vec must not be zero")
	}
	cal, err := calib.FromVector(calib.Vector(a.Vector), glass)
	if err != nil {
		return nil, err
	}

	cpar := calib.ControlParams{
		ImageWidth:  a.ImageSize[0],
		ImageHeight: a.ImageSize[1],
		PixelWidth:  a.PixelSize[0],
		PixelHeight: a.PixelSize[1],
		Multimedia:  calib.Air(),
	}
	if a.Multimedia != nil {
		cpar.Multimedia = *a.Multimedia
	}
	if err := cpar.Validate(); err != nil {
		return nil, err
	}

	var points []r3.Vector
	switch {
	case len(a.Points) > 0:
		points = make([]r3.Vector, len(a.Points))
		for i, p := range a.Points {
			points[i] = r3.Vector{X: p[0], Y: p[1], Z: p[2]}
		}
	case a.KnownPoints != "":
		points, err = calib.LoadKnownPoints(a.KnownPoints)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("points or known_points is required")
	}

	pix := cal.PixelCoords(points, cpar)
	out := make([]ProjectedPoint, len(pix))
	for i, p := range pix {
		if finite(p.X) && finite(p.Y) {
			out[i] = ProjectedPoint{X: p.X, Y: p.Y, Valid: true}
		}
	}
	return &ProjectResult{Count: len(out), Points: out}, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
