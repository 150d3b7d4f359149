package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/evocal/internal/blobfile"
	"github.com/ironsheep/evocal/internal/detection"
)

// createTestImageFile writes img as a PNG in a temp dir and returns its path.
func createTestImageFile(t *testing.T, img image.Image) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// createDiskFrame draws filled disks of the given radius on a black frame.
func createDiskFrame(width, height, radius int, centres ...image.Point) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for _, c := range centres {
		for y := -radius; y <= radius; y++ {
			for x := -radius; x <= radius; x++ {
				if x*x+y*y <= radius*radius {
					img.SetGray(c.X+x, c.Y+y, color.Gray{Y: 220})
				}
			}
		}
	}
	return img
}

// createSpotFrame draws Gaussian spots of the given sigma on a black frame.
func createSpotFrame(width, height int, sigma float64, centres ...image.Point) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := 0.0
			for _, c := range centres {
				dx, dy := float64(x-c.X), float64(y-c.Y)
				v += math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			}
			img.SetGray(x, y, color.Gray{Y: uint8(math.Min(v, 1) * 255)})
		}
	}
	return img
}

// callTool runs a tools/call request and decodes the text content into out.
func callTool(t *testing.T, s *Server, name string, args interface{}, out interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, _ := json.Marshal(params)

	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil || out == nil {
		return resp
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	text := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("failed to decode tool result %q: %v", text, err)
	}
	return resp
}

func targetSet(targets []detection.Target) map[detection.Point]bool {
	set := make(map[detection.Point]bool)
	for _, tg := range targets {
		set[tg.Pos()] = true
	}
	return set
}

func TestHandleToolsCall_FrameInfo(t *testing.T) {
	s := New()
	path := createTestImageFile(t, image.NewGray(image.Rect(0, 0, 120, 80)))

	var info struct {
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Format string `json:"format"`
		Grey   bool   `json:"grey"`
	}
	resp := callTool(t, s, "frame_info", map[string]interface{}{"path": path}, &info)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if info.Width != 120 || info.Height != 80 || info.Format != "png" || !info.Grey {
		t.Errorf("frame info: %+v", info)
	}
}

func TestHandleToolsCall_NonExistentFile(t *testing.T) {
	s := New()
	for _, tool := range []string{"frame_info", "particles_detect_large", "particles_detect_blobs", "particles_detect_targets", "blobfile_read_frame"} {
		t.Run(tool, func(t *testing.T) {
			resp := callTool(t, s, tool, map[string]interface{}{"path": "/nonexistent/frame.png"}, nil)
			if resp.Error == nil {
				t.Fatal("expected error for missing file")
			}
			if resp.Error.Code != -32000 {
				t.Errorf("Code: got %d, want -32000", resp.Error.Code)
			}
		})
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := New()
	resp := s.handleToolsCall(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Params:  json.RawMessage(`{invalid json}`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("got %+v, want -32602", resp.Error)
	}
}

func TestHandleToolsCall_DetectLarge(t *testing.T) {
	s := New()
	path := createTestImageFile(t, createDiskFrame(100, 100, 8, image.Pt(30, 40), image.Pt(70, 62)))

	var res DetectionResult
	resp := callTool(t, s, "particles_detect_large", map[string]interface{}{
		"path":        path,
		"approx_size": 8,
	}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if res.Count != 2 {
		t.Fatalf("got %d targets, want 2: %+v", res.Count, res.Targets)
	}
	got := targetSet(res.Targets)
	for _, want := range []detection.Point{{X: 30, Y: 40}, {X: 70, Y: 62}} {
		if !got[want] {
			t.Errorf("missing target at %+v", want)
		}
	}
}

func TestHandleToolsCall_DetectLarge_ROI(t *testing.T) {
	s := New()
	path := createTestImageFile(t, createDiskFrame(100, 100, 8, image.Pt(30, 40), image.Pt(70, 62)))

	var res DetectionResult
	resp := callTool(t, s, "particles_detect_large", map[string]interface{}{
		"path":        path,
		"approx_size": 8,
		"roi":         "right-half",
	}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if res.Region != image.Rect(50, 0, 100, 100) {
		t.Errorf("region: got %v", res.Region)
	}
	if res.Count != 1 {
		t.Fatalf("got %d targets, want 1: %+v", res.Count, res.Targets)
	}
	// Coordinates are reported in the full frame.
	if res.Targets[0].Pos() != (detection.Point{X: 70, Y: 62}) {
		t.Errorf("target: got (%g,%g), want (70,62)", res.Targets[0].X, res.Targets[0].Y)
	}
}

func TestHandleToolsCall_DetectLarge_BadROI(t *testing.T) {
	s := New()
	path := createTestImageFile(t, image.NewGray(image.Rect(0, 0, 20, 20)))

	for _, roi := range []string{"middle", "10,10,5,5", "0,0,50,50"} {
		resp := callTool(t, s, "particles_detect_large", map[string]interface{}{"path": path, "roi": roi}, nil)
		if resp.Error == nil {
			t.Errorf("roi %q: expected error", roi)
		}
	}
}

func TestHandleToolsCall_DetectBlobs(t *testing.T) {
	s := New()
	path := createTestImageFile(t, createSpotFrame(64, 64, 2, image.Pt(20, 30), image.Pt(45, 12)))

	var res DetectionResult
	resp := callTool(t, s, "particles_detect_blobs", map[string]interface{}{"path": path}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if res.Count != 2 {
		t.Fatalf("got %d blobs, want 2: %+v", res.Count, res.Targets)
	}
	got := targetSet(res.Targets)
	for _, want := range []detection.Point{{X: 20, Y: 30}, {X: 45, Y: 12}} {
		if !got[want] {
			t.Errorf("missing blob at %+v", want)
		}
	}
}

func TestHandleToolsCall_DetectTargets(t *testing.T) {
	s := New()
	img := image.NewGray(image.Rect(0, 0, 80, 60))
	// Two 3x3 targets on a black frame.
	for _, c := range []image.Point{{20, 15}, {55, 40}} {
		for y := -1; y <= 1; y++ {
			for x := -1; x <= 1; x++ {
				img.SetGray(c.X+x, c.Y+y, color.Gray{Y: 200})
			}
		}
	}
	path := createTestImageFile(t, img)

	var res DetectionResult
	resp := callTool(t, s, "particles_detect_targets", map[string]interface{}{
		"path":          path,
		"highpass_size": 0,
	}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if res.Count != 2 {
		t.Fatalf("got %d targets, want 2: %+v", res.Count, res.Targets)
	}
	// Targets are ordered top to bottom.
	if res.Targets[0].Pos() != (detection.Point{X: 20, Y: 15}) || res.Targets[1].Pos() != (detection.Point{X: 55, Y: 40}) {
		t.Errorf("targets: %+v", res.Targets)
	}
	if res.Targets[0].N != 9 {
		t.Errorf("pixel count: got %d, want 9", res.Targets[0].N)
	}

	// Raising the minimum size drops both.
	resp = callTool(t, s, "particles_detect_targets", map[string]interface{}{
		"path":          path,
		"highpass_size": 0,
		"min_pixels":    10,
	}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if res.Count != 0 || res.Targets == nil {
		t.Errorf("got %+v, want an empty target list", res)
	}
}

func writeBlobFile(t *testing.T) string {
	t.Helper()
	h := blobfile.Header{FrameCount: 2}
	frames := []blobfile.Frame{
		{FrameHeader: blobfile.FrameHeader{Stamp: 5, FrameN: 0}},
		{FrameHeader: blobfile.FrameHeader{Stamp: 6, FrameN: 1}, Records: []blobfile.Record{
			{X0: 1, X1: 5, Y0: 2, Y1: 6, HigherBits: blobfile.EncodeBits(16, 3, 4)},
			{X0: 20, X1: 22, Y0: 30, Y1: 33, HigherBits: blobfile.EncodeBits(6, 21.5, 31.25)},
		}},
	}

	var buf bytes.Buffer
	if err := blobfile.Write(&buf, h, frames); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "blob0.dat")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write blob file: %v", err)
	}
	return path
}

func TestHandleToolsCall_BlobfileReadFrame(t *testing.T) {
	s := New()
	path := writeBlobFile(t)

	var res BlobFrameResult
	resp := callTool(t, s, "blobfile_read_frame", map[string]interface{}{"path": path, "frame": 1}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if res.Frame != 1 || res.Stamp != 6 || res.BlobCount != 2 {
		t.Errorf("frame: %+v", res)
	}
	if res.Targets[1].Pos() != (detection.Point{X: 21.5, Y: 31.25}) {
		t.Errorf("second target: got (%g,%g)", res.Targets[1].X, res.Targets[1].Y)
	}

	resp = callTool(t, s, "blobfile_read_frame", map[string]interface{}{"path": path, "frame": 5}, nil)
	if resp.Error == nil {
		t.Error("expected error for a frame past the end")
	}
}

func TestHandleToolsCall_BlobfileScan(t *testing.T) {
	s := New()
	path := writeBlobFile(t)
	missing := filepath.Join(t.TempDir(), "missing.dat")

	var res []blobfile.Summary
	resp := callTool(t, s, "blobfile_scan", map[string]interface{}{"paths": []string{path, missing}}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if len(res) != 2 {
		t.Fatalf("got %d summaries, want 2", len(res))
	}
	if res[0].Frames != 2 || res[0].Blobs != 2 || res[0].NonEmpty != 1 || res[0].Err != "" {
		t.Errorf("summary: %+v", res[0])
	}
	if res[1].Err == "" {
		t.Error("missing file should report an error")
	}
}

func TestHandleToolsCall_CalibProject(t *testing.T) {
	s := New()
	args := map[string]interface{}{
		"vector":     []float64{0, 0, 100, 0, 0, 0, 0, 0, 10, 0, 0, 0, 0, 0},
		"points":     [][3]float64{{0, 0, 0}, {10, 0, 0}, {0, 10, 0}},
		"glass_vec":  []float64{0, 0, -50},
		"image_size": []int{1000, 1000},
		"pixel_size": []float64{0.01, 0.01},
	}

	var res ProjectResult
	resp := callTool(t, s, "calib_project", args, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	want := [][2]float64{{500, 500}, {600, 500}, {500, 400}}
	if res.Count != len(want) {
		t.Fatalf("got %d points, want %d", res.Count, len(want))
	}
	for i, p := range res.Points {
		if !p.Valid || math.Abs(p.X-want[i][0]) > 1e-6 || math.Abs(p.Y-want[i][1]) > 1e-6 {
			t.Errorf("point %d: got %+v, want %v", i, p, want[i])
		}
	}
}

func TestHandleToolsCall_CalibProject_KnownPoints(t *testing.T) {
	s := New()
	kp := filepath.Join(t.TempDir(), "cal.txt")
	if err := os.WriteFile(kp, []byte("1 0 0 0\n2 10 0 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var res ProjectResult
	resp := callTool(t, s, "calib_project", map[string]interface{}{
		"vector":       []float64{0, 0, 100, 0, 0, 0, 0, 0, 10, 0, 0, 0, 0, 0},
		"known_points": kp,
		"image_size":   []int{1000, 1000},
		"pixel_size":   []float64{0.01, 0.01},
	}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if res.Count != 2 || math.Abs(res.Points[1].X-600) > 1e-6 {
		t.Errorf("projection: %+v", res)
	}
}

func TestHandleToolsCall_CalibProject_Errors(t *testing.T) {
	s := New()
	base := func() map[string]interface{} {
		return map[string]interface{}{
			"vector":     []float64{0, 0, 100, 0, 0, 0, 0, 0, 10, 0, 0, 0, 0, 0},
			"points":     [][3]float64{{0, 0, 0}},
			"image_size": []int{1000, 1000},
			"pixel_size": []float64{0.01, 0.01},
		}
	}

	tests := []struct {
		name   string
		modify func(map[string]interface{})
		want   string
	}{
		{"short vector", func(a map[string]interface{}) { a["vector"] = []float64{1, 2} }, "vector"},
		{"no points", func(a map[string]interface{}) { delete(a, "points") }, "points"},
		{"zero glass", func(a map[string]interface{}) { a["glass_vec"] = []float64{0, 0, 0} }, "glass_vec"},
		{"no pixel size", func(a map[string]interface{}) { delete(a, "pixel_size") }, "pixel size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := base()
			tt.modify(args)
			resp := callTool(t, s, "calib_project", args, nil)
			if resp.Error == nil {
				t.Fatal("expected error")
			}
			if data, _ := resp.Error.Data.(string); !strings.Contains(data, tt.want) {
				t.Errorf("error %q should mention %q", data, tt.want)
			}
		})
	}
}

func TestExecuteTool_UnknownTool(t *testing.T) {
	s := New()
	_, err := s.executeTool(context.Background(), "image_ocr_full", json.RawMessage(`{}`))
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("got %v, want unknown tool error", err)
	}
}

func TestExecuteTool_InvalidJSON(t *testing.T) {
	s := New()
	_, err := s.executeTool(context.Background(), "frame_info", json.RawMessage(`{"path": 3}`))
	if err == nil {
		t.Error("expected error for mistyped arguments")
	}
}
