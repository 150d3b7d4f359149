package blobfile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/evocal/internal/detection"
)

// writeTestFile writes frames to a temp blob file and returns its path.
func writeTestFile(t *testing.T, h Header, frames []Frame) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, h, frames); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "blob0.dat")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

func testFrames() (Header, []Frame) {
	h := Header{FrameCount: 3}
	h.TStart[0], h.TEnd[0] = 2017, 2017
	frames := []Frame{
		{FrameHeader: FrameHeader{Stamp: 10, FrameN: 0}, Records: []Record{
			{X0: 1, X1: 5, Y0: 2, Y1: 6, HigherBits: EncodeBits(16, 3, 4)},
			{X0: 20, X1: 22, Y0: 30, Y1: 33, HigherBits: EncodeBits(6, 21.5, 31.25)},
		}},
		{FrameHeader: FrameHeader{Stamp: 11, FrameN: 1}},
		{FrameHeader: FrameHeader{Stamp: 12, FrameN: 2}, Records: []Record{
			{X0: -3, X1: 100, Y0: 7, Y1: 9, HigherBits: EncodeBits(100, 10, 640)},
		}},
	}
	return h, frames
}

func TestDecodeBits(t *testing.T) {
	tests := []struct {
		name     string
		bits     uint64
		wantArea uint32
		wantX    float64
		wantY    float64
	}{
		{"area and x", 100 | 2560<<24, 100, 10, 0},
		{"y only", 512 << 44, 0, 0, 2},
		{"fractional", 7 | 0x80<<24 | 0x40<<44, 7, 0.5, 0.25},
		{"top bit set", 1 << 63, 0, 0, float64(1<<19) / 256},
		{"unused bits ignored", 0xF00000, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			area, x, y := DecodeBits(tt.bits)
			if area != tt.wantArea || x != tt.wantX || y != tt.wantY {
				t.Errorf("DecodeBits(%#x) = (%d, %g, %g), want (%d, %g, %g)",
					tt.bits, area, x, y, tt.wantArea, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestEncodeBits(t *testing.T) {
	const maxCentroid = float64(0xFFFFF) / 256

	tests := []struct {
		name         string
		x, y         float64
		wantX, wantY float64
	}{
		{"in range", 511.75, 1023.5, 511.75, 1023.5},
		{"truncated", 10.001, 2.999, 10, 2.99609375},
		{"negative", -3, -0.5, 0, 0},
		{"too large", 5000, 1e9, maxCentroid, maxCentroid},
		{"not a number", math.NaN(), math.Inf(-1), 0, 0},
		{"infinite", math.Inf(1), 7, maxCentroid, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			area, x, y := DecodeBits(EncodeBits(1234, tt.x, tt.y))
			if area != 1234 || x != tt.wantX || y != tt.wantY {
				t.Errorf("got (%d, %g, %g), want (1234, %g, %g)", area, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestReader(t *testing.T) {
	h, frames := testFrames()
	var buf bytes.Buffer
	if err := Write(&buf, h, frames); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if want := HeaderSize + 3*FrameHeaderSize + 3*RecordSize; buf.Len() != want {
		t.Fatalf("encoded size: got %d, want %d", buf.Len(), want)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if r.Header() != h {
		t.Errorf("header: got %+v, want %+v", r.Header(), h)
	}

	for i, want := range frames {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got.Index != i || got.Stamp != want.Stamp || got.FrameN != want.FrameN {
			t.Errorf("frame %d header: got %+v", i, got.FrameHeader)
		}
		if int(got.BlobCount) != len(want.Records) || len(got.Records) != len(want.Records) {
			t.Fatalf("frame %d: got %d records, want %d", i, len(got.Records), len(want.Records))
		}
		for j := range want.Records {
			if got.Records[j] != want.Records[j] {
				t.Errorf("frame %d record %d: got %+v, want %+v", i, j, got.Records[j], want.Records[j])
			}
		}
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after last frame: got %v, want io.EOF", err)
	}
}

func TestReader_StopsAtFrameCount(t *testing.T) {
	h, frames := testFrames()
	h.FrameCount = 1

	var buf bytes.Buffer
	if err := Write(&buf, h, frames); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestReader_EndsOnFrameBoundary(t *testing.T) {
	h, frames := testFrames()
	h.FrameCount = 10

	var buf bytes.Buffer
	if err := Write(&buf, h, frames); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	n := 0
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("frame %d: %v", n, err)
		}
		n++
	}
	if n != 3 {
		t.Errorf("read %d frames, want 3", n)
	}
}

func TestReader_Truncated(t *testing.T) {
	h, frames := testFrames()
	var buf bytes.Buffer
	if err := Write(&buf, h, frames); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data := buf.Bytes()

	tests := []struct {
		name string
		size int
	}{
		{"inside header", HeaderSize - 1},
		{"inside first frame header", HeaderSize + 5},
		{"inside first record", HeaderSize + FrameHeaderSize + 3},
		{"inside last record", len(data) - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(bytes.NewReader(data[:tt.size]))
			if err != nil {
				if !errors.Is(err, io.ErrUnexpectedEOF) {
					t.Errorf("header error: got %v, want io.ErrUnexpectedEOF", err)
				}
				return
			}
			for {
				_, err = r.Next()
				if err != nil {
					break
				}
			}
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("got %v, want io.ErrUnexpectedEOF", err)
			}
		})
	}
}

func TestReader_Corrupt(t *testing.T) {
	h := Header{FrameCount: 1}
	var buf bytes.Buffer
	if err := Write(&buf, h, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// Frame header with a negative blob count.
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF})

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("got %v, want ErrCorrupt", err)
	}
}

func TestReader_NegativeFrameCount(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Header{FrameCount: -2}, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := NewReader(&buf); !errors.Is(err, ErrCorrupt) {
		t.Errorf("got %v, want ErrCorrupt", err)
	}
}

func TestReadFrame(t *testing.T) {
	h, frames := testFrames()
	path := writeTestFile(t, h, frames)

	f, err := ReadFrame(path, 2)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if f.Index != 2 || f.Stamp != 12 || len(f.Records) != 1 {
		t.Fatalf("got frame %+v", f)
	}
	if got := f.Records[0].Area(); got != 100 {
		t.Errorf("area: got %d, want 100", got)
	}
	if x, y := f.Records[0].Centroid(); x != 10 || y != 640 {
		t.Errorf("centroid: got (%g,%g), want (10,640)", x, y)
	}
}

func TestReadFrame_Errors(t *testing.T) {
	h, frames := testFrames()
	path := writeTestFile(t, h, frames)

	if _, err := ReadFrame(path, 3); !errors.Is(err, ErrFrameNotFound) {
		t.Errorf("past end: got %v, want ErrFrameNotFound", err)
	}
	if _, err := ReadFrame(path, -1); err == nil {
		t.Error("negative frame should fail")
	}
	if _, err := ReadFrame(filepath.Join(t.TempDir(), "missing.dat"), 0); err == nil {
		t.Error("missing file should fail")
	}
}

func TestFrame_Targets(t *testing.T) {
	_, frames := testFrames()

	targets := frames[0].Targets(5)
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	want := detection.Target{PNR: 1, X: 21.5, Y: 31.25, N: 100, NX: 10, NY: 10,
		SumGrey: detection.DefaultSumGrey, TNR: detection.CorresNone}
	if targets[1] != want {
		t.Errorf("got %+v, want %+v", targets[1], want)
	}
}

func TestScanFiles(t *testing.T) {
	h, frames := testFrames()
	good := writeTestFile(t, h, frames)

	truncated := filepath.Join(t.TempDir(), "short.dat")
	data, err := os.ReadFile(good)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if err := os.WriteFile(truncated, data[:len(data)-4], 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	missing := filepath.Join(t.TempDir(), "missing.dat")

	summaries, err := ScanFiles(context.Background(), []string{good, truncated, missing}, 2)
	if err != nil {
		t.Fatalf("ScanFiles failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("got %d summaries, want 3", len(summaries))
	}

	s := summaries[0]
	if s.Path != good || s.Err != "" {
		t.Errorf("good file: %+v", s)
	}
	if s.Frames != 2 || s.Blobs != 2 || s.NonEmpty != 1 || s.Header.FrameCount != 3 {
		t.Errorf("good file counts: %+v", s)
	}

	// The first two frames are intact, so the limit is reached before the damage.
	if summaries[1].Path != truncated || summaries[1].Err != "" || summaries[1].Frames != 2 {
		t.Errorf("truncated file within limit: %+v", summaries[1])
	}
	if summaries[2].Path != missing || summaries[2].Err == "" {
		t.Errorf("missing file should report an error: %+v", summaries[2])
	}
}

func TestScanFiles_TruncatedWithinLimit(t *testing.T) {
	h, frames := testFrames()
	good := writeTestFile(t, h, frames)
	data, err := os.ReadFile(good)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	path := filepath.Join(t.TempDir(), "short.dat")
	if err := os.WriteFile(path, data[:len(data)-4], 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	summaries, err := ScanFiles(context.Background(), []string{path}, 10)
	if err != nil {
		t.Fatalf("ScanFiles failed: %v", err)
	}
	if summaries[0].Err == "" || summaries[0].Frames != 2 {
		t.Errorf("got %+v, want an error after 2 frames", summaries[0])
	}
}

func TestScanFiles_Cancelled(t *testing.T) {
	h, frames := testFrames()
	path := writeTestFile(t, h, frames)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ScanFiles(ctx, []string{path, path}, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
