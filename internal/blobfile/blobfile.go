package blobfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ironsheep/evocal/internal/detection"
)

// Sizes of the on-disk structures in bytes.
const (
	HeaderSize      = 4 + 7*4 + 7*4
	FrameHeaderSize = 3 * 4
	RecordSize      = 4*2 + 8
)

// MaxBlobsPerFrame bounds the blob count accepted from a frame header.
const MaxBlobsPerFrame = 1 << 22

var (
	// ErrCorrupt is returned for structurally invalid files.
	ErrCorrupt = errors.New("corrupt blob file")

	// ErrFrameNotFound is returned by ReadFrame when the file ends first.
	ErrFrameNotFound = errors.New("frame not found")
)

// Header is the file header written once by the recorder.
type Header struct {
	FrameCount int32    `json:"frame_count"`
	TStart     [7]int32 `json:"t_start"` // recording start time fields
	TEnd       [7]int32 `json:"t_end"`   // recording end time fields
}

// FrameHeader precedes the records of each frame.
type FrameHeader struct {
	Stamp     int32 `json:"stamp"`
	FrameN    int32 `json:"frame_n"`
	BlobCount int32 `json:"blob_count"`
}

// Record is one blob: its bounding box and the packed area and centroid.
type Record struct {
	X0         int16  `json:"x0"`
	X1         int16  `json:"x1"`
	Y0         int16  `json:"y0"`
	Y1         int16  `json:"y1"`
	HigherBits uint64 `json:"higher_bits"`
}

// Area returns the blob pixel count.
func (r Record) Area() uint32 {
	area, _, _ := DecodeBits(r.HigherBits)
	return area
}

// Centroid returns the sub-pixel blob centre.
func (r Record) Centroid() (x, y float64) {
	_, x, y = DecodeBits(r.HigherBits)
	return x, y
}

// DecodeBits unpacks the 64-bit blob field: the area in bits 0..19, the x
// centroid in bits 24..43 and the y centroid in bits 44..63, both in 1/256
// pixel units.
func DecodeBits(b uint64) (area uint32, x, y float64) {
	area = uint32(b & 0xFFFFF)
	x = float64((b>>24)&0xFFFFF) / 256
	y = float64(b>>44) / 256
	return area, x, y
}

// EncodeBits packs an area and centroid the way DecodeBits reads them.
// Centroids are truncated to 1/256 pixel and clamped to the 20-bit field,
// [0, 0xFFFFF/256]; NaN encodes as 0.
func EncodeBits(area uint32, x, y float64) uint64 {
	return uint64(area&0xFFFFF) | centroidField(x)<<24 | centroidField(y)<<44
}

func centroidField(v float64) uint64 {
	f := v * 256
	switch {
	case !(f > 0):
		return 0
	case f >= 0xFFFFF:
		return 0xFFFFF
	}
	return uint64(f)
}

// Frame is one recorded frame.
type Frame struct {
	Index int `json:"index"` // position in the file, from 0
	FrameHeader
	Records []Record `json:"records"`
}

// Targets turns the frame's blobs into detection targets at their
// centroids. Pixel counts are placeholders derived from approxSize.
func (f *Frame) Targets(approxSize int) []detection.Target {
	points := make([]detection.Point, len(f.Records))
	for i, r := range f.Records {
		x, y := r.Centroid()
		points[i] = detection.Point{X: x, Y: y}
	}
	return detection.Targetize(points, approxSize, detection.DefaultSumGrey)
}

// Reader reads frames sequentially from a blob file.
type Reader struct {
	r      *bufio.Reader
	header Header
	next   int
}

// NewReader reads the file header from r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(br, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var h Header
	h.FrameCount = int32(binary.LittleEndian.Uint32(buf[0:4]))
	for i := 0; i < 7; i++ {
		h.TStart[i] = int32(binary.LittleEndian.Uint32(buf[4+4*i:]))
		h.TEnd[i] = int32(binary.LittleEndian.Uint32(buf[32+4*i:]))
	}
	if h.FrameCount < 0 {
		return nil, fmt.Errorf("%w: negative frame count %d", ErrCorrupt, h.FrameCount)
	}
	return &Reader{r: br, header: h}, nil
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next frame. It returns io.EOF after FrameCount frames or
// when the data ends on a frame boundary, and a wrapped
// io.ErrUnexpectedEOF when it ends inside a frame.
func (r *Reader) Next() (*Frame, error) {
	if r.next >= int(r.header.FrameCount) {
		return nil, io.EOF
	}

	buf := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("frame %d header: %w", r.next, err)
	}

	f := &Frame{Index: r.next}
	f.Stamp = int32(binary.LittleEndian.Uint32(buf[0:4]))
	f.FrameN = int32(binary.LittleEndian.Uint32(buf[4:8]))
	f.BlobCount = int32(binary.LittleEndian.Uint32(buf[8:12]))
	if f.BlobCount < 0 || f.BlobCount > MaxBlobsPerFrame {
		return nil, fmt.Errorf("%w: frame %d has blob count %d", ErrCorrupt, r.next, f.BlobCount)
	}

	f.Records = make([]Record, f.BlobCount)
	rec := make([]byte, RecordSize)
	for i := range f.Records {
		if _, err := io.ReadFull(r.r, rec); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("frame %d record %d: %w", r.next, i, err)
		}
		f.Records[i] = Record{
			X0:         int16(binary.LittleEndian.Uint16(rec[0:2])),
			X1:         int16(binary.LittleEndian.Uint16(rec[2:4])),
			Y0:         int16(binary.LittleEndian.Uint16(rec[4:6])),
			Y1:         int16(binary.LittleEndian.Uint16(rec[6:8])),
			HigherBits: binary.LittleEndian.Uint64(rec[8:16]),
		}
	}

	r.next++
	return f, nil
}

// ReadFrame returns frame frameNum (counted from 0) of the file at path.
func ReadFrame(path string, frameNum int) (*Frame, error) {
	if frameNum < 0 {
		return nil, fmt.Errorf("frame number must not be negative, got %d", frameNum)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob file: %w", err)
	}
	defer file.Close()

	r, err := NewReader(file)
	if err != nil {
		return nil, err
	}
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %d of %s", ErrFrameNotFound, frameNum, path)
		}
		if err != nil {
			return nil, err
		}
		if f.Index == frameNum {
			return f, nil
		}
	}
}

// Write encodes a header and frames in the recorder layout. Each frame's
// BlobCount is taken from its records.
func Write(w io.Writer, h Header, frames []Frame) error {
	bw := bufio.NewWriter(w)

	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.FrameCount))
	for i := 0; i < 7; i++ {
		binary.LittleEndian.PutUint32(buf[4+4*i:], uint32(h.TStart[i]))
		binary.LittleEndian.PutUint32(buf[32+4*i:], uint32(h.TEnd[i]))
	}
	if _, err := bw.Write(buf); err != nil {
		return err
	}

	fh := make([]byte, FrameHeaderSize)
	rec := make([]byte, RecordSize)
	for _, f := range frames {
		binary.LittleEndian.PutUint32(fh[0:4], uint32(f.Stamp))
		binary.LittleEndian.PutUint32(fh[4:8], uint32(f.FrameN))
		binary.LittleEndian.PutUint32(fh[8:12], uint32(len(f.Records)))
		if _, err := bw.Write(fh); err != nil {
			return err
		}
		for _, r := range f.Records {
			binary.LittleEndian.PutUint16(rec[0:2], uint16(r.X0))
			binary.LittleEndian.PutUint16(rec[2:4], uint16(r.X1))
			binary.LittleEndian.PutUint16(rec[4:6], uint16(r.Y0))
			binary.LittleEndian.PutUint16(rec[6:8], uint16(r.Y1))
			binary.LittleEndian.PutUint64(rec[8:16], r.HigherBits)
			if _, err := bw.Write(rec); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
