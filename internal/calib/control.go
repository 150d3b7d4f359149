package calib

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// ErrNoPoints is returned when a known-points file holds no points.
var ErrNoPoints = errors.New("no known points")

// ControlParams is the scene and sensor description shared by every
// projection of one camera.
type ControlParams struct {
	ImageWidth  int     // pixels
	ImageHeight int     // pixels
	PixelWidth  float64 // mm per pixel
	PixelHeight float64 // mm per pixel

	Multimedia MultimediaParams
}

// Validate checks the sensor description.
func (c ControlParams) Validate() error {
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", c.ImageWidth, c.ImageHeight)
	}
	if c.PixelWidth <= 0 || c.PixelHeight <= 0 {
		return fmt.Errorf("pixel size must be positive, got %gx%g", c.PixelWidth, c.PixelHeight)
	}
	mm := c.Multimedia
	if mm.N1 <= 0 || mm.N3 <= 0 {
		return fmt.Errorf("refractive indices must be positive")
	}
	if len(mm.N2) != len(mm.D) {
		return fmt.Errorf("%d wall indices but %d wall thicknesses", len(mm.N2), len(mm.D))
	}
	for i, n := range mm.N2 {
		if n <= 0 {
			return fmt.Errorf("wall %d refractive index must be positive", i)
		}
	}
	return nil
}

// LoadKnownPoints reads a whitespace-delimited known-points file. Each row is
// a point number followed by X, Y and Z; the point number is discarded.
// Blank lines and lines starting with '#' are skipped.
func LoadKnownPoints(path string) ([]r3.Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open known points: %w", err)
	}
	defer f.Close()

	var points []r3.Vector
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("%s:%d: expected 4 columns, got %d", path, lineNo, len(fields))
		}
		var xyz [3]float64
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: column %d: %w", path, lineNo, i+2, err)
			}
			xyz[i] = v
		}
		points = append(points, r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read known points: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPoints)
	}
	return points, nil
}
