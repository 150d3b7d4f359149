package imaging

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Raster is a single-channel floating point image stored row-major.
// Values read from frames are scaled to [0, 1].
type Raster struct {
	Width  int
	Height int
	Pix    []float64
}

// NewRaster allocates a zeroed raster.
func NewRaster(width, height int) *Raster {
	return &Raster{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// At returns the value at (x, y). Coordinates are not bounds checked.
func (r *Raster) At(x, y int) float64 { return r.Pix[y*r.Width+x] }

// Set stores v at (x, y).
func (r *Raster) Set(x, y int, v float64) { r.Pix[y*r.Width+x] = v }

// Clamped returns the value at (x, y) with coordinates clamped to the
// raster, i.e. edge pixels are repeated outward.
func (r *Raster) Clamped(x, y int) float64 {
	return r.At(clamp(x, 0, r.Width-1), clamp(y, 0, r.Height-1))
}

// ToGray converts any image to a grey raster in [0, 1].
//
// Grey frames are read directly so that 16-bit sensors keep their full
// precision; color frames go through a luminance conversion first.
func ToGray(img image.Image) *Raster {
	b := img.Bounds()
	out := NewRaster(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				out.Set(x, y, float64(src.Gray16At(x+b.Min.X, y+b.Min.Y).Y)/math.MaxUint16)
			}
		}
	case *image.Gray:
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				out.Set(x, y, float64(src.GrayAt(x+b.Min.X, y+b.Min.Y).Y)/math.MaxUint8)
			}
		}
	default:
		grey := imaging.Grayscale(img)
		for y := 0; y < out.Height; y++ {
			row := grey.Pix[y*grey.Stride:]
			for x := 0; x < out.Width; x++ {
				out.Set(x, y, float64(row[x*4])/math.MaxUint8)
			}
		}
	}
	return out
}

func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
