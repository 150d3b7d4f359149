package imaging

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
)

// Highpass removes the slowly varying background from a frame: a box lowpass
// of width filterSize is subtracted from the frame and negative values are
// clipped to zero. The result is an 8-bit grey image in which bright targets
// stand out against a black background.
//
// A filterSize below 1 returns the grey frame unchanged.
func Highpass(img image.Image, filterSize int) *image.Gray {
	grey := imaging.Grayscale(img)
	b := grey.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	if filterSize < 1 {
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				out.SetGray(x, y, color.Gray{Y: grey.NRGBAAt(x+b.Min.X, y+b.Min.Y).R})
			}
		}
		return out
	}

	low := blur.Box(grey, float64(max(filterSize/2, 1)))
	lb := low.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := int(grey.NRGBAAt(x+b.Min.X, y+b.Min.Y).R) - int(low.RGBAAt(x+lb.Min.X, y+lb.Min.Y).R)
			if v < 0 {
				v = 0
			}
			out.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return out
}

// GaussianBlur returns r smoothed with a Gaussian of standard deviation
// sigma. The kernel is truncated at four sigma and edge pixels are
// repeated outward. The filter is separable: rows first, then columns.
func GaussianBlur(r *Raster, sigma float64) *Raster {
	if sigma <= 0 {
		out := NewRaster(r.Width, r.Height)
		copy(out.Pix, r.Pix)
		return out
	}

	kernel := gaussianKernel(sigma)
	half := len(kernel) / 2

	tmp := NewRaster(r.Width, r.Height)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			sum := 0.0
			for k, w := range kernel {
				sum += w * r.Clamped(x+k-half, y)
			}
			tmp.Set(x, y, sum)
		}
	}

	out := NewRaster(r.Width, r.Height)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			sum := 0.0
			for k, w := range kernel {
				sum += w * tmp.Clamped(x, y+k-half)
			}
			out.Set(x, y, sum)
		}
	}
	return out
}

func gaussianKernel(sigma float64) []float64 {
	half := int(4*sigma + 0.5)
	kernel := make([]float64, 2*half+1)
	sum := 0.0
	for i := range kernel {
		d := float64(i - half)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}
