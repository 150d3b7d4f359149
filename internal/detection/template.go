package detection

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/ironsheep/evocal/internal/imaging"
)

// ErrEmptyImage is returned by detectors given an image with no pixels.
var ErrEmptyImage = errors.New("empty image")

// Disk returns a (2r+1)x(2r+1) template that is 1 inside the disk of radius
// r centred on the middle pixel and 0 outside.
func Disk(r int) *imaging.Raster {
	size := 2*r + 1
	d := imaging.NewRaster(size, size)
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				d.Set(x+r, y+r, 1)
			}
		}
	}
	return d
}

// MatchTemplate computes the normalised cross-correlation of img with tmpl.
//
// The response has the size of img. Each output pixel holds the correlation
// of the template placed with its centre pixel ((w-1)/2, (h-1)/2) on that
// pixel; image samples outside the frame count as zero. Windows with no
// variance respond 0. Responses lie in [-1, 1].
func MatchTemplate(img, tmpl *imaging.Raster) (*imaging.Raster, error) {
	if img.Width == 0 || img.Height == 0 || tmpl.Width == 0 || tmpl.Height == 0 {
		return nil, ErrEmptyImage
	}

	n := float64(tmpl.Width * tmpl.Height)
	tmean := 0.0
	for _, v := range tmpl.Pix {
		tmean += v
	}
	tmean /= n
	tssd := 0.0
	for _, v := range tmpl.Pix {
		tssd += (v - tmean) * (v - tmean)
	}

	xcorr := correlate(img, tmpl)
	sums := newWindowSums(img)

	offX := (tmpl.Width - 1) / 2
	offY := (tmpl.Height - 1) / 2
	out := imaging.NewRaster(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			x0, y0 := x-offX, y-offY
			s, s2 := sums.window(x0, y0, x0+tmpl.Width, y0+tmpl.Height)

			num := xcorr.At(x, y) - s*tmean
			den := math.Sqrt(math.Max(0, (s2-s*s/n)*tssd))
			if den > epsilon {
				out.Set(x, y, num/den)
			}
		}
	}
	return out, nil
}

const epsilon = 2.220446049250313e-16

// DetectLargeParticles finds particles whose pixel radius is around
// approxSize by matching a disk template and taking correlation peaks above
// peakThresh. It suits large particles, which the blob detector tends to
// split or centre inconsistently.
func DetectLargeParticles(img image.Image, approxSize int, peakThresh float64) ([]Target, error) {
	if approxSize < 1 {
		return nil, fmt.Errorf("approximate size must be positive, got %d", approxSize)
	}

	matched, err := MatchTemplate(imaging.ToGray(img), Disk(approxSize))
	if err != nil {
		return nil, err
	}

	peaks := FindPeaks(matched, peakThresh, 1)
	points := make([]Point, len(peaks))
	for i, p := range peaks {
		points[i] = Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return Targetize(points, approxSize, DefaultSumGrey), nil
}

// correlate returns, for every image pixel, the sum of the template times the
// image window under it, using the same centring as MatchTemplate. The sum is
// a linear convolution with the flipped template, computed by 2D FFT on a
// grid large enough to avoid wrap-around.
func correlate(img, tmpl *imaging.Raster) *imaging.Raster {
	H, W := img.Height, img.Width
	th, tw := tmpl.Height, tmpl.Width
	FH := nextPow2(H + th - 1)
	FW := nextPow2(W + tw - 1)

	A := makeComplex2D(FH, FW)
	B := makeComplex2D(FH, FW)
	for y := 0; y < H; y++ {
		for x := 0; x < W; x++ {
			A[y][x] = complex(img.At(x, y), 0)
		}
	}
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			B[y][x] = complex(tmpl.At(tw-1-x, th-1-y), 0)
		}
	}

	fft2InPlace(A, true)
	fft2InPlace(B, true)
	for y := 0; y < FH; y++ {
		for x := 0; x < FW; x++ {
			A[y][x] *= B[y][x]
		}
	}
	fft2InPlace(A, false)

	// Gonum transforms are unnormalized.
	scale := float64(FH * FW)
	startY := th - 1 - (th-1)/2
	startX := tw - 1 - (tw-1)/2
	out := imaging.NewRaster(W, H)
	for y := 0; y < H; y++ {
		for x := 0; x < W; x++ {
			out.Set(x, y, real(A[y+startY][x+startX])/scale)
		}
	}
	return out
}

// fft2InPlace transforms a rows first, then columns.
func fft2InPlace(a [][]complex128, forward bool) {
	h := len(a)
	w := len(a[0])

	rowFFT := fourier.NewCmplxFFT(w)
	colFFT := fourier.NewCmplxFFT(h)

	for y := 0; y < h; y++ {
		if forward {
			rowFFT.Coefficients(a[y], a[y])
		} else {
			rowFFT.Sequence(a[y], a[y])
		}
	}

	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = a[y][x]
		}
		if forward {
			colFFT.Coefficients(col, col)
		} else {
			colFFT.Sequence(col, col)
		}
		for y := 0; y < h; y++ {
			a[y][x] = col[y]
		}
	}
}

func makeComplex2D(h, w int) [][]complex128 {
	m := make([][]complex128, h)
	for i := range m {
		m[i] = make([]complex128, w)
	}
	return m
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// windowSums holds integral images of the values and squared values.
type windowSums struct {
	w, h    int
	sum     []float64
	squares []float64
}

func newWindowSums(img *imaging.Raster) *windowSums {
	stride := img.Width + 1
	ws := &windowSums{
		w:       img.Width,
		h:       img.Height,
		sum:     make([]float64, stride*(img.Height+1)),
		squares: make([]float64, stride*(img.Height+1)),
	}
	for y := 0; y < img.Height; y++ {
		rowSum, rowSq := 0.0, 0.0
		for x := 0; x < img.Width; x++ {
			v := img.At(x, y)
			rowSum += v
			rowSq += v * v
			i := (y+1)*stride + x + 1
			ws.sum[i] = ws.sum[i-stride] + rowSum
			ws.squares[i] = ws.squares[i-stride] + rowSq
		}
	}
	return ws
}

// window returns the sum and sum of squares over [x0,x1)x[y0,y1), with the
// part outside the image contributing zero.
func (ws *windowSums) window(x0, y0, x1, y1 int) (float64, float64) {
	x0, x1 = max(x0, 0), min(x1, ws.w)
	y0, y1 = max(y0, 0), min(y1, ws.h)
	if x0 >= x1 || y0 >= y1 {
		return 0, 0
	}
	stride := ws.w + 1
	at := func(t []float64, x, y int) float64 { return t[y*stride+x] }
	s := at(ws.sum, x1, y1) - at(ws.sum, x0, y1) - at(ws.sum, x1, y0) + at(ws.sum, x0, y0)
	s2 := at(ws.squares, x1, y1) - at(ws.squares, x0, y1) - at(ws.squares, x1, y0) + at(ws.squares, x0, y0)
	return s, s2
}
