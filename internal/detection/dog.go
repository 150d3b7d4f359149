package detection

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/evocal/internal/imaging"
)

// Scale-space range searched by DetectBlobs.
const (
	BlobMinSigma   = 1.0
	BlobMaxSigma   = 5.0
	BlobSigmaRatio = 1.6
	BlobOverlap    = 0.5
)

// Blob is a scale-space maximum of the difference of Gaussians. Its radius is
// about Sigma*sqrt(2).
type Blob struct {
	X, Y  float64
	Sigma float64
}

// DetectBlobs finds bright blobs with the difference of Gaussians on the
// grey frame scaled to [0, 1]. Scale-space maxima above thresh are kept and,
// of two blobs overlapping by more than half, the one at the smaller scale is
// dropped. approxSize only fills the pixel-count placeholders of the targets.
func DetectBlobs(img image.Image, approxSize int, thresh float64) ([]Target, error) {
	blobs, err := FindBlobs(imaging.ToGray(img), BlobMinSigma, BlobMaxSigma, BlobSigmaRatio, thresh)
	if err != nil {
		return nil, err
	}
	points := make([]Point, len(blobs))
	for i, b := range blobs {
		points[i] = Point{X: b.X, Y: b.Y}
	}
	return Targetize(points, approxSize, DefaultSumGrey), nil
}

// FindBlobs runs the difference-of-Gaussians detector on r.
func FindBlobs(r *imaging.Raster, minSigma, maxSigma, ratio, thresh float64) ([]Blob, error) {
	if r.Width == 0 || r.Height == 0 {
		return nil, ErrEmptyImage
	}
	if minSigma <= 0 || maxSigma < minSigma || ratio <= 1 {
		return nil, fmt.Errorf("invalid scale range: sigma %g..%g ratio %g", minSigma, maxSigma, ratio)
	}

	sigmas := blobSigmas(minSigma, maxSigma, ratio)
	blurred := make([]*imaging.Raster, len(sigmas))
	for i, s := range sigmas {
		blurred[i] = imaging.GaussianBlur(r, s)
	}

	// Each layer is scaled by its sigma so responses are comparable across scales.
	cube := make([]*imaging.Raster, len(sigmas)-1)
	for i := range cube {
		layer := imaging.NewRaster(r.Width, r.Height)
		for p := range layer.Pix {
			layer.Pix[p] = (blurred[i].Pix[p] - blurred[i+1].Pix[p]) * sigmas[i]
		}
		cube[i] = layer
	}

	maxima := scaleSpaceMaxima(cube, thresh)
	blobs := make([]Blob, len(maxima))
	for i, m := range maxima {
		blobs[i] = Blob{X: float64(m.x), Y: float64(m.y), Sigma: sigmas[m.s]}
	}
	return pruneBlobs(blobs, BlobOverlap), nil
}

// blobSigmas returns the geometric series of scales from minSigma, one past
// the number of ratio steps that fit below maxSigma.
func blobSigmas(minSigma, maxSigma, ratio float64) []float64 {
	k := int(math.Log(maxSigma/minSigma)/math.Log(ratio) + 1)
	sigmas := make([]float64, k+1)
	for i := range sigmas {
		sigmas[i] = minSigma * math.Pow(ratio, float64(i))
	}
	return sigmas
}

type cubePeak struct {
	x, y, s int
	value   float64
}

// scaleSpaceMaxima finds the 3x3x3 local maxima of the cube strictly above
// thresh, strongest first, suppressing maxima adjacent to a stronger one.
func scaleSpaceMaxima(cube []*imaging.Raster, thresh float64) []cubePeak {
	w, h, depth := cube[0].Width, cube[0].Height, len(cube)

	at := func(x, y, s int) float64 {
		s = min(max(s, 0), depth-1)
		return cube[s].Clamped(x, y)
	}

	var candidates []cubePeak
	trivial := true
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			for s := 0; s < depth; s++ {
				v := cube[s].At(x, y)
				isMax := true
				for ds := -1; ds <= 1 && isMax; ds++ {
					for dy := -1; dy <= 1 && isMax; dy++ {
						for dx := -1; dx <= 1; dx++ {
							if at(x+dx, y+dy, s+ds) > v {
								isMax = false
								break
							}
						}
					}
				}
				if !isMax {
					trivial = false
					continue
				}
				if v > thresh {
					candidates = append(candidates, cubePeak{x: x, y: y, s: s, value: v})
				}
			}
		}
	}
	if trivial {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].value > candidates[j].value
	})

	peaks := make([]cubePeak, 0, len(candidates))
	for _, c := range candidates {
		adjacent := false
		for _, p := range peaks {
			if abs(p.x-c.x) <= 1 && abs(p.y-c.y) <= 1 && abs(p.s-c.s) <= 1 {
				adjacent = true
				break
			}
		}
		if !adjacent {
			peaks = append(peaks, c)
		}
	}
	return peaks
}

// pruneBlobs drops, for every pair overlapping by more than overlap, the
// blob with the smaller sigma. Pairs are visited in index order.
func pruneBlobs(blobs []Blob, overlap float64) []Blob {
	if len(blobs) == 0 {
		return blobs
	}
	maxSigma := 0.0
	for _, b := range blobs {
		maxSigma = math.Max(maxSigma, b.Sigma)
	}
	reach := 2 * maxSigma * math.Sqrt2

	sigma := make([]float64, len(blobs))
	for i, b := range blobs {
		sigma[i] = b.Sigma
	}
	for i := range blobs {
		for j := i + 1; j < len(blobs); j++ {
			d := math.Hypot(blobs[i].X-blobs[j].X, blobs[i].Y-blobs[j].Y)
			if d > reach {
				continue
			}
			if blobOverlap(d, sigma[i], sigma[j]) <= overlap {
				continue
			}
			if sigma[i] > sigma[j] {
				sigma[j] = 0
			} else {
				sigma[i] = 0
			}
		}
	}

	kept := blobs[:0:0]
	for i, b := range blobs {
		if sigma[i] > 0 {
			kept = append(kept, b)
		}
	}
	return kept
}

// blobOverlap returns the area shared by two blobs at distance d as a
// fraction of the smaller blob's area. A blob's radius is sigma*sqrt(2).
func blobOverlap(d, sigma1, sigma2 float64) float64 {
	r1 := sigma1 * math.Sqrt2
	r2 := sigma2 * math.Sqrt2
	if d > r1+r2 {
		return 0
	}
	if d <= math.Abs(r1-r2) {
		return 1
	}
	return diskOverlap(d, r1, r2)
}

func diskOverlap(d, r1, r2 float64) float64 {
	ratio1 := clip((d*d+r1*r1-r2*r2)/(2*d*r1), -1, 1)
	ratio2 := clip((d*d+r2*r2-r1*r1)/(2*d*r2), -1, 1)
	acos1 := math.Acos(ratio1)
	acos2 := math.Acos(ratio2)

	a := -d + r2 + r1
	b := d - r2 + r1
	c := d + r2 - r1
	e := d + r2 + r1
	area := r1*r1*acos1 + r2*r2*acos2 - 0.5*math.Sqrt(math.Abs(a*b*c*e))
	return area / (math.Pi * math.Pow(math.Min(r1, r2), 2))
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
