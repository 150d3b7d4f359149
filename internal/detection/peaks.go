package detection

import (
	"sort"

	"github.com/ironsheep/evocal/internal/imaging"
)

// Peak is a local maximum of a response surface.
type Peak struct {
	X, Y  int
	Value float64
}

// FindPeaks returns the local maxima of surface that are strictly above
// threshold, strongest first.
//
// A pixel is a local maximum when no pixel within minDistance (Chebyshev
// distance) is larger; edges repeat outward. Pixels closer than minDistance+1
// to the frame edge are excluded, as are all pixels of a flat surface.
// Peaks within minDistance of a stronger accepted peak are suppressed.
// minDistance below 1 is treated as 1.
func FindPeaks(surface *imaging.Raster, threshold float64, minDistance int) []Peak {
	if minDistance < 1 {
		minDistance = 1
	}
	w, h := surface.Width, surface.Height

	var candidates []Peak
	trivial := true
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := surface.At(x, y)
			if v != neighbourhoodMax(surface, x, y, minDistance) {
				trivial = false
				continue
			}
			if v <= threshold {
				continue
			}
			if x < minDistance || y < minDistance || x >= w-minDistance || y >= h-minDistance {
				continue
			}
			candidates = append(candidates, Peak{X: x, Y: y, Value: v})
		}
	}
	if trivial {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Value > candidates[j].Value
	})

	taken := make([]bool, w*h)
	peaks := make([]Peak, 0, len(candidates))
	for _, c := range candidates {
		if nearTaken(taken, w, h, c.X, c.Y, minDistance) {
			continue
		}
		taken[c.Y*w+c.X] = true
		peaks = append(peaks, c)
	}
	return peaks
}

func neighbourhoodMax(r *imaging.Raster, x, y, d int) float64 {
	m := r.At(x, y)
	for dy := -d; dy <= d; dy++ {
		for dx := -d; dx <= d; dx++ {
			if v := r.Clamped(x+dx, y+dy); v > m {
				m = v
			}
		}
	}
	return m
}

func nearTaken(taken []bool, w, h, x, y, d int) bool {
	for yy := max(y-d, 0); yy <= min(y+d, h-1); yy++ {
		for xx := max(x-d, 0); xx <= min(x+d, w-1); xx++ {
			if taken[yy*w+xx] {
				return true
			}
		}
	}
	return false
}
