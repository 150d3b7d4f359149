package evolve

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/evocal/internal/calib"
)

// sampleUniform returns a vector drawn uniformly inside the bounds.
func sampleUniform(bounds calib.Bounds, rng *rand.Rand) calib.Vector {
	v := make(calib.Vector, len(bounds))
	for i, b := range bounds {
		v[i] = rng.Float64()*b.Width() + b.Min
	}
	return v
}

// Mutate replaces exactly one randomly chosen gene of v with a value drawn
// uniformly inside that gene's bound. It returns the index of the gene.
func Mutate(v calib.Vector, bounds calib.Bounds, rng *rand.Rand) int {
	gene := rng.IntN(len(v))
	b := bounds[gene]
	v[gene] = rng.Float64()*b.Width() + b.Min
	return gene
}

// Recombine performs uniform crossover: each gene of the child is copied from
// a or b with equal probability.
func Recombine(a, b calib.Vector, rng *rand.Rand) calib.Vector {
	child := a.Clone()
	for i := range child {
		if rng.IntN(2) == 1 {
			child[i] = b[i]
		}
	}
	return child
}

// breedingWheel holds cumulative selection weights over members ranked from
// fittest to least fit.
type breedingWheel struct {
	ranking    []int
	cumulative []float64
}

// newBreedingWheel ranks fits ascending and weights them by inverted,
// normalised fitness so that lower fitness is more likely to breed. The least
// fit member keeps a small weight through the 1.05 headroom. Members with a
// non-finite fitness get zero weight. It returns false when no member has a
// positive weight.
func newBreedingWheel(fits []float64) (*breedingWheel, bool) {
	ranking := make([]int, len(fits))
	for i := range ranking {
		ranking[i] = i
	}
	sort.SliceStable(ranking, func(i, j int) bool { return fits[ranking[i]] < fits[ranking[j]] })

	minFit := math.Inf(1)
	sum := 0.0
	for _, f := range fits {
		if isFinite(f) {
			minFit = math.Min(minFit, f)
			sum += f
		}
	}
	fitRange := sum - minFit
	if !isFinite(minFit) || !isFinite(fitRange) || fitRange == 0 {
		return nil, false
	}

	normed := make([]float64, len(fits))
	maxNormed := 0.0
	for i, f := range fits {
		if !isFinite(f) {
			normed[i] = math.NaN()
			continue
		}
		normed[i] = (f - minFit) / fitRange
		maxNormed = math.Max(maxNormed, normed[i])
	}

	weights := make([]float64, len(fits))
	for i, idx := range ranking {
		if math.IsNaN(normed[idx]) {
			continue
		}
		weights[i] = maxNormed*1.05 - normed[idx]
	}
	cumulative := make([]float64, len(weights))
	floats.CumSum(cumulative, weights)

	if cumulative[len(cumulative)-1] <= 0 {
		return nil, false
	}
	return &breedingWheel{ranking: ranking, cumulative: cumulative}, true
}

// spin returns the population index under a uniformly thrown die.
func (w *breedingWheel) spin(rng *rand.Rand) int {
	total := w.cumulative[len(w.cumulative)-1]
	dice := rng.Float64() * total
	i := sort.Search(len(w.cumulative), func(i int) bool { return w.cumulative[i] > dice })
	if i == len(w.cumulative) {
		i--
	}
	return w.ranking[i]
}

// SelectBreeders picks two population indices with probability weighted by
// inverse ranked fitness. The two picks are independent and may coincide.
// ok is false when the fitness values are degenerate.
func SelectBreeders(fits []float64, rng *rand.Rand) (a, b int, ok bool) {
	w, ok := newBreedingWheel(fits)
	if !ok {
		return 0, 0, false
	}
	return w.spin(rng), w.spin(rng), true
}

// nearestDistance returns the Euclidean distance from v to the closest member.
func nearestDistance(v calib.Vector, members []calib.Vector) float64 {
	best := math.Inf(1)
	for _, m := range members {
		if d := floats.Distance(v, m, 2); d < best {
			best = d
		}
	}
	return best
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
