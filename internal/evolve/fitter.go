package evolve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/evocal/internal/calib"
)

// ErrDegenerateFitness is returned when every member has converged to the
// same rank and breeders can no longer be told apart.
var ErrDegenerateFitness = errors.New("fitness values are degenerate")

// EvaluatorFunc scores a candidate vector; lower is better. It must be safe
// for concurrent use.
type EvaluatorFunc func(v calib.Vector) float64

// SnapshotFunc receives the current best member when a snapshot is requested.
// The vector must not be retained past the call.
type SnapshotFunc func(iteration int, best calib.Vector, fitness float64)

// StopReason tells why a run ended.
type StopReason int

const (
	StopMaxIterations StopReason = iota
	StopInterrupted
	StopDegenerate
)

func (r StopReason) String() string {
	switch r {
	case StopMaxIterations:
		return "iteration limit"
	case StopInterrupted:
		return "interrupted"
	case StopDegenerate:
		return "degenerate fitness"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Config holds the search parameters.
type Config struct {
	PopSize        int     // members kept in the population
	MutationChance float64 // probability that a child gets one gene mutated
	NicheSize      float64 // initial niching distance
	NichePenalty   float64 // initial fitness multiplier inside a niche
	MaxIterations  int

	// NicheDecayEvery is the iteration period of the niche decay.
	NicheDecayEvery int
	// ReportEvery is the iteration period of progress logging and history
	// samples. Zero disables both.
	ReportEvery int

	// Parallelism bounds concurrent fitness evaluations while the initial
	// population is scored.
	Parallelism int

	// Seed for the random source; 0 picks a random seed.
	Seed uint64
}

// DefaultConfig returns the search parameters used for a single camera of
// the four-camera rig.
func DefaultConfig() Config {
	return Config{
		PopSize:         1500,
		MutationChance:  0.7,
		NicheSize:       50,
		NichePenalty:    2,
		MaxIterations:   1000000,
		NicheDecayEvery: 100,
		ReportEvery:     500,
		Parallelism:     4,
	}
}

// Validate checks the search parameters.
func (c Config) Validate() error {
	if c.PopSize < 2 {
		return fmt.Errorf("population size must be at least 2, got %d", c.PopSize)
	}
	if c.MutationChance < 0 || c.MutationChance > 1 {
		return fmt.Errorf("mutation chance must be in [0,1], got %g", c.MutationChance)
	}
	if c.NichePenalty < 1 {
		return fmt.Errorf("niche penalty must be at least 1, got %g", c.NichePenalty)
	}
	if c.NicheSize < 0 {
		return fmt.Errorf("niche size must not be negative, got %g", c.NicheSize)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max iterations must not be negative, got %d", c.MaxIterations)
	}
	return nil
}

// Population is the working set of candidate vectors and their fitness.
type Population struct {
	Members []calib.Vector
	Fits    []float64
}

// Best returns the index of the fittest member.
func (p *Population) Best() int { return floats.MinIdx(p.Fits) }

// Worst returns the index of the least fit member.
func (p *Population) Worst() int { return floats.MaxIdx(p.Fits) }

// HistoryPoint is a periodic sample of population fitness.
type HistoryPoint struct {
	Iteration    int
	Min          float64
	Max          float64
	Mean         float64
	NicheSize    float64
	NichePenalty float64
}

// Result is the outcome of a run.
type Result struct {
	Best        calib.Vector
	BestFitness float64
	Iterations  int
	Reason      StopReason
	History     []HistoryPoint
}

// Fitter runs a steady-state evolutionary search: each iteration breeds one
// child which replaces the least fit member unless it is worse.
type Fitter struct {
	eval   EvaluatorFunc
	bounds calib.Bounds
	cfg    Config
	rng    *rand.Rand

	snapshotReq <-chan struct{}
	onSnapshot  SnapshotFunc

	// Logger receives progress lines. Nil uses the standard logger.
	Logger *log.Logger
}

// NewFitter creates a fitter for the given evaluator and per-gene bounds.
func NewFitter(eval EvaluatorFunc, bounds calib.Bounds, cfg Config) (*Fitter, error) {
	if eval == nil {
		return nil, errors.New("nil evaluator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := bounds.Validate(len(bounds)); err != nil {
		return nil, err
	}
	if len(bounds) == 0 {
		return nil, fmt.Errorf("%w: no bounds", calib.ErrBoundsMismatch)
	}

	var rng *rand.Rand
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	} else {
		rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	}

	return &Fitter{eval: eval, bounds: bounds, cfg: cfg, rng: rng}, nil
}

// NewProblemFitter creates a fitter scoring candidates with p.Fitness.
// The bounds must cover the full calibration vector.
func NewProblemFitter(p *Problem, bounds calib.Bounds, cfg Config) (*Fitter, error) {
	if err := bounds.Validate(calib.VectorLen); err != nil {
		return nil, err
	}
	return NewFitter(p.Fitness, bounds, cfg)
}

// OnSnapshot registers fn to be called with the current best member every
// time a value arrives on requests. Requests are served between iterations.
func (f *Fitter) OnSnapshot(requests <-chan struct{}, fn SnapshotFunc) {
	f.snapshotReq = requests
	f.onSnapshot = fn
}

func (f *Fitter) logf(format string, args ...any) {
	if f.Logger != nil {
		f.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Initialize samples PopSize members uniformly within the bounds and scores
// them concurrently.
func (f *Fitter) Initialize(ctx context.Context) (*Population, error) {
	pop := &Population{
		Members: make([]calib.Vector, f.cfg.PopSize),
		Fits:    make([]float64, f.cfg.PopSize),
	}
	for i := range pop.Members {
		pop.Members[i] = sampleUniform(f.bounds, f.rng)
	}

	workers := max(f.cfg.Parallelism, 1)
	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers)
	for i := range pop.Members {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pop.Fits[i] = f.eval(pop.Members[i])
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("initial population: %w", err)
	}
	return pop, nil
}

// Run initializes a population and evolves it until the iteration limit,
// cancellation of ctx, or degenerate fitness. Cancellation is not an error:
// the best member found so far is returned with Reason StopInterrupted.
// Degenerate fitness returns the result together with ErrDegenerateFitness.
func (f *Fitter) Run(ctx context.Context) (*Result, error) {
	pop, err := f.Initialize(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return &Result{Reason: StopInterrupted, BestFitness: math.Inf(1)}, nil
		}
		return nil, err
	}
	return f.Evolve(ctx, pop)
}

// Evolve runs the steady-state loop on an existing population, modifying it
// in place.
func (f *Fitter) Evolve(ctx context.Context, pop *Population) (*Result, error) {
	if len(pop.Members) != len(pop.Fits) || len(pop.Members) < 2 {
		return nil, fmt.Errorf("population has %d members and %d fitness values", len(pop.Members), len(pop.Fits))
	}

	res := &Result{Reason: StopMaxIterations}
	nicheSize := f.cfg.NicheSize
	nichePenalty := f.cfg.NichePenalty

	var runErr error
	it := 0
loop:
	for ; it < f.cfg.MaxIterations; it++ {
		if f.cfg.NicheDecayEvery > 0 && it%f.cfg.NicheDecayEvery == 0 {
			nicheSize *= 0.997
			nichePenalty = math.Pow(nichePenalty, 0.9995)
		}
		if f.cfg.ReportEvery > 0 && it%f.cfg.ReportEvery == 0 {
			h := sample(it, pop, nicheSize, nichePenalty)
			res.History = append(res.History, h)
			f.logf("iteration %d: fitness min %g max %g, niche size %g penalty %g",
				it, h.Min, h.Max, nicheSize, nichePenalty)
		}

		select {
		case <-ctx.Done():
			res.Reason = StopInterrupted
			break loop
		case <-f.snapshotReq:
			f.snapshot(it, pop)
		default:
		}

		a, b, ok := SelectBreeders(pop.Fits, f.rng)
		if !ok {
			res.Reason = StopDegenerate
			runErr = ErrDegenerateFitness
			break
		}
		loser := pop.Worst()

		child := Recombine(pop.Members[a], pop.Members[b], f.rng)
		if f.rng.Float64() < f.cfg.MutationChance {
			Mutate(child, f.bounds, f.rng)
		}
		fit := f.eval(child)

		// Penalise children too close to an existing member.
		if nearestDistance(child, pop.Members) < nicheSize {
			fit *= nichePenalty
		}
		if fit > pop.Fits[loser] {
			continue
		}
		pop.Members[loser] = child
		pop.Fits[loser] = fit
	}

	best := pop.Best()
	res.Best = pop.Members[best].Clone()
	res.BestFitness = pop.Fits[best]
	res.Iterations = it
	return res, runErr
}

func (f *Fitter) snapshot(it int, pop *Population) {
	if f.onSnapshot == nil {
		return
	}
	best := pop.Best()
	f.onSnapshot(it, pop.Members[best], pop.Fits[best])
}

func sample(it int, pop *Population, nicheSize, nichePenalty float64) HistoryPoint {
	finite := make([]float64, 0, len(pop.Fits))
	for _, v := range pop.Fits {
		if isFinite(v) {
			finite = append(finite, v)
		}
	}
	h := HistoryPoint{
		Iteration:    it,
		Min:          floats.Min(pop.Fits),
		Max:          floats.Max(pop.Fits),
		Mean:         math.NaN(),
		NicheSize:    nicheSize,
		NichePenalty: nichePenalty,
	}
	if len(finite) > 0 {
		h.Mean = stat.Mean(finite, nil)
	}
	return h
}
