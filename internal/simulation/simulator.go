package simulation

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strategichq/compass/internal/domain"
	"github.com/strategichq/compass/internal/scoring"
)

var (
	// ErrNoBaseline indicates a run was requested before any factors were
	// scored for the session.
	ErrNoBaseline = errors.New("simulation: no baseline factors")

	// ErrInvalidInput indicates an unusable iteration count or seed.
	ErrInvalidInput = errors.New("simulation: invalid input")
)

// chunkSize is the number of iterations a worker claims at a time. Context
// cancellation is checked once per chunk.
const chunkSize = 256

// Input describes one Monte Carlo run request.
type Input struct {
	SessionID  string
	Factors    []*domain.Factor
	Iterations int
	Seed       int64
}

// Simulator runs seeded Monte Carlo perturbations of a scored baseline. Two
// runs with the same seed and baseline produce identical results regardless
// of worker count: every iteration derives its own RNG seed from the run
// seed, so the split across goroutines never touches the sample stream.
type Simulator struct {
	cfg domain.SimulationConfig
}

// NewSimulator creates a simulator with the given tunables.
func NewSimulator(cfg domain.SimulationConfig) *Simulator {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 10000
	}
	if cfg.Spread <= 0 {
		cfg.Spread = 0.25
	}
	return &Simulator{cfg: cfg}
}

// factorPlan is the per-factor sampling recipe, precomputed once per run so
// the hot loop is allocation free.
type factorPlan struct {
	base   float64
	sigma  float64
	layer  int
	weight float64
	driver int
}

// sample is one recorded iteration: the composite plus the signed score
// contribution each driver's perturbation added relative to the baseline.
type sample struct {
	composite float64
	drivers   [domain.DriverCount]float64
}

var driverOrder = scoring.Drivers()

// Run executes the Monte Carlo simulation and returns the empirical
// distribution summary. Iterations and Seed of zero fall back to the
// configured default count and a time-derived seed.
func (s *Simulator) Run(ctx context.Context, in Input) (*domain.SimulationResult, error) {
	if len(in.Factors) == 0 {
		return nil, ErrNoBaseline
	}
	iterations := in.Iterations
	if iterations == 0 {
		iterations = s.cfg.Iterations
	}
	if iterations < 0 {
		return nil, ErrInvalidInput
	}
	seed := in.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	start := time.Now()
	plans, baseline := s.plan(in.Factors)

	samples := make([]sample, iterations)
	if err := s.runWorkers(ctx, seed, plans, samples); err != nil {
		return nil, err
	}

	valid := samples[:0]
	for _, smp := range samples {
		if !math.IsNaN(smp.composite) && !math.IsInf(smp.composite, 0) {
			valid = append(valid, smp)
		}
	}
	discarded := iterations - len(valid)

	result := &domain.SimulationResult{
		SessionID:  in.SessionID,
		RunID:      uuid.NewString(),
		Seed:       seed,
		Iterations: iterations,
		Discarded:  discarded,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if iterations > 0 && float64(discarded)/float64(iterations) > s.cfg.DiscardThreshold {
		result.Degraded = true
	}
	if len(valid) == 0 {
		result.Degraded = true
		return result, nil
	}

	sorted := make([]float64, len(valid))
	for i, smp := range valid {
		sorted[i] = smp.composite
		result.Mean += smp.composite
	}
	sort.Float64s(sorted)
	result.Mean /= float64(len(valid))
	for _, v := range sorted {
		d := v - result.Mean
		result.StdDev += d * d
	}
	result.StdDev = math.Sqrt(result.StdDev / float64(len(valid)))

	// The band always contains the deterministic point estimate, even when
	// sampling skews the empirical tails past it.
	result.Band = domain.ConfidenceBand{
		Lower: math.Min(percentile(sorted, 0.05), baseline),
		Upper: math.Max(percentile(sorted, 0.95), baseline),
	}
	result.Scenarios = buildScenarios(valid, percentile(sorted, 0.25), percentile(sorted, 0.75))
	return result, nil
}

// plan precomputes the sampling recipe and the baseline composite. Layer
// weights are renormalized over factors that have evidence; a layer with no
// evidence at all samples every factor around the neutral default instead.
func (s *Simulator) plan(factors []*domain.Factor) ([]factorPlan, float64) {
	layerIndex := make(map[domain.LayerID]int, domain.LayerCount)
	for i, spec := range scoring.LayerSpecs() {
		layerIndex[spec.ID] = i
	}
	driverIndex := make(map[domain.DriverID]int, len(driverOrder))
	for i, d := range driverOrder {
		driverIndex[d] = i
	}

	presentWeight := make([]float64, domain.LayerCount)
	totalWeight := make([]float64, domain.LayerCount)
	for _, f := range factors {
		li := layerIndex[f.Layer]
		totalWeight[li] += f.Weight
		if !f.Missing {
			presentWeight[li] += f.Weight
		}
	}

	plans := make([]factorPlan, 0, len(factors))
	baseLayers := make([]float64, domain.LayerCount)
	for _, f := range factors {
		li := layerIndex[f.Layer]
		weight := 0.0
		switch {
		case presentWeight[li] > 0 && !f.Missing:
			weight = f.Weight / presentWeight[li]
		case presentWeight[li] == 0 && totalWeight[li] > 0:
			weight = f.Weight / totalWeight[li]
		}
		plans = append(plans, factorPlan{
			base:   f.NormalizedScore,
			sigma:  s.cfg.Spread * (1 - f.Confidence),
			layer:  li,
			weight: weight,
			driver: driverIndex[f.Driver],
		})
		baseLayers[li] += weight * f.NormalizedScore
	}
	return plans, scoring.CompositeOf(baseLayers)
}

// runWorkers fills samples[lo:hi] chunk by chunk across a bounded worker
// pool. Sample i depends only on the run seed and i, never on which worker
// claimed the chunk.
func (s *Simulator) runWorkers(ctx context.Context, seed int64, plans []factorPlan, samples []sample) error {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(samples) {
		workers = 1
	}

	var (
		next   int
		mu     sync.Mutex
		wg     sync.WaitGroup
		cancel = ctx.Done()
	)
	claim := func() (int, int) {
		mu.Lock()
		defer mu.Unlock()
		lo := next
		hi := lo + chunkSize
		if hi > len(samples) {
			hi = len(samples)
		}
		next = hi
		return lo, hi
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			layers := make([]float64, domain.LayerCount)
			for {
				select {
				case <-cancel:
					return
				default:
				}
				lo, hi := claim()
				if lo >= hi {
					return
				}
				for i := lo; i < hi; i++ {
					samples[i] = iterate(seed, i, plans, layers)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// iterate draws one perturbed composite. The scratch layer buffer is reused
// across iterations within a worker.
func iterate(seed int64, iteration int, plans []factorPlan, layers []float64) sample {
	rng := rand.New(rand.NewSource(iterationSeed(seed, iteration)))
	for i := range layers {
		layers[i] = 0
	}
	var smp sample
	for _, p := range plans {
		drawn := scoring.Clamp(p.base+p.sigma*rng.NormFloat64(), scoring.Eps, 1-scoring.Eps)
		layers[p.layer] += p.weight * drawn
		smp.drivers[p.driver] += p.weight * (drawn - p.base)
	}
	smp.composite = scoring.CompositeOf(layers)
	return smp
}

// percentile returns the linearly interpolated p-th quantile of a sorted
// slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
