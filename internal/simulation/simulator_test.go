package simulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/strategichq/compass/internal/domain"
	"github.com/strategichq/compass/internal/scoring"
)

func testConfig(workers int) domain.SimulationConfig {
	return domain.SimulationConfig{
		Iterations:       2000,
		Workers:          workers,
		Spread:           0.25,
		DiscardThreshold: 0.05,
	}
}

// baselineFactors builds a full catalog baseline with the given uniform
// confidence.
func baselineFactors(confidence float64) []*domain.Factor {
	specs := scoring.FactorSpecs()
	factors := make([]*domain.Factor, 0, len(specs))
	for i, spec := range specs {
		factors = append(factors, &domain.Factor{
			ID:              spec.ID,
			SessionID:       "session-100",
			Name:            spec.Name,
			NormalizedScore: 0.3 + 0.4*float64(i%5)/4.0,
			Confidence:      confidence,
			Weight:          spec.Weight,
			Driver:          spec.Driver,
			Layer:           spec.Layer,
		})
	}
	return factors
}

func TestSimulatorDeterminism(t *testing.T) {
	ctx := context.Background()
	factors := baselineFactors(0.6)

	var reference *domain.SimulationResult
	for _, workers := range []int{1, 2, 8} {
		sim := NewSimulator(testConfig(workers))
		result, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: factors, Seed: 1234})
		if err != nil {
			t.Fatalf("run with %d workers failed: %v", workers, err)
		}
		if reference == nil {
			reference = result
			continue
		}
		if result.Mean != reference.Mean {
			t.Errorf("%d workers: mean %v, want %v", workers, result.Mean, reference.Mean)
		}
		if result.StdDev != reference.StdDev {
			t.Errorf("%d workers: stddev %v, want %v", workers, result.StdDev, reference.StdDev)
		}
		if result.Band != reference.Band {
			t.Errorf("%d workers: band %+v, want %+v", workers, result.Band, reference.Band)
		}
		if len(result.Scenarios) != len(reference.Scenarios) {
			t.Fatalf("%d workers: %d scenarios, want %d", workers, len(result.Scenarios), len(reference.Scenarios))
		}
		for i := range result.Scenarios {
			if result.Scenarios[i].Probability != reference.Scenarios[i].Probability {
				t.Errorf("%d workers: scenario %s probability %v, want %v", workers,
					result.Scenarios[i].Name, result.Scenarios[i].Probability, reference.Scenarios[i].Probability)
			}
		}
	}
}

func TestSimulatorRun(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator(testConfig(4))

	t.Run("BandContainsBaseline", func(t *testing.T) {
		factors := baselineFactors(0.6)
		result, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: factors, Seed: 7})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Band.Lower > result.Band.Upper {
			t.Errorf("band inverted: %+v", result.Band)
		}
		if result.Mean < result.Band.Lower || result.Mean > result.Band.Upper {
			t.Errorf("mean %v outside band %+v", result.Mean, result.Band)
		}
		_, baseline := sim.plan(factors)
		if baseline < result.Band.Lower || baseline > result.Band.Upper {
			t.Errorf("baseline %v outside band %+v", baseline, result.Band)
		}
	})

	t.Run("ScenarioProbabilitiesSumToOne", func(t *testing.T) {
		result, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: baselineFactors(0.5), Seed: 99})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Scenarios) != 3 {
			t.Fatalf("expected 3 scenarios, got %d", len(result.Scenarios))
		}
		var sum float64
		for _, sc := range result.Scenarios {
			sum += sc.Probability
			if len(sc.KeyDrivers) == 0 || len(sc.KeyDrivers) > 3 {
				t.Errorf("scenario %s has %d key drivers", sc.Name, len(sc.KeyDrivers))
			}
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("scenario probabilities sum to %v, want 1.0", sum)
		}
	})

	t.Run("HighConfidenceNarrowsBand", func(t *testing.T) {
		confident, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: baselineFactors(0.95), Seed: 42})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		uncertain, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: baselineFactors(0.2), Seed: 42})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		confidentWidth := confident.Band.Upper - confident.Band.Lower
		uncertainWidth := uncertain.Band.Upper - uncertain.Band.Lower
		if confidentWidth >= uncertainWidth {
			t.Errorf("high-confidence band (%v) should be narrower than low-confidence (%v)",
				confidentWidth, uncertainWidth)
		}
	})

	t.Run("SameSeedSameResult", func(t *testing.T) {
		first, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: baselineFactors(0.6), Seed: 5})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: baselineFactors(0.6), Seed: 5})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.Mean != second.Mean || first.StdDev != second.StdDev || first.Band != second.Band {
			t.Errorf("same seed diverged: %+v vs %+v", first, second)
		}
		if first.RunID == second.RunID {
			t.Error("run ids should be unique per run")
		}
	})

	t.Run("DifferentSeedDifferentSamples", func(t *testing.T) {
		first, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: baselineFactors(0.6), Seed: 5})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: baselineFactors(0.6), Seed: 6})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.Mean == second.Mean && first.StdDev == second.StdDev {
			t.Error("different seeds produced identical distributions")
		}
	})

	t.Run("NoBaseline", func(t *testing.T) {
		if _, err := sim.Run(ctx, Input{SessionID: "session-100"}); !errors.Is(err, ErrNoBaseline) {
			t.Errorf("expected ErrNoBaseline, got %v", err)
		}
	})

	t.Run("NegativeIterations", func(t *testing.T) {
		_, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: baselineFactors(0.6), Iterations: -1})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := sim.Run(cancelled, Input{SessionID: "session-100", Factors: baselineFactors(0.6), Seed: 1})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("NonFiniteBaselineDegrades", func(t *testing.T) {
		factors := baselineFactors(0.6)
		factors[0].NormalizedScore = math.NaN()
		result, err := sim.Run(ctx, Input{SessionID: "session-100", Factors: factors, Seed: 3, Iterations: 100})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Degraded {
			t.Error("expected degraded result")
		}
		if result.Discarded != 100 {
			t.Errorf("expected all 100 iterations discarded, got %d", result.Discarded)
		}
	})
}

func TestIterationSeed(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 10000; i++ {
		s := iterationSeed(42, i)
		if seen[s] {
			t.Fatalf("duplicate seed at iteration %d", i)
		}
		seen[s] = true
	}
	if iterationSeed(1, 0) == iterationSeed(2, 0) {
		t.Error("different run seeds should derive different iteration seeds")
	}
}
