// Benchmark tool for measuring Monte Carlo simulation throughput.
//
// Usage:
//   go run cmd/benchmark/main.go -iterations 10000 -runs 20 -workers 8
//
// This tool:
//   1. Builds a synthetic 28-factor baseline with mixed confidence levels
//   2. Runs repeated simulations across the requested worker counts
//   3. Verifies seed reproducibility across worker counts
//   4. Reports iterations/sec, run latency, and band statistics
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/strategichq/compass/internal/domain"
	"github.com/strategichq/compass/internal/scoring"
	"github.com/strategichq/compass/internal/simulation"
)

func main() {
	iterations := flag.Int("iterations", 10000, "Iterations per simulation run")
	runs := flag.Int("runs", 20, "Simulation runs per worker count")
	seed := flag.Int64("seed", 42, "Base seed (each run derives its own)")
	spread := flag.Float64("spread", 0.25, "Sampling spread")
	maxWorkers := flag.Int("workers", runtime.GOMAXPROCS(0), "Maximum worker count to sweep to")
	verbose := flag.Bool("verbose", false, "Print each run")
	flag.Parse()

	if *iterations <= 0 || *runs <= 0 || *maxWorkers <= 0 {
		fmt.Println("iterations, runs and workers must be positive")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("===============================================================")
	fmt.Println("          COMPASS BENCHMARK - Monte Carlo Throughput")
	fmt.Println("===============================================================")
	fmt.Printf("\nIterations/run: %d\n", *iterations)
	fmt.Printf("Runs/sweep:     %d\n", *runs)
	fmt.Printf("Base seed:      %d\n", *seed)
	fmt.Printf("Spread:         %.2f\n", *spread)
	fmt.Printf("Worker sweep:   1..%d\n", *maxWorkers)
	fmt.Println()

	factors := syntheticBaseline()
	fmt.Printf("Baseline: %d factors across %d layers\n\n", len(factors), domain.LayerCount)

	// Reproducibility check: identical seed, different worker counts.
	if err := checkReproducibility(factors, *iterations, *seed, *spread, *maxWorkers); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Reproducibility: identical results across worker counts")
	fmt.Println()

	fmt.Printf("%-8s %-14s %-14s %-12s %-20s\n", "workers", "iters/sec", "avg latency", "mean", "p5..p95 band")
	for workers := 1; workers <= *maxWorkers; workers *= 2 {
		runSweep(factors, *iterations, *runs, *seed, *spread, workers, *verbose)
		if workers == *maxWorkers {
			break
		}
		if workers*2 > *maxWorkers {
			runSweep(factors, *iterations, *runs, *seed, *spread, *maxWorkers, *verbose)
			break
		}
	}
	fmt.Println()
}

// syntheticBaseline builds a full factor set from the catalog with a spread
// of scores and confidences, approximating a real scored session.
func syntheticBaseline() []*domain.Factor {
	specs := scoring.FactorSpecs()
	factors := make([]*domain.Factor, 0, len(specs))
	for i, spec := range specs {
		score := 0.25 + 0.5*float64(i%7)/6.0
		confidence := 0.3 + 0.6*float64(i%5)/4.0
		factors = append(factors, &domain.Factor{
			ID:              spec.ID,
			SessionID:       "benchmark",
			Name:            spec.Name,
			RawScore:        score * spec.Scale,
			NormalizedScore: score,
			Confidence:      confidence,
			Weight:          spec.Weight,
			Driver:          spec.Driver,
			Layer:           spec.Layer,
		})
	}
	return factors
}

func checkReproducibility(factors []*domain.Factor, iterations int, seed int64, spread float64, maxWorkers int) error {
	var reference *domain.SimulationResult
	for _, workers := range []int{1, maxWorkers} {
		sim := simulation.NewSimulator(domain.SimulationConfig{
			Iterations:       iterations,
			Workers:          workers,
			Spread:           spread,
			DiscardThreshold: 0.05,
		})
		result, err := sim.Run(context.Background(), simulation.Input{
			SessionID: "benchmark",
			Factors:   factors,
			Seed:      seed,
		})
		if err != nil {
			return fmt.Errorf("run with %d workers: %w", workers, err)
		}
		if reference == nil {
			reference = result
			continue
		}
		if result.Mean != reference.Mean || result.StdDev != reference.StdDev {
			return fmt.Errorf("results diverge across worker counts: mean %v vs %v", result.Mean, reference.Mean)
		}
	}
	return nil
}

func runSweep(factors []*domain.Factor, iterations, runs int, seed int64, spread float64, workers int, verbose bool) {
	sim := simulation.NewSimulator(domain.SimulationConfig{
		Iterations:       iterations,
		Workers:          workers,
		Spread:           spread,
		DiscardThreshold: 0.05,
	})

	var totalDuration time.Duration
	var meanSum, bandLow, bandHigh float64
	bandLow = math.Inf(1)
	bandHigh = math.Inf(-1)

	for run := 0; run < runs; run++ {
		start := time.Now()
		result, err := sim.Run(context.Background(), simulation.Input{
			SessionID: "benchmark",
			Factors:   factors,
			Seed:      seed + int64(run),
		})
		elapsed := time.Since(start)
		if err != nil {
			fmt.Printf("ERROR: run %d with %d workers: %v\n", run, workers, err)
			return
		}

		totalDuration += elapsed
		meanSum += result.Mean
		bandLow = math.Min(bandLow, result.Band.Lower)
		bandHigh = math.Max(bandHigh, result.Band.Upper)

		if verbose {
			fmt.Printf("  run %2d: mean %.4f band %.4f..%.4f in %v\n",
				run, result.Mean, result.Band.Lower, result.Band.Upper, elapsed.Round(time.Microsecond))
		}
	}

	avgLatency := totalDuration / time.Duration(runs)
	itersPerSec := float64(iterations*runs) / totalDuration.Seconds()

	fmt.Printf("%-8d %-14.0f %-14v %-12.4f %.4f..%.4f\n",
		workers, itersPerSec, avgLatency.Round(time.Microsecond),
		meanSum/float64(runs), bandLow, bandHigh)
}
