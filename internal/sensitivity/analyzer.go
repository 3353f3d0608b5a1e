// Package sensitivity implements what-if driver adjustments against a
// committed baseline. Adjustments never mutate stored results; every call is
// a cheap in-memory recompute over the snapshot.
package sensitivity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/strategichq/compass/internal/baseline"
	"github.com/strategichq/compass/internal/domain"
	"github.com/strategichq/compass/internal/scoring"
)

var (
	// ErrInvalidAdjustment indicates an unknown driver or an out-of-range
	// delta.
	ErrInvalidAdjustment = errors.New("sensitivity: invalid adjustment")

	// ErrNoBaseline indicates the session has no committed score to adjust.
	ErrNoBaseline = errors.New("sensitivity: no baseline")
)

// maxDelta bounds a single driver adjustment to +/-50%.
const maxDelta = 0.5

// RescoreTracker reports whether a full re-score is currently in flight for
// a session. Satisfied by the worker engine.
type RescoreTracker interface {
	IsRescoring(sessionID string) bool
}

// Analyzer computes driver elasticities and adjusted composites.
type Analyzer struct {
	baselines *baseline.Service
	tracker   RescoreTracker
}

// NewAnalyzer creates an analyzer. The tracker may be nil, in which case
// results never carry the stale-baseline warning.
func NewAnalyzer(baselines *baseline.Service, tracker RescoreTracker) *Analyzer {
	return &Analyzer{baselines: baselines, tracker: tracker}
}

// Adjust applies fractional driver deltas to the session's baseline and
// returns the adjusted composite plus per-driver elasticities. Elasticities
// are measured one driver at a time; the adjusted score applies all deltas
// together. The call deliberately does not wait for an in-flight re-score:
// it reads whatever baseline is committed and flags it stale instead.
func (a *Analyzer) Adjust(ctx context.Context, sessionID string, adjustments map[domain.DriverID]float64) (*domain.SensitivityResult, error) {
	if err := validate(adjustments); err != nil {
		return nil, err
	}

	stale := a.tracker != nil && a.tracker.IsRescoring(sessionID)

	snap, err := a.baselines.Snapshot(ctx, sessionID)
	if err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			return nil, ErrNoBaseline
		}
		return nil, err
	}

	base := recompute(snap.Factors, nil)
	result := &domain.SensitivityResult{
		SessionID:      sessionID,
		BaselineScore:  base,
		AdjustedScore:  recompute(snap.Factors, adjustments),
		Elasticities:   make(map[domain.DriverID]float64, len(adjustments)),
		AffectedLayers: affectedLayers(snap.Factors, adjustments),
		StaleBaseline:  stale,
	}

	for driver, delta := range adjustments {
		if delta == 0 {
			result.Elasticities[driver] = 0
			continue
		}
		// Elasticity is the plain difference quotient of the composite with
		// respect to the driver delta, measured with this driver alone.
		solo := map[domain.DriverID]float64{driver: delta}
		adjusted := recompute(snap.Factors, solo)
		result.Elasticities[driver] = (adjusted - base) / delta
	}
	return result, nil
}

func validate(adjustments map[domain.DriverID]float64) error {
	if len(adjustments) == 0 {
		return fmt.Errorf("%w: no drivers given", ErrInvalidAdjustment)
	}
	for driver, delta := range adjustments {
		if len(scoring.FactorsForDriver(driver)) == 0 {
			return fmt.Errorf("%w: unknown driver %q", ErrInvalidAdjustment, driver)
		}
		if math.IsNaN(delta) || math.Abs(delta) > maxDelta {
			return fmt.Errorf("%w: delta %v for driver %q out of range", ErrInvalidAdjustment, delta, driver)
		}
	}
	return nil
}

// recompute folds factors into the composite with optional per-driver
// multipliers, mirroring the layer aggregation used at scoring time: weights
// renormalize over evidenced factors, and an unevidenced layer falls back to
// its neutral defaults.
func recompute(factors []*domain.Factor, adjustments map[domain.DriverID]float64) float64 {
	layerIndex := make(map[domain.LayerID]int, domain.LayerCount)
	for i, spec := range scoring.LayerSpecs() {
		layerIndex[spec.ID] = i
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

	layers := make([]float64, domain.LayerCount)
	for _, f := range factors {
		li := layerIndex[f.Layer]
		weight := 0.0
		switch {
		case presentWeight[li] > 0 && !f.Missing:
			weight = f.Weight / presentWeight[li]
		case presentWeight[li] == 0 && totalWeight[li] > 0:
			weight = f.Weight / totalWeight[li]
		}
		score := f.NormalizedScore
		if delta, ok := adjustments[f.Driver]; ok {
			score = scoring.Clamp(score*(1+delta), scoring.Eps, 1-scoring.Eps)
		}
		layers[li] += weight * score
	}
	return scoring.CompositeOf(layers)
}

// affectedLayers lists, in canonical order, each layer containing at least
// one factor tagged with an adjusted driver.
func affectedLayers(factors []*domain.Factor, adjustments map[domain.DriverID]float64) []domain.LayerID {
	touched := make(map[domain.LayerID]bool)
	for _, f := range factors {
		if _, ok := adjustments[f.Driver]; ok {
			touched[f.Layer] = true
		}
	}

	order := make(map[domain.LayerID]int, domain.LayerCount)
	ids := make([]domain.LayerID, 0, len(touched))
	for i, spec := range scoring.LayerSpecs() {
		order[spec.ID] = i
	}
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return order[ids[a]] < order[ids[b]] })
	return ids
}
