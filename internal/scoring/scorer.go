// Package scoring turns evidence bundles into the factor → layer → composite
// score hierarchy. Factor formulas are CEL programs compiled once at scorer
// construction; evaluation is a pure function of the evidence bundle, so
// re-scoring identical evidence yields bit-identical records.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/strategichq/compass/internal/domain"
)

var (
	ErrInvalidEvidence = errors.New("invalid evidence")
)

// Eps bounds normalized scores away from the degenerate 0/1 endpoints that
// would break downstream sampling.
const Eps = 0.01

// NeutralScore is the midpoint assigned when evidence is missing.
const NeutralScore = 0.5

// FactorScorer computes the 28 factor scores and confidences for a session.
type FactorScorer struct {
	cfg      domain.ScoringConfig
	programs map[domain.FactorID]cel.Program
}

// NewFactorScorer compiles the factor catalog's CEL formulas.
func NewFactorScorer(cfg domain.ScoringConfig) (*FactorScorer, error) {
	env, err := cel.NewEnv(
		cel.Variable("signals", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	programs := make(map[domain.FactorID]cel.Program, domain.FactorCount)
	for _, spec := range factorCatalog {
		ast, issues := env.Compile(spec.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile formula for %s: %w", spec.ID, issues.Err())
		}
		if ast.OutputType() != cel.DoubleType {
			return nil, fmt.Errorf("formula for %s must return double, got %s", spec.ID, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for %s: %w", spec.ID, err)
		}
		programs[spec.ID] = program
	}

	return &FactorScorer{cfg: cfg, programs: programs}, nil
}

// Score produces exactly 28 factor records from a session's evidence bundle,
// in canonical catalog order. Missing signals degrade the affected factor to a
// low-confidence neutral default instead of failing the session.
func (s *FactorScorer) Score(ctx context.Context, bundle *domain.EvidenceBundle) ([]*domain.Factor, error) {
	if err := validateBundle(bundle); err != nil {
		return nil, err
	}

	// Evidence items grouped per factor for the confidence mapping.
	counts := make(map[domain.FactorID]int, domain.FactorCount)
	qualitySums := make(map[domain.FactorID]float64, domain.FactorCount)
	for _, item := range bundle.Items {
		counts[item.Factor]++
		qualitySums[item.Factor] += item.Quality
	}

	activation := map[string]any{"signals": bundle.Signals}

	factors := make([]*domain.Factor, 0, domain.FactorCount)
	for _, spec := range factorCatalog {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		factor := &domain.Factor{
			ID:        spec.ID,
			SessionID: bundle.SessionID,
			Name:      spec.Name,
			Weight:    spec.Weight,
			Driver:    spec.Driver,
			Layer:     spec.Layer,
		}

		if missing := missingInputs(spec, bundle.Signals); missing > 0 {
			factor.Missing = true
			factor.RawScore = NeutralScore * spec.Scale
			factor.NormalizedScore = NeutralScore
			factor.Confidence = s.cfg.MissingConfidence
			factor.Steps = []domain.CalculationStep{
				{Label: "missing inputs", Value: float64(missing)},
				{Label: "neutral default", Value: NeutralScore},
			}
			factors = append(factors, factor)
			continue
		}

		out, _, err := s.programs[spec.ID].Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("formula evaluation failed for %s: %w", spec.ID, err)
		}
		raw := toFloat(out)

		normalized := Clamp(raw/spec.Scale, Eps, 1-Eps)
		n := counts[spec.ID]
		meanQuality := 0.0
		if n > 0 {
			meanQuality = qualitySums[spec.ID] / float64(n)
		}
		confidence := s.confidence(n, meanQuality)

		factor.RawScore = raw
		factor.NormalizedScore = normalized
		factor.Confidence = confidence
		factor.Steps = []domain.CalculationStep{
			{Label: "raw formula", Value: raw},
			{Label: "scale", Value: spec.Scale},
			{Label: "normalized", Value: normalized},
			{Label: "evidence items", Value: float64(n)},
			{Label: "mean quality", Value: meanQuality},
			{Label: "confidence", Value: confidence},
		}
		factors = append(factors, factor)
	}

	return factors, nil
}

// confidence maps evidence volume and quality to [eps, max]. The mapping is a
// tunable configuration, monotone in both inputs.
func (s *FactorScorer) confidence(items int, meanQuality float64) float64 {
	volume := 0.0
	if items > 0 && s.cfg.VolumeSaturation > 0 {
		volume = math.Log1p(float64(items)) / math.Log1p(float64(s.cfg.VolumeSaturation))
		if volume > 1 {
			volume = 1
		}
	}
	conf := s.cfg.Base + s.cfg.VolumeWeight*volume + s.cfg.QualityWeight*meanQuality
	return Clamp(conf, Eps, s.cfg.MaxConfidence)
}

// validateBundle rejects malformed evidence at the scorer boundary. Partial
// evidence is fine (it degrades confidence); out-of-range or non-finite
// values are not.
func validateBundle(bundle *domain.EvidenceBundle) error {
	if bundle == nil {
		return fmt.Errorf("%w: bundle is required", ErrInvalidEvidence)
	}
	if bundle.SessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrInvalidEvidence)
	}
	for name, v := range bundle.Signals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: signal %q is not finite", ErrInvalidEvidence, name)
		}
	}
	for i, item := range bundle.Items {
		if _, ok := FactorSpecFor(item.Factor); !ok {
			return fmt.Errorf("%w: item %d references unknown factor %q", ErrInvalidEvidence, i, item.Factor)
		}
		if item.Quality < 0 || item.Quality > 1 || math.IsNaN(item.Quality) {
			return fmt.Errorf("%w: item %d quality %v out of range [0,1]", ErrInvalidEvidence, i, item.Quality)
		}
	}
	for i, seg := range bundle.Segments {
		if seg.SegmentID == "" {
			return fmt.Errorf("%w: segment %d is missing an id", ErrInvalidEvidence, i)
		}
		if seg.CompetitionIndex < 0 || seg.CompetitionIndex > 1 {
			return fmt.Errorf("%w: segment %q competition index out of range [0,1]", ErrInvalidEvidence, seg.SegmentID)
		}
	}
	return nil
}

func missingInputs(spec domain.FactorSpec, signals map[string]float64) int {
	missing := 0
	for _, name := range spec.Inputs {
		if _, ok := signals[name]; !ok {
			missing++
		}
	}
	return missing
}

// toFloat converts a CEL value to float64.
func toFloat(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
