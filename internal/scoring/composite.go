package scoring

import (
	"time"

	"github.com/strategichq/compass/internal/domain"
)

// BusinessCaseScorer folds layer scores into the composite point estimate.
// The confidence band is deliberately absent here: it comes from the Monte
// Carlo simulator's empirical distribution, never from an analytic formula.
type BusinessCaseScorer struct{}

// NewBusinessCaseScorer creates a composite scorer.
func NewBusinessCaseScorer() *BusinessCaseScorer {
	return &BusinessCaseScorer{}
}

// Compute returns the deterministic composite: sum(layer.score * importance)
// with a per-layer contribution breakdown.
func (s *BusinessCaseScorer) Compute(sessionID string, layers []*domain.Layer) *domain.BusinessCaseScore {
	score := &domain.BusinessCaseScore{
		SessionID:  sessionID,
		Components: make(map[string]float64, len(layers)),
		UpdatedAt:  time.Now().UTC(),
	}

	for _, layer := range layers {
		spec, ok := LayerSpecFor(layer.ID)
		if !ok {
			continue
		}
		contribution := layer.Score * spec.Importance
		score.Score += contribution
		score.Confidence += layer.Confidence * spec.Importance
		score.Components[spec.Name] = contribution
	}

	return score
}

// CompositeOf computes the composite from raw normalized layer scores in
// canonical layer order. It is the allocation-free core shared with the
// simulator's per-iteration recompute.
func CompositeOf(layerScores []float64) float64 {
	var composite float64
	for i, spec := range layerCatalog {
		if i >= len(layerScores) {
			break
		}
		composite += layerScores[i] * spec.Importance
	}
	return composite
}
