package scoring

import (
	"fmt"
	"sort"

	"github.com/strategichq/compass/internal/domain"
)

// LayerAggregator combines factor scores into weighted layer scores.
type LayerAggregator struct {
	cfg domain.ScoringConfig
}

// NewLayerAggregator creates a layer aggregator.
func NewLayerAggregator(cfg domain.ScoringConfig) *LayerAggregator {
	return &LayerAggregator{cfg: cfg}
}

// Aggregate maps factors onto the fixed layer set.
//
// layer.score = sum(factor.normalized * weight) / sum(weight over factors with
// data). Weights are renormalized over present factors so a missing factor
// cannot silently zero the layer. A layer whose factors are all missing gets
// the neutral midpoint and a LowEvidence mark, which keeps it distinguishable
// from a genuinely low score.
func (a *LayerAggregator) Aggregate(sessionID string, factors []*domain.Factor) []*domain.Layer {
	byLayer := make(map[domain.LayerID][]*domain.Factor, domain.LayerCount)
	for _, f := range factors {
		byLayer[f.Layer] = append(byLayer[f.Layer], f)
	}

	layers := make([]*domain.Layer, 0, domain.LayerCount)
	for _, spec := range layerCatalog {
		layers = append(layers, a.aggregateLayer(sessionID, spec, byLayer[spec.ID]))
	}
	return layers
}

func (a *LayerAggregator) aggregateLayer(sessionID string, spec domain.LayerSpec, factors []*domain.Factor) *domain.Layer {
	layer := &domain.Layer{
		ID:        spec.ID,
		SessionID: sessionID,
		Name:      spec.Name,
	}

	var scoreSum, confSum, weightSum float64
	present := 0
	for _, f := range factors {
		if f.Missing {
			continue
		}
		scoreSum += f.NormalizedScore * f.Weight
		confSum += f.Confidence * f.Weight
		weightSum += f.Weight
		present++
	}

	if present == 0 || weightSum == 0 {
		layer.Score = NeutralScore
		layer.Confidence = a.cfg.MissingConfidence
		layer.LowEvidence = true
		layer.Insights = []string{
			fmt.Sprintf("%s: no usable evidence, neutral default applied", spec.Name),
		}
		return layer
	}

	layer.Score = scoreSum / weightSum
	layer.Confidence = confSum / weightSum
	layer.LowEvidence = layer.Confidence < a.cfg.LowConfidence
	layer.Insights = a.insights(spec, factors, present)
	return layer
}

// insights produces ordered, deterministic observations for a layer.
func (a *LayerAggregator) insights(spec domain.LayerSpec, factors []*domain.Factor, present int) []string {
	scored := make([]*domain.Factor, 0, len(factors))
	for _, f := range factors {
		if !f.Missing {
			scored = append(scored, f)
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].NormalizedScore != scored[j].NormalizedScore {
			return scored[i].NormalizedScore > scored[j].NormalizedScore
		}
		return scored[i].ID < scored[j].ID
	})

	insights := make([]string, 0, 3)
	top := scored[0]
	insights = append(insights, fmt.Sprintf("%s: strongest factor is %s (%.2f)", spec.Name, top.Name, top.NormalizedScore))
	if len(scored) > 1 {
		bottom := scored[len(scored)-1]
		insights = append(insights, fmt.Sprintf("%s: weakest factor is %s (%.2f)", spec.Name, bottom.Name, bottom.NormalizedScore))
	}
	if present < len(factors) {
		insights = append(insights, fmt.Sprintf("%s: %d of %d factors lacked evidence, weights renormalized", spec.Name, len(factors)-present, len(factors)))
	}
	return insights
}
