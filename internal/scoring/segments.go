package scoring

import (
	"math"

	"github.com/strategichq/compass/internal/domain"
)

// SegmentScorer scores independent market slices from segment evidence.
type SegmentScorer struct{}

// NewSegmentScorer creates a segment scorer.
func NewSegmentScorer() *SegmentScorer {
	return &SegmentScorer{}
}

// Score computes attractiveness per segment. Like factor scoring it is a pure
// function of the evidence, so segment rows upsert idempotently.
//
// attractiveness = 0.5*size + 0.3*growth + 0.2*(1 - competition), where size
// and growth are saturating transforms of the raw estimates.
func (s *SegmentScorer) Score(sessionID string, evidence []domain.SegmentEvidence) []*domain.Segment {
	segments := make([]*domain.Segment, 0, len(evidence))
	for _, ev := range evidence {
		sizeIdx := saturate(ev.MarketSizeUSDBn, 20.0)
		growthIdx := saturate(ev.GrowthRatePct, 30.0)
		attractiveness := 0.5*sizeIdx + 0.3*growthIdx + 0.2*(1.0-ev.CompetitionIndex)

		segments = append(segments, &domain.Segment{
			ID:                  ev.SegmentID,
			SessionID:           sessionID,
			Name:                ev.Name,
			AttractivenessScore: Clamp(attractiveness, Eps, 1-Eps),
			RiskFactors:         ev.RiskFactors,
			Opportunities:       ev.Opportunities,
			MarketSizeEstimate:  ev.MarketSizeUSDBn,
		})
	}
	return segments
}

// saturate maps v >= 0 to [0,1] with diminishing returns, reaching 1 at the
// scale point.
func saturate(v, scale float64) float64 {
	if v <= 0 {
		return 0
	}
	idx := math.Log1p(v) / math.Log1p(scale)
	if idx > 1 {
		return 1
	}
	return idx
}
