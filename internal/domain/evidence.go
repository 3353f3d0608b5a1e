package domain

// EvidenceBundle is the collected evidence for one session, assembled by the
// external collection pipeline. The engine treats it as read-only input.
type EvidenceBundle struct {
	SessionID string `json:"sessionId"`

	// Signals are the named numeric inputs the factor formulas read,
	// e.g. "tam_usd_bn", "growth_rate_pct", "competitor_count".
	Signals map[string]float64 `json:"signals"`

	// Items are the underlying evidence records; their count and quality per
	// factor drive confidence.
	Items []EvidenceItem `json:"items"`

	// Segments carry per-segment market evidence.
	Segments []SegmentEvidence `json:"segments,omitempty"`
}

// EvidenceItem is a single piece of collected evidence attributed to a factor.
type EvidenceItem struct {
	Factor  FactorID `json:"factor"`
	Source  string   `json:"source"`
	Quality float64  `json:"quality"` // [0,1]
}

// SegmentEvidence is the evidence slice for one market segment.
type SegmentEvidence struct {
	SegmentID        string   `json:"segmentId"`
	Name             string   `json:"name"`
	MarketSizeUSDBn  float64  `json:"marketSizeUsdBn"`
	GrowthRatePct    float64  `json:"growthRatePct"`
	CompetitionIndex float64  `json:"competitionIndex"` // [0,1]
	RiskFactors      []string `json:"riskFactors,omitempty"`
	Opportunities    []string `json:"opportunities,omitempty"`
}
