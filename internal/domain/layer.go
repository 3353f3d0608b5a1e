package domain

// LayerID identifies one of the fixed aggregation layers.
type LayerID string

const (
	LayerMarket      LayerID = "market"
	LayerCompetition LayerID = "competition"
	LayerCustomer    LayerID = "customer"
	LayerProduct     LayerID = "product"
	LayerFinancial   LayerID = "financial"
	LayerGoToMarket  LayerID = "go_to_market"
	LayerOperations  LayerID = "operations"
	LayerRisk        LayerID = "risk"
	LayerRegulatory  LayerID = "regulatory"
	LayerStrategic   LayerID = "strategic"
)

// LayerCount is the fixed number of aggregation layers.
const LayerCount = 10

// Layer is the weighted aggregation of a subset of factors for a session.
type Layer struct {
	ID        LayerID `json:"id"`
	SessionID string  `json:"sessionId"`
	Name      string  `json:"name"`

	// Score in [0,1]: sum(factor.normalized * weight) with weights
	// renormalized over factors that actually have data.
	Score float64 `json:"score"`

	// Confidence in [0,1]: weighted average of constituent confidences.
	Confidence float64 `json:"confidence"`

	// Insights holds ordered human-readable observations about the layer.
	Insights []string `json:"insights"`

	// LowEvidence marks a layer whose constituent factors were all missing:
	// the score is the neutral midpoint, not a measured value. This is how a
	// neutral default stays distinguishable from a legitimately low score.
	LowEvidence bool `json:"lowEvidence,omitempty"`
}

// LayerSpec is the static metadata for one layer.
type LayerSpec struct {
	ID   LayerID
	Name string

	// Importance is the layer's weight in the composite score. Importances
	// across all layers sum to 1.
	Importance float64
}
