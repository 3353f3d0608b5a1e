// Package domain defines the core types and interfaces for Compass.
package domain

// FactorID identifies one of the 28 strategic factors. The set is closed:
// scoring, aggregation, and persistence all switch over these constants, so a
// typo in a factor name is a compile error rather than a silent zero score.
type FactorID string

const (
	FactorMarketSize           FactorID = "F1"
	FactorMarketGrowth         FactorID = "F2"
	FactorMarketMaturity       FactorID = "F3"
	FactorCompetitiveIntensity FactorID = "F4"
	FactorDifferentiation      FactorID = "F5"
	FactorEntryBarriers        FactorID = "F6"
	FactorProblemSeverity      FactorID = "F7"
	FactorWillingnessToPay     FactorID = "F8"
	FactorAdoptionReadiness    FactorID = "F9"
	FactorProductFit           FactorID = "F10"
	FactorTechnologyReadiness  FactorID = "F11"
	FactorScalability          FactorID = "F12"
	FactorRevenuePotential     FactorID = "F13"
	FactorMarginStructure      FactorID = "F14"
	FactorCapitalEfficiency    FactorID = "F15"
	FactorChannelAccess        FactorID = "F16"
	FactorSalesCycle           FactorID = "F17"
	FactorPartnershipLeverage  FactorID = "F18"
	FactorTeamCapability       FactorID = "F19"
	FactorSupplyReadiness      FactorID = "F20"
	FactorProcessMaturity      FactorID = "F21"
	FactorExecutionRisk        FactorID = "F22"
	FactorConcentrationRisk    FactorID = "F23"
	FactorRegulatoryBurden     FactorID = "F24"
	FactorComplianceReadiness  FactorID = "F25"
	FactorStrategicFit         FactorID = "F26"
	FactorSynergyPotential     FactorID = "F27"
	FactorOptionality          FactorID = "F28"
)

// FactorCount is the fixed number of factors scored per session.
const FactorCount = 28

// DriverID names an adjustable input driver. Each factor is tagged with
// exactly one driver; sensitivity adjustments perturb all factors sharing the
// driver tag.
type DriverID string

const (
	DriverDemand       DriverID = "demand"
	DriverCompetition  DriverID = "competition"
	DriverPricing      DriverID = "pricing"
	DriverExecution    DriverID = "execution"
	DriverMarketAccess DriverID = "market_access"
	DriverCost         DriverID = "cost"
	DriverRegulation   DriverID = "regulation"
	DriverStrategy     DriverID = "strategy"
)

// DriverCount is the fixed number of adjustable drivers.
const DriverCount = 8

// CalculationStep records one labeled intermediate value of a factor formula,
// preserved in order so a reviewer can replay the computation.
type CalculationStep struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Factor is one scored strategic indicator for a session.
// A factor is a pure function of the session's evidence bundle: re-scoring
// with identical evidence produces a bit-identical record, which is what makes
// the repository upsert idempotent.
type Factor struct {
	ID        FactorID `json:"id"`
	SessionID string   `json:"sessionId"`
	Name      string   `json:"name"`

	// RawScore is the unbounded formula output before normalization.
	RawScore float64 `json:"rawScore"`

	// NormalizedScore is clamp(raw/scale, eps, 1-eps), always in (0,1).
	NormalizedScore float64 `json:"normalizedScore"`

	// Confidence in [0,1], derived from evidence volume and quality.
	Confidence float64 `json:"confidence"`

	// Weight of this factor within its layer.
	Weight float64 `json:"weight"`

	// Driver this factor responds to in sensitivity analysis.
	Driver DriverID `json:"driver"`

	// Layer this factor feeds.
	Layer LayerID `json:"layer"`

	// Steps holds the ordered intermediate values of the formula.
	Steps []CalculationStep `json:"steps"`

	// Missing marks a low-confidence default produced when the evidence
	// bundle lacked the factor's required signals.
	Missing bool `json:"missing,omitempty"`
}

// FactorSpec is the static metadata for one factor: its formula, the signals
// the formula reads, and its position in the layer hierarchy.
type FactorSpec struct {
	ID     FactorID
	Name   string
	Layer  LayerID
	Weight float64
	Driver DriverID

	// Expression is a CEL formula over the evidence signal map producing the
	// raw score on a 0..Scale range.
	Expression string

	// Inputs lists the signal names the expression requires. If any is absent
	// from the evidence bundle the factor degrades to the neutral default.
	Inputs []string

	// Scale divides the raw score during normalization.
	Scale float64
}
