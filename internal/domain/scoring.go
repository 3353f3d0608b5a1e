package domain

import (
	"time"
)

// ConfidenceBand bounds the composite score from the empirical simulation
// distribution. Invariant: Lower <= score <= Upper.
type ConfidenceBand struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// BusinessCaseScore is the top-level composite for a session.
type BusinessCaseScore struct {
	SessionID string  `json:"sessionId"`
	Score     float64 `json:"score"`

	// Band is supplied by the Monte Carlo simulator, not computed
	// analytically. Zero value until a simulation has run.
	Band ConfidenceBand `json:"band"`

	// Components maps layer name to its contribution (score * importance).
	Components map[string]float64 `json:"components"`

	Confidence float64 `json:"confidence"`

	// Degraded is set when the backing simulation discarded too many
	// iterations to be trusted.
	Degraded bool `json:"degraded,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// RiskLevel classifies a scenario's risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Scenario is one named, probability-weighted band of simulated outcomes.
// Probabilities across a session's scenario set sum to 1.
type Scenario struct {
	Name        string             `json:"name"`
	Probability float64            `json:"probability"`
	KPIs        map[string]float64 `json:"kpis"`
	Narrative   string             `json:"narrative"`
	KeyDrivers  []string           `json:"keyDrivers"`
	RiskLevel   RiskLevel          `json:"riskLevel"`
}

// SimulationResult is the output of one Monte Carlo run.
type SimulationResult struct {
	SessionID  string         `json:"sessionId"`
	RunID      string         `json:"runId"`
	Seed       int64          `json:"seed"`
	Iterations int            `json:"iterations"`
	Discarded  int            `json:"discarded"`
	Degraded   bool           `json:"degraded"`
	Mean       float64        `json:"mean"`
	StdDev     float64        `json:"stdDev"`
	Band       ConfidenceBand `json:"band"`
	Scenarios  []Scenario     `json:"scenarios"`
	DurationMs int64          `json:"durationMs"`
}

// Segment is an independently scored market slice.
type Segment struct {
	ID                  string   `json:"id"`
	SessionID           string   `json:"sessionId"`
	Name                string   `json:"name"`
	AttractivenessScore float64  `json:"attractivenessScore"`
	RiskFactors         []string `json:"riskFactors"`
	Opportunities       []string `json:"opportunities"`
	MarketSizeEstimate  float64  `json:"marketSizeEstimate"`
}

// SensitivityResult is the outcome of a what-if driver adjustment. It is a
// cheap recompute against the baseline snapshot; the stored baseline is never
// mutated.
type SensitivityResult struct {
	SessionID      string               `json:"sessionId"`
	BaselineScore  float64              `json:"baselineScore"`
	AdjustedScore  float64              `json:"adjustedScore"`
	Elasticities   map[DriverID]float64 `json:"elasticities"`
	AffectedLayers []LayerID            `json:"affectedLayers"`

	// StaleBaseline warns that a full re-score was in flight when the
	// baseline was read.
	StaleBaseline bool `json:"staleBaseline,omitempty"`
}

// Snapshot is the full persisted state for a session.
type Snapshot struct {
	SessionID    string             `json:"sessionId"`
	Factors      []*Factor          `json:"factors"`
	Layers       []*Layer           `json:"layers"`
	Segments     []*Segment         `json:"segments"`
	BusinessCase *BusinessCaseScore `json:"businessCase,omitempty"`
	Scenarios    []Scenario         `json:"scenarios,omitempty"`
}
