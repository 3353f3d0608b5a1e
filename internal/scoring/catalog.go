package scoring

import (
	"github.com/strategichq/compass/internal/domain"
)

// The factor catalog is the closed set of 28 strategic indicators. Each entry
// carries its CEL formula over the evidence signal map, the signals the
// formula requires, its in-layer weight, and the driver it responds to.
// In-layer weights sum to 1 per layer; layer importances sum to 1.
var factorCatalog = []domain.FactorSpec{
	// Market attractiveness
	{ID: domain.FactorMarketSize, Name: "Market Size", Layer: domain.LayerMarket, Weight: 0.40, Driver: domain.DriverDemand,
		Expression: `(signals["tam_usd_bn"] > 50.0 ? 50.0 : signals["tam_usd_bn"]) * 2.0`,
		Inputs:     []string{"tam_usd_bn"}, Scale: 100},
	{ID: domain.FactorMarketGrowth, Name: "Market Growth", Layer: domain.LayerMarket, Weight: 0.35, Driver: domain.DriverDemand,
		Expression: `(signals["growth_rate_pct"] > 40.0 ? 40.0 : (signals["growth_rate_pct"] < 0.0 ? 0.0 : signals["growth_rate_pct"])) * 2.5`,
		Inputs:     []string{"growth_rate_pct"}, Scale: 100},
	{ID: domain.FactorMarketMaturity, Name: "Market Maturity", Layer: domain.LayerMarket, Weight: 0.25, Driver: domain.DriverDemand,
		Expression: `(1.0 - signals["market_maturity_index"]) * 100.0`,
		Inputs:     []string{"market_maturity_index"}, Scale: 100},

	// Competitive landscape
	{ID: domain.FactorCompetitiveIntensity, Name: "Competitive Intensity", Layer: domain.LayerCompetition, Weight: 0.40, Driver: domain.DriverCompetition,
		Expression: `(1.0 - (signals["competitor_count"] > 25.0 ? 25.0 : signals["competitor_count"]) / 25.0) * 100.0`,
		Inputs:     []string{"competitor_count"}, Scale: 100},
	{ID: domain.FactorDifferentiation, Name: "Differentiation", Layer: domain.LayerCompetition, Weight: 0.35, Driver: domain.DriverCompetition,
		Expression: `signals["differentiation_index"] * 100.0`,
		Inputs:     []string{"differentiation_index"}, Scale: 100},
	{ID: domain.FactorEntryBarriers, Name: "Entry Barriers", Layer: domain.LayerCompetition, Weight: 0.25, Driver: domain.DriverCompetition,
		Expression: `signals["entry_barrier_index"] * 100.0`,
		Inputs:     []string{"entry_barrier_index"}, Scale: 100},

	// Customer demand
	{ID: domain.FactorProblemSeverity, Name: "Problem Severity", Layer: domain.LayerCustomer, Weight: 0.40, Driver: domain.DriverDemand,
		Expression: `(signals["pain_point_score"] > 10.0 ? 10.0 : signals["pain_point_score"]) * 10.0`,
		Inputs:     []string{"pain_point_score"}, Scale: 100},
	{ID: domain.FactorWillingnessToPay, Name: "Willingness To Pay", Layer: domain.LayerCustomer, Weight: 0.35, Driver: domain.DriverPricing,
		Expression: `signals["wtp_index"] * 70.0 + (signals["price_benchmark_ratio"] > 1.5 ? 1.5 : signals["price_benchmark_ratio"]) * 20.0`,
		Inputs:     []string{"wtp_index", "price_benchmark_ratio"}, Scale: 100},
	{ID: domain.FactorAdoptionReadiness, Name: "Adoption Readiness", Layer: domain.LayerCustomer, Weight: 0.25, Driver: domain.DriverDemand,
		Expression: `signals["adoption_index"] * 100.0`,
		Inputs:     []string{"adoption_index"}, Scale: 100},

	// Product & technology
	{ID: domain.FactorProductFit, Name: "Product Fit", Layer: domain.LayerProduct, Weight: 0.40, Driver: domain.DriverExecution,
		Expression: `(signals["nps"] + 100.0) / 2.0 * 0.5 + signals["retention_pct"] * 0.5`,
		Inputs:     []string{"nps", "retention_pct"}, Scale: 100},
	{ID: domain.FactorTechnologyReadiness, Name: "Technology Readiness", Layer: domain.LayerProduct, Weight: 0.35, Driver: domain.DriverExecution,
		Expression: `signals["trl"] / 9.0 * 100.0`,
		Inputs:     []string{"trl"}, Scale: 100},
	{ID: domain.FactorScalability, Name: "Scalability", Layer: domain.LayerProduct, Weight: 0.25, Driver: domain.DriverExecution,
		Expression: `signals["scalability_index"] * 100.0`,
		Inputs:     []string{"scalability_index"}, Scale: 100},

	// Financial viability
	{ID: domain.FactorRevenuePotential, Name: "Revenue Potential", Layer: domain.LayerFinancial, Weight: 0.40, Driver: domain.DriverPricing,
		Expression: `(signals["revenue_5y_usd_m"] > 500.0 ? 500.0 : signals["revenue_5y_usd_m"]) / 5.0`,
		Inputs:     []string{"revenue_5y_usd_m"}, Scale: 100},
	{ID: domain.FactorMarginStructure, Name: "Margin Structure", Layer: domain.LayerFinancial, Weight: 0.35, Driver: domain.DriverPricing,
		Expression: `signals["gross_margin_pct"] > 100.0 ? 100.0 : signals["gross_margin_pct"]`,
		Inputs:     []string{"gross_margin_pct"}, Scale: 100},
	{ID: domain.FactorCapitalEfficiency, Name: "Capital Efficiency", Layer: domain.LayerFinancial, Weight: 0.25, Driver: domain.DriverCost,
		Expression: `(signals["ltv_cac_ratio"] > 5.0 ? 5.0 : signals["ltv_cac_ratio"]) * 20.0`,
		Inputs:     []string{"ltv_cac_ratio"}, Scale: 100},

	// Go-to-market
	{ID: domain.FactorChannelAccess, Name: "Channel Access", Layer: domain.LayerGoToMarket, Weight: 0.40, Driver: domain.DriverMarketAccess,
		Expression: `signals["channel_coverage_pct"] > 100.0 ? 100.0 : signals["channel_coverage_pct"]`,
		Inputs:     []string{"channel_coverage_pct"}, Scale: 100},
	{ID: domain.FactorSalesCycle, Name: "Sales Cycle", Layer: domain.LayerGoToMarket, Weight: 0.30, Driver: domain.DriverMarketAccess,
		Expression: `(1.0 - (signals["sales_cycle_days"] > 360.0 ? 360.0 : signals["sales_cycle_days"]) / 360.0) * 100.0`,
		Inputs:     []string{"sales_cycle_days"}, Scale: 100},
	{ID: domain.FactorPartnershipLeverage, Name: "Partnership Leverage", Layer: domain.LayerGoToMarket, Weight: 0.30, Driver: domain.DriverMarketAccess,
		Expression: `(signals["partner_count"] > 20.0 ? 20.0 : signals["partner_count"]) * 5.0`,
		Inputs:     []string{"partner_count"}, Scale: 100},

	// Operational capability
	{ID: domain.FactorTeamCapability, Name: "Team Capability", Layer: domain.LayerOperations, Weight: 0.40, Driver: domain.DriverExecution,
		Expression: `signals["team_experience_index"] * 100.0`,
		Inputs:     []string{"team_experience_index"}, Scale: 100},
	{ID: domain.FactorSupplyReadiness, Name: "Supply Readiness", Layer: domain.LayerOperations, Weight: 0.30, Driver: domain.DriverExecution,
		Expression: `signals["supply_readiness_index"] * 100.0`,
		Inputs:     []string{"supply_readiness_index"}, Scale: 100},
	{ID: domain.FactorProcessMaturity, Name: "Process Maturity", Layer: domain.LayerOperations, Weight: 0.30, Driver: domain.DriverExecution,
		Expression: `(signals["process_maturity_level"] > 5.0 ? 5.0 : signals["process_maturity_level"]) * 20.0`,
		Inputs:     []string{"process_maturity_level"}, Scale: 100},

	// Risk exposure
	{ID: domain.FactorExecutionRisk, Name: "Execution Risk", Layer: domain.LayerRisk, Weight: 0.55, Driver: domain.DriverExecution,
		Expression: `(1.0 - signals["execution_risk_index"]) * 100.0`,
		Inputs:     []string{"execution_risk_index"}, Scale: 100},
	{ID: domain.FactorConcentrationRisk, Name: "Concentration Risk", Layer: domain.LayerRisk, Weight: 0.45, Driver: domain.DriverExecution,
		Expression: `(1.0 - (signals["top_customer_share_pct"] > 100.0 ? 100.0 : signals["top_customer_share_pct"]) / 100.0) * 100.0`,
		Inputs:     []string{"top_customer_share_pct"}, Scale: 100},

	// Regulatory environment
	{ID: domain.FactorRegulatoryBurden, Name: "Regulatory Burden", Layer: domain.LayerRegulatory, Weight: 0.55, Driver: domain.DriverRegulation,
		Expression: `(1.0 - signals["regulatory_burden_index"]) * 100.0`,
		Inputs:     []string{"regulatory_burden_index"}, Scale: 100},
	{ID: domain.FactorComplianceReadiness, Name: "Compliance Readiness", Layer: domain.LayerRegulatory, Weight: 0.45, Driver: domain.DriverRegulation,
		Expression: `signals["compliance_readiness_index"] * 100.0`,
		Inputs:     []string{"compliance_readiness_index"}, Scale: 100},

	// Strategic alignment
	{ID: domain.FactorStrategicFit, Name: "Strategic Fit", Layer: domain.LayerStrategic, Weight: 0.40, Driver: domain.DriverStrategy,
		Expression: `signals["strategic_fit_index"] * 100.0`,
		Inputs:     []string{"strategic_fit_index"}, Scale: 100},
	{ID: domain.FactorSynergyPotential, Name: "Synergy Potential", Layer: domain.LayerStrategic, Weight: 0.30, Driver: domain.DriverStrategy,
		Expression: `signals["synergy_index"] * 100.0`,
		Inputs:     []string{"synergy_index"}, Scale: 100},
	{ID: domain.FactorOptionality, Name: "Optionality", Layer: domain.LayerStrategic, Weight: 0.30, Driver: domain.DriverStrategy,
		Expression: `(signals["expansion_option_count"] > 10.0 ? 10.0 : signals["expansion_option_count"]) * 10.0`,
		Inputs:     []string{"expansion_option_count"}, Scale: 100},
}

var layerCatalog = []domain.LayerSpec{
	{ID: domain.LayerMarket, Name: "Market Attractiveness", Importance: 0.14},
	{ID: domain.LayerCompetition, Name: "Competitive Landscape", Importance: 0.11},
	{ID: domain.LayerCustomer, Name: "Customer Demand", Importance: 0.12},
	{ID: domain.LayerProduct, Name: "Product & Technology", Importance: 0.11},
	{ID: domain.LayerFinancial, Name: "Financial Viability", Importance: 0.13},
	{ID: domain.LayerGoToMarket, Name: "Go-To-Market", Importance: 0.09},
	{ID: domain.LayerOperations, Name: "Operational Capability", Importance: 0.08},
	{ID: domain.LayerRisk, Name: "Risk Exposure", Importance: 0.08},
	{ID: domain.LayerRegulatory, Name: "Regulatory Environment", Importance: 0.07},
	{ID: domain.LayerStrategic, Name: "Strategic Alignment", Importance: 0.07},
}

// FactorSpecs returns the full catalog in canonical F1..F28 order.
func FactorSpecs() []domain.FactorSpec {
	return factorCatalog
}

// LayerSpecs returns the layer catalog in canonical order.
func LayerSpecs() []domain.LayerSpec {
	return layerCatalog
}

// FactorSpecFor returns the spec for a factor id.
func FactorSpecFor(id domain.FactorID) (domain.FactorSpec, bool) {
	for _, spec := range factorCatalog {
		if spec.ID == id {
			return spec, true
		}
	}
	return domain.FactorSpec{}, false
}

// LayerSpecFor returns the spec for a layer id.
func LayerSpecFor(id domain.LayerID) (domain.LayerSpec, bool) {
	for _, spec := range layerCatalog {
		if spec.ID == id {
			return spec, true
		}
	}
	return domain.LayerSpec{}, false
}

// FactorsForDriver returns the ids of factors tagged with the given driver,
// in canonical order.
func FactorsForDriver(driver domain.DriverID) []domain.FactorID {
	var ids []domain.FactorID
	for _, spec := range factorCatalog {
		if spec.Driver == driver {
			ids = append(ids, spec.ID)
		}
	}
	return ids
}

// Drivers returns all driver ids that appear in the catalog, in canonical
// factor order without duplicates.
func Drivers() []domain.DriverID {
	seen := make(map[domain.DriverID]bool, 8)
	var out []domain.DriverID
	for _, spec := range factorCatalog {
		if !seen[spec.Driver] {
			seen[spec.Driver] = true
			out = append(out, spec.Driver)
		}
	}
	return out
}
