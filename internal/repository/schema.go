package repository

// Schema definitions for the Compass results database.
// Compatible with both SQLite and PostgreSQL.

const schemaFactorCalculations = `
CREATE TABLE IF NOT EXISTS factor_calculations (
    session_id TEXT NOT NULL,
    factor_id TEXT NOT NULL,
    name TEXT NOT NULL,
    raw_score REAL NOT NULL,
    normalized_score REAL NOT NULL,
    confidence REAL NOT NULL,
    weight REAL NOT NULL,
    driver TEXT NOT NULL,
    layer TEXT NOT NULL,
    steps TEXT NOT NULL,
    missing INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, factor_id)
);

CREATE INDEX IF NOT EXISTS idx_factor_calculations_session ON factor_calculations(session_id);
CREATE INDEX IF NOT EXISTS idx_factor_calculations_layer ON factor_calculations(session_id, layer);
`

const schemaLayerScores = `
CREATE TABLE IF NOT EXISTS layer_scores (
    session_id TEXT NOT NULL,
    layer_id TEXT NOT NULL,
    name TEXT NOT NULL,
    score REAL NOT NULL,
    confidence REAL NOT NULL,
    insights TEXT NOT NULL,
    low_evidence INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, layer_id)
);

CREATE INDEX IF NOT EXISTS idx_layer_scores_session ON layer_scores(session_id);
`

const schemaSegmentAnalysis = `
CREATE TABLE IF NOT EXISTS segment_analysis (
    session_id TEXT NOT NULL,
    segment_id TEXT NOT NULL,
    name TEXT NOT NULL,
    attractiveness_score REAL NOT NULL,
    risk_factors TEXT NOT NULL,
    opportunities TEXT NOT NULL,
    market_size_estimate REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, segment_id)
);

CREATE INDEX IF NOT EXISTS idx_segment_analysis_session ON segment_analysis(session_id);
`

const schemaBusinessCaseScores = `
CREATE TABLE IF NOT EXISTS business_case_scores (
    session_id TEXT PRIMARY KEY,
    score REAL NOT NULL,
    band_lower REAL NOT NULL,
    band_upper REAL NOT NULL,
    components TEXT NOT NULL,
    confidence REAL NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL
);
`

// schemaScenarioSets stores one simulation result per session. Re-running a
// simulation replaces the prior set rather than accumulating history.
const schemaScenarioSets = `
CREATE TABLE IF NOT EXISTS scenario_sets (
    session_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    seed BIGINT NOT NULL,
    iterations INTEGER NOT NULL,
    discarded INTEGER NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    mean REAL NOT NULL,
    std_dev REAL NOT NULL,
    band_lower REAL NOT NULL,
    band_upper REAL NOT NULL,
    scenarios TEXT NOT NULL,
    duration_ms BIGINT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaFactorCalculations,
		schemaLayerScores,
		schemaSegmentAnalysis,
		schemaBusinessCaseScores,
		schemaScenarioSets,
	}
}
