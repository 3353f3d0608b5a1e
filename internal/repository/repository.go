// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/strategichq/compass/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLStore implements domain.ResultsStore using database/sql.
// Works with both SQLite and PostgreSQL drivers. Every write has upsert
// semantics on the (session_id, entity_id) key, and batch writes run inside
// a transaction so a re-score replaces the previous rows atomically.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new results store based on configuration.
func New(cfg domain.RepositoryConfig) (domain.ResultsStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveFactors upserts the full factor batch for a session in one transaction.
func (s *SQLStore) SaveFactors(ctx context.Context, sessionID string, factors []*domain.Factor) error {
	if sessionID == "" {
		return fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO factor_calculations (
			session_id, factor_id, name, raw_score, normalized_score,
			confidence, weight, driver, layer, steps, missing, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, factor_id) DO UPDATE SET
			name = excluded.name,
			raw_score = excluded.raw_score,
			normalized_score = excluded.normalized_score,
			confidence = excluded.confidence,
			weight = excluded.weight,
			driver = excluded.driver,
			layer = excluded.layer,
			steps = excluded.steps,
			missing = excluded.missing,
			updated_at = excluded.updated_at
	`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, f := range factors {
			steps, _ := json.Marshal(f.Steps)
			if _, err := stmt.ExecContext(ctx,
				sessionID, f.ID, f.Name, f.RawScore, f.NormalizedScore,
				f.Confidence, f.Weight, f.Driver, f.Layer,
				string(steps), boolToInt(f.Missing), now,
			); err != nil {
				return fmt.Errorf("failed to save factor %s: %w", f.ID, err)
			}
		}
		return nil
	})
}

// GetFactors retrieves all factor calculations for a session.
func (s *SQLStore) GetFactors(ctx context.Context, sessionID string) ([]*domain.Factor, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	query := `
		SELECT factor_id, name, raw_score, normalized_score,
			   confidence, weight, driver, layer, steps, missing
		FROM factor_calculations
		WHERE session_id = ?
		ORDER BY factor_id
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var factors []*domain.Factor
	for rows.Next() {
		var f domain.Factor
		var steps string
		var missing int

		if err := rows.Scan(
			&f.ID, &f.Name, &f.RawScore, &f.NormalizedScore,
			&f.Confidence, &f.Weight, &f.Driver, &f.Layer,
			&steps, &missing,
		); err != nil {
			return nil, err
		}

		f.SessionID = sessionID
		f.Missing = missing == 1
		json.Unmarshal([]byte(steps), &f.Steps)
		factors = append(factors, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The column is TEXT, so SQL sorts F10 before F2. Re-sort on the
	// numeric suffix to restore canonical F1..F28 order.
	sort.SliceStable(factors, func(i, j int) bool {
		ni, iok := factorOrdinal(string(factors[i].ID))
		nj, jok := factorOrdinal(string(factors[j].ID))
		if iok && jok {
			return ni < nj
		}
		if iok != jok {
			return iok
		}
		return factors[i].ID < factors[j].ID
	})
	return factors, nil
}

func factorOrdinal(id string) (int, bool) {
	if len(id) < 2 || id[0] != 'F' {
		return 0, false
	}
	n, err := strconv.Atoi(id[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// SaveLayers upserts the full layer batch for a session in one transaction.
func (s *SQLStore) SaveLayers(ctx context.Context, sessionID string, layers []*domain.Layer) error {
	if sessionID == "" {
		return fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO layer_scores (
			session_id, layer_id, name, score, confidence, insights, low_evidence, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, layer_id) DO UPDATE SET
			name = excluded.name,
			score = excluded.score,
			confidence = excluded.confidence,
			insights = excluded.insights,
			low_evidence = excluded.low_evidence,
			updated_at = excluded.updated_at
	`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, l := range layers {
			insights, _ := json.Marshal(l.Insights)
			if _, err := stmt.ExecContext(ctx,
				sessionID, l.ID, l.Name, l.Score, l.Confidence,
				string(insights), boolToInt(l.LowEvidence), now,
			); err != nil {
				return fmt.Errorf("failed to save layer %s: %w", l.ID, err)
			}
		}
		return nil
	})
}

// GetLayers retrieves all layer scores for a session.
func (s *SQLStore) GetLayers(ctx context.Context, sessionID string) ([]*domain.Layer, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	query := `
		SELECT layer_id, name, score, confidence, insights, low_evidence
		FROM layer_scores
		WHERE session_id = ?
		ORDER BY layer_id
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var layers []*domain.Layer
	for rows.Next() {
		var l domain.Layer
		var insights string
		var lowEvidence int

		if err := rows.Scan(
			&l.ID, &l.Name, &l.Score, &l.Confidence, &insights, &lowEvidence,
		); err != nil {
			return nil, err
		}

		l.SessionID = sessionID
		l.LowEvidence = lowEvidence == 1
		json.Unmarshal([]byte(insights), &l.Insights)
		layers = append(layers, &l)
	}

	return layers, rows.Err()
}

// SaveSegments upserts the segment batch for a session in one transaction.
func (s *SQLStore) SaveSegments(ctx context.Context, sessionID string, segments []*domain.Segment) error {
	if sessionID == "" {
		return fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO segment_analysis (
			session_id, segment_id, name, attractiveness_score,
			risk_factors, opportunities, market_size_estimate, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, segment_id) DO UPDATE SET
			name = excluded.name,
			attractiveness_score = excluded.attractiveness_score,
			risk_factors = excluded.risk_factors,
			opportunities = excluded.opportunities,
			market_size_estimate = excluded.market_size_estimate,
			updated_at = excluded.updated_at
	`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, seg := range segments {
			riskFactors, _ := json.Marshal(seg.RiskFactors)
			opportunities, _ := json.Marshal(seg.Opportunities)
			if _, err := stmt.ExecContext(ctx,
				sessionID, seg.ID, seg.Name, seg.AttractivenessScore,
				string(riskFactors), string(opportunities),
				seg.MarketSizeEstimate, now,
			); err != nil {
				return fmt.Errorf("failed to save segment %s: %w", seg.ID, err)
			}
		}
		return nil
	})
}

// GetSegments retrieves all segment analyses for a session.
func (s *SQLStore) GetSegments(ctx context.Context, sessionID string) ([]*domain.Segment, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	query := `
		SELECT segment_id, name, attractiveness_score, risk_factors, opportunities, market_size_estimate
		FROM segment_analysis
		WHERE session_id = ?
		ORDER BY attractiveness_score DESC, segment_id
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []*domain.Segment
	for rows.Next() {
		var seg domain.Segment
		var riskFactors, opportunities string

		if err := rows.Scan(
			&seg.ID, &seg.Name, &seg.AttractivenessScore,
			&riskFactors, &opportunities, &seg.MarketSizeEstimate,
		); err != nil {
			return nil, err
		}

		seg.SessionID = sessionID
		json.Unmarshal([]byte(riskFactors), &seg.RiskFactors)
		json.Unmarshal([]byte(opportunities), &seg.Opportunities)
		segments = append(segments, &seg)
	}

	return segments, rows.Err()
}

// SaveBusinessCase upserts the composite score for a session.
func (s *SQLStore) SaveBusinessCase(ctx context.Context, sessionID string, score *domain.BusinessCaseScore) error {
	if sessionID == "" {
		return fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	components, _ := json.Marshal(score.Components)

	query := `
		INSERT INTO business_case_scores (
			session_id, score, band_lower, band_upper, components, confidence, degraded, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			score = excluded.score,
			band_lower = excluded.band_lower,
			band_upper = excluded.band_upper,
			components = excluded.components,
			confidence = excluded.confidence,
			degraded = excluded.degraded,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		sessionID, score.Score, score.Band.Lower, score.Band.Upper,
		string(components), score.Confidence, boolToInt(score.Degraded),
		score.UpdatedAt.UTC(),
	)
	return err
}

// GetBusinessCase retrieves the composite score for a session.
func (s *SQLStore) GetBusinessCase(ctx context.Context, sessionID string) (*domain.BusinessCaseScore, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	query := `
		SELECT score, band_lower, band_upper, components, confidence, degraded, updated_at
		FROM business_case_scores
		WHERE session_id = ?
	`

	var score domain.BusinessCaseScore
	var components string
	var degraded int

	err := s.db.QueryRowContext(ctx, s.rebind(query), sessionID).Scan(
		&score.Score, &score.Band.Lower, &score.Band.Upper,
		&components, &score.Confidence, &degraded, &score.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	score.SessionID = sessionID
	score.Degraded = degraded == 1
	json.Unmarshal([]byte(components), &score.Components)

	return &score, nil
}

// SaveScenarios upserts the simulation result for a session, replacing any
// prior run.
func (s *SQLStore) SaveScenarios(ctx context.Context, sessionID string, result *domain.SimulationResult) error {
	if sessionID == "" {
		return fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	scenarios, _ := json.Marshal(result.Scenarios)

	query := `
		INSERT INTO scenario_sets (
			session_id, run_id, seed, iterations, discarded, degraded,
			mean, std_dev, band_lower, band_upper, scenarios, duration_ms, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			run_id = excluded.run_id,
			seed = excluded.seed,
			iterations = excluded.iterations,
			discarded = excluded.discarded,
			degraded = excluded.degraded,
			mean = excluded.mean,
			std_dev = excluded.std_dev,
			band_lower = excluded.band_lower,
			band_upper = excluded.band_upper,
			scenarios = excluded.scenarios,
			duration_ms = excluded.duration_ms,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		sessionID, result.RunID, result.Seed, result.Iterations,
		result.Discarded, boolToInt(result.Degraded),
		result.Mean, result.StdDev, result.Band.Lower, result.Band.Upper,
		string(scenarios), result.DurationMs, time.Now().UTC(),
	)
	return err
}

// GetScenarios retrieves the latest simulation result for a session.
func (s *SQLStore) GetScenarios(ctx context.Context, sessionID string) (*domain.SimulationResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	query := `
		SELECT run_id, seed, iterations, discarded, degraded,
			   mean, std_dev, band_lower, band_upper, scenarios, duration_ms
		FROM scenario_sets
		WHERE session_id = ?
	`

	var result domain.SimulationResult
	var scenarios string
	var degraded int

	err := s.db.QueryRowContext(ctx, s.rebind(query), sessionID).Scan(
		&result.RunID, &result.Seed, &result.Iterations,
		&result.Discarded, &degraded,
		&result.Mean, &result.StdDev,
		&result.Band.Lower, &result.Band.Upper,
		&scenarios, &result.DurationMs,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result.SessionID = sessionID
	result.Degraded = degraded == 1
	if err := json.Unmarshal([]byte(scenarios), &result.Scenarios); err != nil {
		return nil, fmt.Errorf("failed to parse scenarios: %w", err)
	}

	return &result, nil
}

// GetSnapshot reads the full committed state for a session. Missing optional
// pieces (business case, scenarios) are omitted rather than failing the read.
func (s *SQLStore) GetSnapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	factors, err := s.GetFactors(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	layers, err := s.GetLayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	segments, err := s.GetSegments(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snap := &domain.Snapshot{
		SessionID: sessionID,
		Factors:   factors,
		Layers:    layers,
		Segments:  segments,
	}

	businessCase, err := s.GetBusinessCase(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	snap.BusinessCase = businessCase

	result, err := s.GetScenarios(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if result != nil {
		snap.Scenarios = result.Scenarios
	}

	return snap, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
