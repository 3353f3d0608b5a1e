package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/strategichq/compass/internal/domain"
)

func newTestStore(t *testing.T) domain.ResultsStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "compass-repo-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(dir, "compass.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testFactors(sessionID string, score float64) []*domain.Factor {
	return []*domain.Factor{
		{
			ID: domain.FactorMarketSize, SessionID: sessionID, Name: "Market Size",
			RawScore: score * 100, NormalizedScore: score, Confidence: 0.7,
			Weight: 0.40, Driver: domain.DriverDemand, Layer: domain.LayerMarket,
			Steps: []domain.CalculationStep{{Label: "raw formula", Value: score * 100}},
		},
		{
			ID: domain.FactorMarketGrowth, SessionID: sessionID, Name: "Market Growth",
			RawScore: 40, NormalizedScore: 0.4, Confidence: 0.1,
			Weight: 0.35, Driver: domain.DriverDemand, Layer: domain.LayerMarket,
			Missing: true,
		},
	}
}

func TestFactorPersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		if err := store.SaveFactors(ctx, "session-001", testFactors("session-001", 0.8)); err != nil {
			t.Fatalf("failed to save factors: %v", err)
		}
		got, err := store.GetFactors(ctx, "session-001")
		if err != nil {
			t.Fatalf("failed to get factors: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 factors, got %d", len(got))
		}
		first := got[0]
		if first.ID != domain.FactorMarketSize || first.NormalizedScore != 0.8 {
			t.Errorf("unexpected first factor: %+v", first)
		}
		if first.SessionID != "session-001" {
			t.Errorf("session id not restored: %q", first.SessionID)
		}
		if len(first.Steps) != 1 || first.Steps[0].Label != "raw formula" {
			t.Errorf("calculation steps not restored: %+v", first.Steps)
		}
		if !got[1].Missing {
			t.Error("missing flag not restored")
		}
	})

	t.Run("UpsertReplacesRows", func(t *testing.T) {
		if err := store.SaveFactors(ctx, "session-002", testFactors("session-002", 0.5)); err != nil {
			t.Fatalf("failed to save factors: %v", err)
		}
		if err := store.SaveFactors(ctx, "session-002", testFactors("session-002", 0.9)); err != nil {
			t.Fatalf("failed to re-save factors: %v", err)
		}
		got, err := store.GetFactors(ctx, "session-002")
		if err != nil {
			t.Fatalf("failed to get factors: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("re-save duplicated rows: expected 2 factors, got %d", len(got))
		}
		if got[0].NormalizedScore != 0.9 {
			t.Errorf("re-save did not update score: got %v", got[0].NormalizedScore)
		}
	})

	t.Run("CanonicalOrder", func(t *testing.T) {
		// Saved out of order, with ids whose text collation (F10 < F2)
		// disagrees with the numeric one.
		ids := []domain.FactorID{"F28", "F10", "F2", "F9", "F1"}
		factors := make([]*domain.Factor, 0, len(ids))
		for _, id := range ids {
			factors = append(factors, &domain.Factor{
				ID: id, SessionID: "session-005", Name: string(id),
				NormalizedScore: 0.5, Confidence: 0.7, Weight: 0.1,
				Driver: domain.DriverDemand, Layer: domain.LayerMarket,
			})
		}
		if err := store.SaveFactors(ctx, "session-005", factors); err != nil {
			t.Fatalf("failed to save factors: %v", err)
		}
		got, err := store.GetFactors(ctx, "session-005")
		if err != nil {
			t.Fatalf("failed to get factors: %v", err)
		}
		want := []domain.FactorID{"F1", "F2", "F9", "F10", "F28"}
		if len(got) != len(want) {
			t.Fatalf("expected %d factors, got %d", len(want), len(got))
		}
		for i, f := range got {
			if f.ID != want[i] {
				t.Errorf("position %d: got %s, want %s", i, f.ID, want[i])
			}
		}
	})

	t.Run("SessionIsolation", func(t *testing.T) {
		got, err := store.GetFactors(ctx, "session-unknown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no factors for unknown session, got %d", len(got))
		}
	})

	t.Run("EmptySessionID", func(t *testing.T) {
		if err := store.SaveFactors(ctx, "", nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := store.GetFactors(ctx, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestLayerPersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	layers := []*domain.Layer{
		{ID: domain.LayerMarket, SessionID: "session-010", Name: "Market Attractiveness",
			Score: 0.72, Confidence: 0.6, Insights: []string{"strongest factor is Market Size"}},
		{ID: domain.LayerRisk, SessionID: "session-010", Name: "Risk Exposure",
			Score: 0.5, Confidence: 0.1, LowEvidence: true},
	}
	if err := store.SaveLayers(ctx, "session-010", layers); err != nil {
		t.Fatalf("failed to save layers: %v", err)
	}
	if err := store.SaveLayers(ctx, "session-010", layers); err != nil {
		t.Fatalf("failed to re-save layers: %v", err)
	}

	got, err := store.GetLayers(ctx, "session-010")
	if err != nil {
		t.Fatalf("failed to get layers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(got))
	}
	byID := map[domain.LayerID]*domain.Layer{}
	for _, l := range got {
		byID[l.ID] = l
	}
	if byID[domain.LayerMarket].Score != 0.72 {
		t.Errorf("unexpected market score: %v", byID[domain.LayerMarket].Score)
	}
	if len(byID[domain.LayerMarket].Insights) != 1 {
		t.Errorf("insights not restored: %+v", byID[domain.LayerMarket].Insights)
	}
	if !byID[domain.LayerRisk].LowEvidence {
		t.Error("low evidence flag not restored")
	}
}

func TestSegmentPersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	segments := []*domain.Segment{
		{ID: "seg-smb", SessionID: "session-020", Name: "SMB",
			AttractivenessScore: 0.45, MarketSizeEstimate: 2.0,
			RiskFactors: []string{"churn"}, Opportunities: []string{"self-serve"}},
		{ID: "seg-ent", SessionID: "session-020", Name: "Enterprise",
			AttractivenessScore: 0.81, MarketSizeEstimate: 12.0},
	}
	if err := store.SaveSegments(ctx, "session-020", segments); err != nil {
		t.Fatalf("failed to save segments: %v", err)
	}

	got, err := store.GetSegments(ctx, "session-020")
	if err != nil {
		t.Fatalf("failed to get segments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got))
	}
	// Ordered by attractiveness, best first.
	if got[0].ID != "seg-ent" {
		t.Errorf("expected seg-ent first, got %s", got[0].ID)
	}
	if len(got[1].RiskFactors) != 1 || got[1].RiskFactors[0] != "churn" {
		t.Errorf("risk factors not restored: %+v", got[1].RiskFactors)
	}
}

func TestBusinessCasePersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		if _, err := store.GetBusinessCase(ctx, "session-030"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpsertAndRead", func(t *testing.T) {
		score := &domain.BusinessCaseScore{
			SessionID:  "session-030",
			Score:      0.64,
			Confidence: 0.55,
			Band:       domain.ConfidenceBand{Lower: 0.52, Upper: 0.77},
			Components: map[string]float64{"Market Attractiveness": 0.1},
			UpdatedAt:  time.Now().UTC(),
		}
		if err := store.SaveBusinessCase(ctx, "session-030", score); err != nil {
			t.Fatalf("failed to save business case: %v", err)
		}

		score.Score = 0.70
		score.Degraded = true
		if err := store.SaveBusinessCase(ctx, "session-030", score); err != nil {
			t.Fatalf("failed to re-save business case: %v", err)
		}

		got, err := store.GetBusinessCase(ctx, "session-030")
		if err != nil {
			t.Fatalf("failed to get business case: %v", err)
		}
		if got.Score != 0.70 || !got.Degraded {
			t.Errorf("upsert did not replace the row: %+v", got)
		}
		if got.Band.Lower != 0.52 || got.Band.Upper != 0.77 {
			t.Errorf("band not restored: %+v", got.Band)
		}
		if got.Components["Market Attractiveness"] != 0.1 {
			t.Errorf("components not restored: %+v", got.Components)
		}
	})
}

func TestScenarioPersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		if _, err := store.GetScenarios(ctx, "session-040"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpsertAndRead", func(t *testing.T) {
		result := &domain.SimulationResult{
			SessionID:  "session-040",
			RunID:      "run-1",
			Seed:       42,
			Iterations: 10000,
			Discarded:  12,
			Mean:       0.61,
			StdDev:     0.08,
			Band:       domain.ConfidenceBand{Lower: 0.48, Upper: 0.75},
			Scenarios: []domain.Scenario{
				{Name: "Base", Probability: 1.0, RiskLevel: domain.RiskMedium,
					KPIs: map[string]float64{"compositeScore": 0.61}},
			},
			DurationMs: 120,
		}
		if err := store.SaveScenarios(ctx, "session-040", result); err != nil {
			t.Fatalf("failed to save scenarios: %v", err)
		}

		result.RunID = "run-2"
		result.Seed = 43
		if err := store.SaveScenarios(ctx, "session-040", result); err != nil {
			t.Fatalf("failed to re-save scenarios: %v", err)
		}

		got, err := store.GetScenarios(ctx, "session-040")
		if err != nil {
			t.Fatalf("failed to get scenarios: %v", err)
		}
		if got.RunID != "run-2" || got.Seed != 43 {
			t.Errorf("upsert did not replace the run: %+v", got)
		}
		if len(got.Scenarios) != 1 || got.Scenarios[0].Name != "Base" {
			t.Errorf("scenarios not restored: %+v", got.Scenarios)
		}
		if got.Scenarios[0].KPIs["compositeScore"] != 0.61 {
			t.Errorf("scenario KPIs not restored: %+v", got.Scenarios[0].KPIs)
		}
	})
}

func TestGetSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sessionID := "session-050"

	t.Run("FactorsOnly", func(t *testing.T) {
		if err := store.SaveFactors(ctx, sessionID, testFactors(sessionID, 0.6)); err != nil {
			t.Fatalf("failed to save factors: %v", err)
		}
		snap, err := store.GetSnapshot(ctx, sessionID)
		if err != nil {
			t.Fatalf("failed to get snapshot: %v", err)
		}
		if len(snap.Factors) != 2 {
			t.Errorf("expected 2 factors, got %d", len(snap.Factors))
		}
		if snap.BusinessCase != nil {
			t.Error("expected nil business case before compute")
		}
		if len(snap.Scenarios) != 0 {
			t.Error("expected no scenarios before simulation")
		}
	})

	t.Run("FullState", func(t *testing.T) {
		if err := store.SaveLayers(ctx, sessionID, []*domain.Layer{
			{ID: domain.LayerMarket, Name: "Market Attractiveness", Score: 0.7, Confidence: 0.6},
		}); err != nil {
			t.Fatalf("failed to save layers: %v", err)
		}
		if err := store.SaveBusinessCase(ctx, sessionID, &domain.BusinessCaseScore{
			SessionID: sessionID, Score: 0.66, Confidence: 0.5, UpdatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("failed to save business case: %v", err)
		}
		if err := store.SaveScenarios(ctx, sessionID, &domain.SimulationResult{
			SessionID: sessionID, RunID: "run-1", Seed: 7, Iterations: 100,
			Scenarios: []domain.Scenario{{Name: "Base", Probability: 1.0}},
		}); err != nil {
			t.Fatalf("failed to save scenarios: %v", err)
		}

		snap, err := store.GetSnapshot(ctx, sessionID)
		if err != nil {
			t.Fatalf("failed to get snapshot: %v", err)
		}
		if snap.BusinessCase == nil || snap.BusinessCase.Score != 0.66 {
			t.Errorf("business case not composed: %+v", snap.BusinessCase)
		}
		if len(snap.Layers) != 1 || len(snap.Scenarios) != 1 {
			t.Errorf("snapshot incomplete: %d layers, %d scenarios", len(snap.Layers), len(snap.Scenarios))
		}
	})
}

func TestRebind(t *testing.T) {
	sqlite := &SQLStore{driver: "sqlite"}
	if got := sqlite.rebind("SELECT ? WHERE x = ?"); got != "SELECT ? WHERE x = ?" {
		t.Errorf("sqlite queries must pass through unchanged, got %q", got)
	}
	postgres := &SQLStore{driver: "postgres"}
	if got := postgres.rebind("SELECT ? WHERE x = ?"); got != "SELECT $1 WHERE x = $2" {
		t.Errorf("postgres rebind produced %q", got)
	}
}
