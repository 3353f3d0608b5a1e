package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/strategichq/compass/internal/bus"
	"github.com/strategichq/compass/internal/cache"
	"github.com/strategichq/compass/internal/domain"
	"github.com/strategichq/compass/internal/repository"
	"github.com/strategichq/compass/internal/scoring"
	"github.com/strategichq/compass/internal/sensitivity"
	"github.com/strategichq/compass/internal/simulation"
	"github.com/strategichq/compass/internal/worker"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir, err := os.MkdirTemp("", "compass-api-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(dir, "compass.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	cfg := domain.ScoringConfig{
		Base:              0.2,
		VolumeWeight:      0.4,
		VolumeSaturation:  8,
		QualityWeight:     0.4,
		MaxConfidence:     0.99,
		MissingConfidence: 0.1,
		LowConfidence:     0.3,
	}
	scorer, err := scoring.NewFactorScorer(cfg)
	if err != nil {
		t.Fatalf("failed to create scorer: %v", err)
	}
	simulator := simulation.NewSimulator(domain.SimulationConfig{
		Iterations:       500,
		Spread:           0.25,
		DiscardThreshold: 0.05,
	})

	engine := worker.NewEngine(store, lru, eventBus, scorer, simulator, cfg, nil)
	t.Cleanup(func() { engine.Stop() })

	analyzer := sensitivity.NewAnalyzer(engine.Baselines(), engine)

	return NewServer(domain.ServerConfig{Host: "127.0.0.1", Port: 0}, store, lru, eventBus, engine, analyzer, nil, "test")
}

func doRequest(srv *Server, method, path string, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func scoreBody() string {
	return `{
		"signals": {
			"tam_usd_bn": 15.0,
			"growth_rate_pct": 20.0,
			"market_maturity_index": 0.4,
			"competitor_count": 10.0,
			"differentiation_index": 0.7,
			"strategic_fit_index": 0.8
		},
		"items": [
			{"factor": "F1", "source": "analyst", "quality": 0.8}
		],
		"segments": [
			{"segmentId": "seg-ent", "name": "Enterprise", "marketSizeUsdBn": 10.0, "growthRatePct": 20.0, "competitionIndex": 0.4}
		]
	}`
}

// waitForResults polls GET /results until the snapshot is committed.
func waitForResults(t *testing.T, srv *Server, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec := doRequest(srv, http.MethodGet, "/sessions/"+sessionID+"/results", "")
		if rec.Code == http.StatusOK {
			return rec
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("results for %s never became available", sessionID)
	return nil
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if body["status"] != "healthy" || body["version"] != "test" {
			t.Errorf("unexpected health body: %v", body)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/ready", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if body["ready"] != "true" {
			t.Errorf("unexpected ready body: %v", body)
		}
	})

	t.Run("NotReadyWhenStoreDown", func(t *testing.T) {
		dir, err := os.MkdirTemp("", "compass-ready-test-*")
		if err != nil {
			t.Fatalf("failed to create temp dir: %v", err)
		}
		t.Cleanup(func() { os.RemoveAll(dir) })

		store, err := repository.New(domain.RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(dir, "compass.db"),
		})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		store.Close()

		handler := NewHandler(store, nil, nil, nil, nil, nil, "test")
		rec := httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if body["ready"] != "false" {
			t.Errorf("unexpected ready body: %v", body)
		}
	})
}

func TestScoreEndpoint(t *testing.T) {
	srv := newTestServer(t)

	t.Run("Accepted", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/sessions/session-001/score", scoreBody())
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp TaskResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if resp.TaskID == "" || resp.SessionID != "session-001" || resp.Status != "queued" {
			t.Errorf("unexpected task response: %+v", resp)
		}
		if resp.Kind != "score" {
			t.Errorf("unexpected task kind: %s", resp.Kind)
		}
		waitForResults(t, srv, "session-001")
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/sessions/session-002/score", "{not json")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("NoEvidence", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/sessions/session-003/score", `{"signals": {}}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestSimulateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	t.Run("NegativeIterations", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/sessions/session-010/simulate", `{"iterations": -5}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("NoBaseline", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/sessions/session-010/simulate", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("FullPipeline", func(t *testing.T) {
		if rec := doRequest(srv, http.MethodPost, "/sessions/session-011/score", scoreBody()); rec.Code != http.StatusAccepted {
			t.Fatalf("score not accepted: %d", rec.Code)
		}
		waitForResults(t, srv, "session-011")

		rec := doRequest(srv, http.MethodPost, "/sessions/session-011/simulate", `{"iterations": 500, "seed": 42}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		// The response carries this run's scenarios and band directly.
		var result domain.SimulationResult
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("invalid simulation result JSON: %v", err)
		}
		if result.Seed != 42 || result.Iterations != 500 {
			t.Errorf("unexpected run parameters: %+v", result)
		}
		if len(result.Scenarios) == 0 {
			t.Fatal("scenarios missing from response")
		}
		if result.Band.Lower > result.Mean || result.Band.Upper < result.Mean {
			t.Errorf("band [%f, %f] does not contain mean %f",
				result.Band.Lower, result.Band.Upper, result.Mean)
		}

		// The committed snapshot reflects the same run.
		recResults := doRequest(srv, http.MethodGet, "/sessions/session-011/results", "")
		if recResults.Code != http.StatusOK {
			t.Fatalf("results read failed: %d", recResults.Code)
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(recResults.Body.Bytes(), &snap); err != nil {
			t.Fatalf("invalid snapshot JSON: %v", err)
		}
		if len(snap.Scenarios) != len(result.Scenarios) {
			t.Errorf("snapshot has %d scenarios, response had %d",
				len(snap.Scenarios), len(result.Scenarios))
		}
	})
}

func TestSensitivityEndpoint(t *testing.T) {
	srv := newTestServer(t)

	t.Run("NoBaseline", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/sessions/session-020/sensitivity",
			`{"adjustments": {"demand": 0.1}}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("Adjust", func(t *testing.T) {
		if rec := doRequest(srv, http.MethodPost, "/sessions/session-021/score", scoreBody()); rec.Code != http.StatusAccepted {
			t.Fatalf("score not accepted: %d", rec.Code)
		}
		waitForResults(t, srv, "session-021")

		rec := doRequest(srv, http.MethodPost, "/sessions/session-021/sensitivity",
			`{"adjustments": {"demand": 0.2, "pricing": -0.1}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var result domain.SensitivityResult
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if result.BaselineScore <= 0 {
			t.Errorf("missing baseline score: %+v", result)
		}
		if len(result.Elasticities) != 2 {
			t.Errorf("expected 2 elasticities, got %v", result.Elasticities)
		}
		if len(result.AffectedLayers) == 0 {
			t.Error("no affected layers reported")
		}
	})

	t.Run("InvalidDelta", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/sessions/session-021/sensitivity",
			`{"adjustments": {"demand": 0.9}}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/sessions/session-021/sensitivity",
			`{"adjustments": {"weather": 0.1}}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestResultsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	t.Run("NotFound", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/sessions/session-absent/results", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("CommittedSnapshot", func(t *testing.T) {
		if rec := doRequest(srv, http.MethodPost, "/sessions/session-030/score", scoreBody()); rec.Code != http.StatusAccepted {
			t.Fatalf("score not accepted: %d", rec.Code)
		}
		rec := waitForResults(t, srv, "session-030")

		var snap domain.Snapshot
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(snap.Factors) != domain.FactorCount {
			t.Errorf("expected %d factors, got %d", domain.FactorCount, len(snap.Factors))
		}
		if snap.BusinessCase == nil {
			t.Error("business case missing from snapshot")
		}
	})
}

func TestExportEndpoint(t *testing.T) {
	srv := newTestServer(t)

	if rec := doRequest(srv, http.MethodPost, "/sessions/session-040/score", scoreBody()); rec.Code != http.StatusAccepted {
		t.Fatalf("score not accepted: %d", rec.Code)
	}
	waitForResults(t, srv, "session-040")

	cases := []struct {
		format      string
		contentType string
	}{
		{"json", "application/json"},
		{"csv", "text/csv"},
		{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	}
	for _, tc := range cases {
		t.Run(tc.format, func(t *testing.T) {
			rec := doRequest(srv, http.MethodGet, fmt.Sprintf("/sessions/session-040/export?format=%s", tc.format), "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := rec.Header().Get("Content-Type"); got != tc.contentType {
				t.Errorf("expected content type %q, got %q", tc.contentType, got)
			}
			if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "session-040") {
				t.Errorf("unexpected content disposition: %q", cd)
			}
			if rec.Body.Len() == 0 {
				t.Error("empty export body")
			}
		})
	}

	t.Run("UnsupportedFormat", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/sessions/session-040/export?format=pdf", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/sessions/session-absent/export?format=json", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}
