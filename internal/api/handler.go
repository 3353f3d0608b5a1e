package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strategichq/compass/internal/baseline"
	"github.com/strategichq/compass/internal/domain"
	"github.com/strategichq/compass/internal/export"
	"github.com/strategichq/compass/internal/metrics"
	"github.com/strategichq/compass/internal/sensitivity"
	"github.com/strategichq/compass/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store    domain.ResultsStore
	cache    domain.Cache
	bus      domain.EventBus
	engine   *worker.Engine
	analyzer *sensitivity.Analyzer
	metrics  *metrics.Manager
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(store domain.ResultsStore, cache domain.Cache, bus domain.EventBus, engine *worker.Engine, analyzer *sensitivity.Analyzer, m *metrics.Manager, version string) *Handler {
	return &Handler{
		store:    store,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		analyzer: analyzer,
		metrics:  m,
		version:  version,
	}
}

// ScoreRequest is the request body for POST /sessions/{id}/score.
type ScoreRequest struct {
	Signals  map[string]float64       `json:"signals"`
	Items    []domain.EvidenceItem    `json:"items,omitempty"`
	Segments []domain.SegmentEvidence `json:"segments,omitempty"`
}

// TaskResponse acknowledges an accepted asynchronous run.
type TaskResponse struct {
	TaskID    string `json:"taskId"`
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	TraceID   string `json:"traceId,omitempty"`
}

// Score handles POST /sessions/{id}/score. Scoring runs asynchronously; the
// response acknowledges the queued task and completion is pushed on the bus.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Signals) == 0 && len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "evidence signals are required",
		})
		return
	}

	bundle := &domain.EvidenceBundle{
		SessionID: sessionID,
		Signals:   req.Signals,
		Items:     req.Items,
		Segments:  req.Segments,
	}

	task, err := h.engine.SubmitScore(bundle)
	if err != nil {
		slog.Error("failed to queue scoring run",
			"session_id", sessionID,
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "scoring engine unavailable",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, TaskResponse{
		TaskID:    task.ID,
		SessionID: sessionID,
		Kind:      string(task.Kind),
		Status:    "queued",
		TraceID:   GetTraceID(ctx),
	})
}

// SimulateRequest is the request body for POST /sessions/{id}/simulate.
type SimulateRequest struct {
	Iterations int   `json:"iterations,omitempty"`
	Seed       int64 `json:"seed,omitempty"`
}

// Simulate handles POST /sessions/{id}/simulate. The run executes on the
// worker engine and the handler awaits it, so the response carries the
// scenarios and confidence band of this run rather than a task ack.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	var req SimulateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	if req.Iterations < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "iterations must not be negative",
		})
		return
	}

	task, err := h.engine.SubmitSimulation(sessionID, req.Iterations, req.Seed)
	if err != nil {
		slog.Error("failed to queue simulation run",
			"session_id", sessionID,
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "simulation engine unavailable",
		})
		return
	}

	select {
	case <-ctx.Done():
		// The client went away; the run keeps executing and commits.
		return
	case <-task.Done():
	}

	if err := task.Err(); err != nil {
		switch {
		case errors.Is(err, baseline.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no committed baseline for session",
			})
		case errors.Is(err, context.Canceled):
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "simulation superseded by a newer run",
			})
		default:
			slog.Error("simulation run failed",
				"session_id", sessionID,
				"error", err,
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "simulation failed",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, task.Result())
}

// SensitivityRequest is the request body for POST /sessions/{id}/sensitivity.
type SensitivityRequest struct {
	Adjustments map[domain.DriverID]float64 `json:"adjustments"`
}

// Sensitivity handles POST /sessions/{id}/sensitivity. What-if adjustments
// are synchronous: they recompute against the committed baseline and never
// wait for an in-flight re-score.
func (h *Handler) Sensitivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	var req SensitivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.analyzer.Adjust(ctx, sessionID, req.Adjustments)
	if err != nil {
		switch {
		case errors.Is(err, sensitivity.ErrInvalidAdjustment):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		case errors.Is(err, sensitivity.ErrNoBaseline):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no committed baseline for session",
			})
		default:
			slog.Error("sensitivity adjustment failed",
				"session_id", sessionID,
				"error", err,
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "sensitivity analysis failed",
			})
		}
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSensitivity(result.StaleBaseline)
	}

	writeJSON(w, http.StatusOK, result)
}

// GetResults handles GET /sessions/{id}/results.
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	snap, err := h.engine.Baselines().Snapshot(ctx, sessionID)
	if err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no results for session",
			})
			return
		}
		slog.Error("failed to load results",
			"session_id", sessionID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load results",
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Export handles GET /sessions/{id}/export?format=json|csv|xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	snap, err := h.engine.Baselines().Snapshot(ctx, sessionID)
	if err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no results for session",
			})
			return
		}
		slog.Error("failed to load results for export",
			"session_id", sessionID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load results",
		})
		return
	}

	filename := fmt.Sprintf("compass-%s-%s.%s", sessionID, time.Now().UTC().Format("20060102"), format.Extension())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := export.Write(w, format, snap); err != nil {
		// Headers are already out; log and give up on the body.
		slog.Error("failed to write export",
			"session_id", sessionID,
			"format", format,
			"error", err,
		)
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check store health
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic. Unlike
// Health it fails hard: an unreachable store or cache means not ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeJSON writes a JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
