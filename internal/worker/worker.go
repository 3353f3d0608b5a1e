// Package worker orchestrates asynchronous scoring and simulation runs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strategichq/compass/internal/baseline"
	"github.com/strategichq/compass/internal/domain"
	"github.com/strategichq/compass/internal/metrics"
	"github.com/strategichq/compass/internal/scoring"
	"github.com/strategichq/compass/internal/simulation"
)

// ErrClosed indicates the engine has been stopped.
var ErrClosed = errors.New("worker: engine closed")

// TaskKind distinguishes scoring from simulation tasks.
type TaskKind string

const (
	TaskScore      TaskKind = "score"
	TaskSimulation TaskKind = "simulation"
)

// Task is one in-flight asynchronous run. At most one task per session is
// active at a time: a newer submission supersedes and cancels the older one,
// and a superseded task never commits its results.
type Task struct {
	ID        string
	SessionID string
	Kind      TaskKind

	done   chan struct{}
	err    error
	result *domain.SimulationResult
	cancel context.CancelFunc
}

// Done is closed when the task finishes, fails or is superseded.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err reports the task outcome. Only valid after Done is closed.
func (t *Task) Err() error {
	return t.err
}

// Result returns the run output of a simulation task, nil for scoring tasks
// and failed runs. Only valid after Done is closed.
func (t *Task) Result() *domain.SimulationResult {
	return t.result
}

// Cancel aborts the task. Uncommitted work is discarded.
func (t *Task) Cancel() {
	t.cancel()
}

// Engine runs scoring and simulation tasks off the request path. Results are
// persisted only after a run computes fully, so a cancelled or superseded run
// leaves the previous committed state untouched.
type Engine struct {
	store     domain.ResultsStore
	cache     domain.Cache
	baselines *baseline.Service
	bus       domain.EventBus

	scorer     *scoring.FactorScorer
	aggregator *scoring.LayerAggregator
	composite  *scoring.BusinessCaseScorer
	segments   *scoring.SegmentScorer
	simulator  *simulation.Simulator

	metrics *metrics.Manager

	mu     sync.Mutex
	active map[string]*Task
	closed bool

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewEngine creates a worker engine. The metrics manager may be nil.
func NewEngine(
	store domain.ResultsStore,
	cache domain.Cache,
	bus domain.EventBus,
	scorer *scoring.FactorScorer,
	simulator *simulation.Simulator,
	cfg domain.ScoringConfig,
	m *metrics.Manager,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:      store,
		cache:      cache,
		baselines:  baseline.NewService(store, cache, m),
		bus:        bus,
		scorer:     scorer,
		aggregator: scoring.NewLayerAggregator(cfg),
		composite:  scoring.NewBusinessCaseScorer(),
		segments:   scoring.NewSegmentScorer(),
		simulator:  simulator,
		metrics:    m,
		active:     make(map[string]*Task),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Baselines exposes the engine's baseline service for read paths.
func (e *Engine) Baselines() *baseline.Service {
	return e.baselines
}

// IsRescoring reports whether a full scoring run is in flight for a session.
// Sensitivity reads use this to flag results computed off a baseline that is
// about to be replaced.
func (e *Engine) IsRescoring(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.active[sessionID]
	return ok && t.Kind == TaskScore
}

// SubmitScore queues a full scoring run for the bundle's session. Any run
// already in flight for that session is cancelled and superseded.
func (e *Engine) SubmitScore(bundle *domain.EvidenceBundle) (*Task, error) {
	if bundle == nil || bundle.SessionID == "" {
		return nil, fmt.Errorf("worker: evidence bundle with sessionID is required")
	}
	return e.submit(TaskScore, bundle.SessionID, func(ctx context.Context, _ *Task) error {
		return e.runScore(ctx, bundle)
	})
}

// SubmitSimulation queues a Monte Carlo run against the session's committed
// baseline. Iterations and seed of zero use the configured defaults. The run
// output is available from Task.Result once the task completes.
func (e *Engine) SubmitSimulation(sessionID string, iterations int, seed int64) (*Task, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("worker: sessionID is required")
	}
	return e.submit(TaskSimulation, sessionID, func(ctx context.Context, t *Task) error {
		result, err := e.runSimulation(ctx, sessionID, iterations, seed)
		if err != nil {
			return err
		}
		t.result = result
		return nil
	})
}

// submit installs a task as the session's single in-flight run and launches
// it. The previous task, if any, is cancelled first.
func (e *Engine) submit(kind TaskKind, sessionID string, fn func(ctx context.Context, t *Task) error) (*Task, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}

	if prev, ok := e.active[sessionID]; ok {
		prev.cancel()
		slog.Info("superseding in-flight task",
			"session_id", sessionID,
			"superseded_task", prev.ID,
			"superseded_kind", prev.Kind,
		)
	}

	taskCtx, taskCancel := context.WithCancel(e.ctx)
	task := &Task{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Kind:      kind,
		done:      make(chan struct{}),
		cancel:    taskCancel,
	}
	e.active[sessionID] = task
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		err := fn(taskCtx, task)
		taskCancel()

		e.mu.Lock()
		if e.active[sessionID] == task {
			delete(e.active, sessionID)
		}
		e.mu.Unlock()

		task.err = err
		close(task.done)
	}()

	return task, nil
}

// runScore computes the full pipeline for a bundle and commits the results.
// Persistence happens only after every stage has computed, so cancellation
// mid-pipeline leaves the prior committed state intact.
func (e *Engine) runScore(ctx context.Context, bundle *domain.EvidenceBundle) error {
	start := time.Now()
	sessionID := bundle.SessionID

	factors, err := e.scorer.Score(ctx, bundle)
	if err != nil {
		e.reportScoringFailure(ctx, sessionID, err)
		return err
	}

	layers := e.aggregator.Aggregate(sessionID, factors)
	segments := e.segments.Score(sessionID, bundle.Segments)
	businessCase := e.composite.Compute(sessionID, layers)

	// Cancellation check before the commit point.
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.store.SaveFactors(ctx, sessionID, factors); err != nil {
		e.reportScoringFailure(ctx, sessionID, err)
		return fmt.Errorf("worker: save factors: %w", err)
	}
	if err := e.store.SaveLayers(ctx, sessionID, layers); err != nil {
		e.reportScoringFailure(ctx, sessionID, err)
		return fmt.Errorf("worker: save layers: %w", err)
	}
	if err := e.store.SaveSegments(ctx, sessionID, segments); err != nil {
		e.reportScoringFailure(ctx, sessionID, err)
		return fmt.Errorf("worker: save segments: %w", err)
	}
	if err := e.store.SaveBusinessCase(ctx, sessionID, businessCase); err != nil {
		e.reportScoringFailure(ctx, sessionID, err)
		return fmt.Errorf("worker: save business case: %w", err)
	}

	e.baselines.Refresh(ctx, sessionID, &domain.Snapshot{
		SessionID:    sessionID,
		Factors:      factors,
		Layers:       layers,
		Segments:     segments,
		BusinessCase: businessCase,
	})

	missing := 0
	for _, f := range factors {
		if f.Missing {
			missing++
		}
	}
	if e.metrics != nil {
		e.metrics.RecordScoringRun(time.Since(start), missing)
	}

	payload, _ := json.Marshal(map[string]any{
		"sessionId":  sessionID,
		"score":      businessCase.Score,
		"confidence": businessCase.Confidence,
		"durationMs": time.Since(start).Milliseconds(),
	})
	if err := e.bus.Publish(ctx, domain.TopicScoringCompleted, payload); err != nil {
		slog.Error("failed to publish scoring completion",
			"session_id", sessionID,
			"error", err,
		)
	}

	slog.Info("scoring run committed",
		"session_id", sessionID,
		"score", businessCase.Score,
		"confidence", businessCase.Confidence,
		"missing_factors", missing,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// runSimulation executes a Monte Carlo run against the committed baseline
// and replaces the session's scenario set.
func (e *Engine) runSimulation(ctx context.Context, sessionID string, iterations int, seed int64) (*domain.SimulationResult, error) {
	start := time.Now()

	snap, err := e.baselines.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if seq, err := e.cache.IncrementRunSequence(ctx, sessionID, 24*time.Hour); err == nil {
			slog.Debug("simulation run sequence",
				"session_id", sessionID,
				"sequence", seq,
			)
		}
	}

	result, err := e.simulator.Run(ctx, simulation.Input{
		SessionID:  sessionID,
		Factors:    snap.Factors,
		Iterations: iterations,
		Seed:       seed,
	})
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.store.SaveScenarios(ctx, sessionID, result); err != nil {
		return nil, fmt.Errorf("worker: save scenarios: %w", err)
	}

	// Fold the empirical band back into the composite.
	if snap.BusinessCase != nil {
		snap.BusinessCase.Band = result.Band
		snap.BusinessCase.Degraded = result.Degraded
		snap.BusinessCase.UpdatedAt = time.Now().UTC()
		if err := e.store.SaveBusinessCase(ctx, sessionID, snap.BusinessCase); err != nil {
			return nil, fmt.Errorf("worker: update business case band: %w", err)
		}
	}

	snap.Scenarios = result.Scenarios
	e.baselines.Refresh(ctx, sessionID, snap)

	if e.metrics != nil {
		e.metrics.RecordSimulation(time.Since(start), result.Iterations, result.Discarded, result.Degraded)
	}

	payload, _ := json.Marshal(map[string]any{
		"sessionId":  sessionID,
		"runId":      result.RunID,
		"mean":       result.Mean,
		"degraded":   result.Degraded,
		"durationMs": result.DurationMs,
	})
	if err := e.bus.Publish(ctx, domain.TopicSimulationCompleted, payload); err != nil {
		slog.Error("failed to publish simulation completion",
			"session_id", sessionID,
			"error", err,
		)
	}

	slog.Info("simulation run committed",
		"session_id", sessionID,
		"run_id", result.RunID,
		"iterations", result.Iterations,
		"discarded", result.Discarded,
		"degraded", result.Degraded,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

func (e *Engine) reportScoringFailure(ctx context.Context, sessionID string, cause error) {
	if e.metrics != nil {
		e.metrics.RecordScoringFailure()
	}
	payload, _ := json.Marshal(map[string]any{
		"sessionId": sessionID,
		"error":     cause.Error(),
	})
	if err := e.bus.Publish(ctx, domain.TopicScoringFailed, payload); err != nil {
		slog.Error("failed to publish scoring failure",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// Start subscribes the engine to evidence-collected events so upstream
// collectors can trigger scoring without hitting the HTTP API.
func (e *Engine) Start() error {
	sub, err := e.bus.Subscribe(e.ctx, domain.TopicEvidenceCollected, e.handleEvidence)
	if err != nil {
		return fmt.Errorf("worker: subscribe: %w", err)
	}
	e.subscriptions = append(e.subscriptions, sub)

	slog.Info("worker engine started",
		"topic", domain.TopicEvidenceCollected,
	)
	return nil
}

// handleEvidence parses an evidence bundle message and queues a scoring run.
func (e *Engine) handleEvidence(ctx context.Context, msg *domain.Message) error {
	var bundle domain.EvidenceBundle
	if err := json.Unmarshal(msg.Payload, &bundle); err != nil {
		slog.Error("failed to parse evidence bundle",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if _, err := e.SubmitScore(&bundle); err != nil {
		slog.Error("failed to queue scoring run",
			"session_id", bundle.SessionID,
			"error", err,
		)
		return err
	}
	return nil
}

// Stop cancels all in-flight tasks and waits for them to drain.
func (e *Engine) Stop() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()

	for _, sub := range e.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	e.subscriptions = nil

	e.wg.Wait()

	slog.Info("worker engine stopped")
	return nil
}

// Stats returns engine statistics.
type Stats struct {
	ActiveTasks       int      `json:"activeTasks"`
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current engine statistics.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	activeCount := len(e.active)
	e.mu.Unlock()

	topics := make([]string, len(e.subscriptions))
	for i, sub := range e.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		ActiveTasks:       activeCount,
		SubscriptionCount: len(e.subscriptions),
		Topics:            topics,
	}
}
