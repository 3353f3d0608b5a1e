// Package metrics provides Prometheus metrics for the Compass scoring engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "compass"

// Manager holds all Prometheus metrics for the service. A dedicated registry
// keeps the default Go collector noise out of the scrape.
type Manager struct {
	registry *prometheus.Registry

	// Scoring pipeline
	scoringRuns     prometheus.Counter
	scoringFailures prometheus.Counter
	scoringDuration prometheus.Histogram
	factorsMissing  prometheus.Counter

	// Simulation
	simulationRuns       prometheus.Counter
	simulationDegraded   prometheus.Counter
	discardedIterations  prometheus.Counter
	simulationDuration   prometheus.Histogram
	simulationIterations prometheus.Histogram

	// Sensitivity
	sensitivityRequests prometheus.Counter
	staleBaselineReads  prometheus.Counter

	// Cache
	snapshotCacheHits   prometheus.Counter
	snapshotCacheMisses prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager with its own registry.
func NewManager() *Manager {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Manager{
		registry: reg,

		scoringRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_runs_total",
			Help:      "Total completed scoring runs.",
		}),
		scoringFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_failures_total",
			Help:      "Total failed scoring runs.",
		}),
		scoringDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Wall time of a full scoring run.",
			Buckets:   prometheus.DefBuckets,
		}),
		factorsMissing: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factors_missing_total",
			Help:      "Factors that fell back to the neutral default for lack of evidence.",
		}),

		simulationRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_runs_total",
			Help:      "Total completed Monte Carlo runs.",
		}),
		simulationDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_degraded_total",
			Help:      "Runs flagged degraded by discard rate.",
		}),
		discardedIterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_discarded_iterations_total",
			Help:      "Iterations discarded for non-finite composites.",
		}),
		simulationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_duration_seconds",
			Help:      "Wall time of a Monte Carlo run.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		simulationIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_iterations",
			Help:      "Iteration count per run.",
			Buckets:   []float64{1000, 5000, 10000, 50000, 100000},
		}),

		sensitivityRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensitivity_requests_total",
			Help:      "Total sensitivity adjustments served.",
		}),
		staleBaselineReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensitivity_stale_baseline_total",
			Help:      "Sensitivity reads served while a re-score was in flight.",
		}),

		snapshotCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_hits_total",
			Help:      "Baseline snapshot cache hits.",
		}),
		snapshotCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_misses_total",
			Help:      "Baseline snapshot cache misses.",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordScoringRun records one completed scoring run.
func (m *Manager) RecordScoringRun(duration time.Duration, missingFactors int) {
	m.scoringRuns.Inc()
	m.scoringDuration.Observe(duration.Seconds())
	m.factorsMissing.Add(float64(missingFactors))
}

// RecordScoringFailure records a failed scoring run.
func (m *Manager) RecordScoringFailure() {
	m.scoringFailures.Inc()
}

// RecordSimulation records one Monte Carlo run.
func (m *Manager) RecordSimulation(duration time.Duration, iterations, discarded int, degraded bool) {
	m.simulationRuns.Inc()
	m.simulationDuration.Observe(duration.Seconds())
	m.simulationIterations.Observe(float64(iterations))
	m.discardedIterations.Add(float64(discarded))
	if degraded {
		m.simulationDegraded.Inc()
	}
}

// RecordSensitivity records one sensitivity request.
func (m *Manager) RecordSensitivity(stale bool) {
	m.sensitivityRequests.Inc()
	if stale {
		m.staleBaselineReads.Inc()
	}
}

// RecordSnapshotCache records a snapshot cache lookup.
func (m *Manager) RecordSnapshotCache(hit bool) {
	if hit {
		m.snapshotCacheHits.Inc()
	} else {
		m.snapshotCacheMisses.Inc()
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *Manager) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the scrape endpoint for this manager's registry.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
