package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for Skillfuse.
type Metrics struct {
	config MetricsConfig

	// Operation metrics
	operationsStarted   *prometheus.CounterVec
	operationsCompleted *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec

	// Merge metrics
	mergesPerformed *prometheus.CounterVec
	mergeConflicts  *prometheus.CounterVec

	// Resolution cache metrics
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheLoaded    prometheus.Counter
	cacheSkipped   prometheus.Counter

	// Skill metrics
	skillsApplied *prometheus.CounterVec
	hookRuns      *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	appliedSkills prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Operation metrics
		operationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_started_total",
				Help:      "Total number of mutating operations started",
			},
			[]string{"kind"},
		),
		operationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_completed_total",
				Help:      "Total number of mutating operations completed",
			},
			[]string{"kind", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of mutating operations in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "status"},
		),

		// Merge metrics
		mergesPerformed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merges_total",
				Help:      "Total number of three-way merges performed",
			},
			[]string{"skill", "outcome"},
		),
		mergeConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merge_conflicts_total",
				Help:      "Total number of merges that produced conflicts",
			},
			[]string{"skill"},
		),

		// Resolution cache metrics
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_cache_hits_total",
				Help:      "Total number of conflicts resolved from the replay memory",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_cache_misses_total",
				Help:      "Total number of conflicts with no cached resolution",
			},
		),
		cacheLoaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_cache_files_loaded_total",
				Help:      "Total number of cached resolution files preloaded",
			},
		),
		cacheSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_cache_files_skipped_total",
				Help:      "Total number of cached resolution files skipped on hash mismatch",
			},
		),

		// Skill metrics
		skillsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skills_applied_total",
				Help:      "Total number of skill applications during replays",
			},
			[]string{"skill", "status"},
		),
		hookRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_runs_total",
				Help:      "Total number of skill hook executions",
			},
			[]string{"hook", "status"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),

		// System metrics
		appliedSkills: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "applied_skills",
				Help:      "Current number of applied skills",
			},
		),
	}

	registry.MustRegister(
		m.operationsStarted,
		m.operationsCompleted,
		m.operationDuration,
		m.mergesPerformed,
		m.mergeConflicts,
		m.cacheHits,
		m.cacheMisses,
		m.cacheLoaded,
		m.cacheSkipped,
		m.skillsApplied,
		m.hookRuns,
		m.errorsByClass,
		m.appliedSkills,
	)

	return m, nil
}

// Operation Metrics

// RecordOperationStarted increments the counter for started operations.
func (m *Metrics) RecordOperationStarted(kind string) {
	if m.operationsStarted == nil {
		return
	}
	m.operationsStarted.WithLabelValues(kind).Inc()
}

// RecordOperation records a completed operation outcome.
func (m *Metrics) RecordOperation(kind string, success bool) {
	if m.operationsCompleted == nil {
		return
	}
	m.operationsCompleted.WithLabelValues(kind, statusLabel(success)).Inc()
}

// RecordOperationDuration records a completed operation with its duration.
func (m *Metrics) RecordOperationDuration(kind string, success bool, duration time.Duration) {
	if m.operationDuration == nil {
		return
	}
	m.operationDuration.WithLabelValues(kind, statusLabel(success)).Observe(duration.Seconds())
}

// Merge Metrics

// RecordMerge records a three-way merge attempt for a skill.
func (m *Metrics) RecordMerge(skill string, clean bool) {
	if m.mergesPerformed == nil {
		return
	}
	outcome := "clean"
	if !clean {
		outcome = "conflict"
		m.mergeConflicts.WithLabelValues(skill).Inc()
	}
	m.mergesPerformed.WithLabelValues(skill, outcome).Inc()
}

// Resolution Cache Metrics

// RecordCacheHit records a conflict resolved from the replay memory.
func (m *Metrics) RecordCacheHit() {
	if m.cacheHits == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordCacheMiss records a conflict with no cached resolution.
func (m *Metrics) RecordCacheMiss() {
	if m.cacheMisses == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RecordCacheLoad records the outcome of a resolution cache preload.
func (m *Metrics) RecordCacheLoad(loaded, skipped int) {
	if m.cacheLoaded == nil {
		return
	}
	m.cacheLoaded.Add(float64(loaded))
	m.cacheSkipped.Add(float64(skipped))
}

// Skill Metrics

// RecordSkillApplied records one skill application during a replay.
func (m *Metrics) RecordSkillApplied(skill string, success bool) {
	if m.skillsApplied == nil {
		return
	}
	m.skillsApplied.WithLabelValues(skill, statusLabel(success)).Inc()
}

// RecordHookRun records the execution of a skill hook.
func (m *Metrics) RecordHookRun(hook string, success bool) {
	if m.hookRuns == nil {
		return
	}
	m.hookRuns.WithLabelValues(hook, statusLabel(success)).Inc()
}

// Error Metrics

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// System Metrics

// SetAppliedSkills sets the current number of applied skills.
func (m *Metrics) SetAppliedSkills(count float64) {
	if m.appliedSkills == nil {
		return
	}
	m.appliedSkills.Set(count)
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
