// Package metrics provides Prometheus metrics for the rating ledger.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Manager owns every ledger metric on one registry.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         *prometheus.Registry

	// Fold progress
	daysProcessed *prometheus.CounterVec
	daysSkipped   *prometheus.CounterVec
	ratingUpdates *prometheus.CounterVec

	// Window outcome
	windowPlayers     *prometheus.GaugeVec
	windowRunDuration *prometheus.HistogramVec
	windowLastSuccess *prometheus.GaugeVec

	// Ingestion
	feedEntries      *prometheus.CounterVec
	resultsIngested  prometheus.Counter
	duplicateResults *prometheus.CounterVec

	// Stores and errors
	storeOperationDuration *prometheus.HistogramVec
	errorsByComponent      *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "minirank",
		subsystem:        "ledger",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.daysProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "days_processed_total",
		Help: "Days folded into a window that had at least one result",
	}, []string{"window"})

	m.daysSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "days_skipped_total",
		Help: "Days in a window range with no valid results",
	}, []string{"window"})

	m.ratingUpdates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "rating_updates_total",
		Help: "Player ratings updated by the daily rating step",
	}, []string{"window"})

	m.windowPlayers = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "window_players",
		Help: "Players with at least one game in the last stored window",
	}, []string{"window"})

	m.windowRunDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    "window_run_duration_seconds",
		Help:    "Time to recompute and store one window",
		Buckets: m.histogramBuckets,
	}, []string{"window"})

	m.windowLastSuccess = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "window_last_success_unixtime",
		Help: "Unix time of the last successful window replace",
	}, []string{"window"})

	m.feedEntries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "feed_entries_total",
		Help: "Daily feed entries by normalization outcome",
	}, []string{"outcome"})

	m.resultsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "results_ingested_total",
		Help: "Daily results appended to the results store",
	})

	m.duplicateResults = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "duplicate_results_total",
		Help: "Results ignored because the player already had one that day",
	}, []string{"stage"})

	m.storeOperationDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    "store_operation_duration_seconds",
		Help:    "Latency of results and rating store operations",
		Buckets: m.histogramBuckets,
	}, []string{"backend", "operation"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "errors_total",
		Help: "Errors by component and kind",
	}, []string{"component", "kind"})
}

// Registry exposes the manager's registry.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Push sends every metric of the manager to a Pushgateway under job.
func (m *Manager) Push(ctx context.Context, url, job string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	return nil
}

// Fold progress

func RecordDayProcessed(window string) { globalManager.daysProcessed.WithLabelValues(window).Inc() }

func RecordDaySkipped(window string) { globalManager.daysSkipped.WithLabelValues(window).Inc() }

func RecordRatingUpdates(window string, players int) {
	globalManager.ratingUpdates.WithLabelValues(window).Add(float64(players))
}

// Window outcome

func UpdateWindowPlayers(window string, players int) {
	globalManager.windowPlayers.WithLabelValues(window).Set(float64(players))
}

func RecordWindowRun(window string, d time.Duration) {
	globalManager.windowRunDuration.WithLabelValues(window).Observe(d.Seconds())
}

func MarkWindowSuccess(window string, at time.Time) {
	globalManager.windowLastSuccess.WithLabelValues(window).Set(float64(at.Unix()))
}

// Ingestion

func RecordFeedEntries(outcome string, n int) {
	if n > 0 {
		globalManager.feedEntries.WithLabelValues(outcome).Add(float64(n))
	}
}

func RecordResultsIngested(n int) {
	if n > 0 {
		globalManager.resultsIngested.Add(float64(n))
	}
}

func RecordDuplicateResults(stage string, n int) {
	if n > 0 {
		globalManager.duplicateResults.WithLabelValues(stage).Add(float64(n))
	}
}

// Stores and errors

func ObserveStoreOperation(backend, operation string, d time.Duration) {
	globalManager.storeOperationDuration.WithLabelValues(backend, operation).Observe(d.Seconds())
}

func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the registry backing the package-level helpers.
func GetRegistry() *prometheus.Registry { return customRegistry }

// Push sends the package-level metrics to a Pushgateway. An empty url is a no-op.
func Push(ctx context.Context, url, job string) error {
	return globalManager.Push(ctx, url, job)
}
