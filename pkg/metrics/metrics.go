// Package metrics provides Prometheus metrics for the event pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds all Prometheus metrics for the service.
type Manager struct {
	namespace string
	subsystem string
	registry  prometheus.Registerer

	recordsFetched   *prometheus.CounterVec
	adapterFailures  *prometheus.CounterVec
	malformedRecords *prometheus.CounterVec

	eventsMerged     prometheus.Counter
	geocodeCacheHits prometheus.Counter
	geocodeLookups   prometheus.Counter
	geocodeFailures  prometheus.Counter
	runsTotal        prometheus.Counter

	eventsPublished prometheus.Gauge
	runDuration     prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry()

func init() {
	globalManager = NewManager(customRegistry)
}

// NewManager creates a metrics manager registered on the given registerer.
func NewManager(registry prometheus.Registerer) *Manager {
	m := &Manager{
		namespace: "mehfil",
		subsystem: "pipeline",
		registry:  registry,
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.recordsFetched = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "records_fetched_total",
			Help:      "Total number of raw records fetched, by source",
		},
		[]string{"source"},
	)

	m.adapterFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "adapter_failures_total",
			Help:      "Total number of failed source fetches, by source",
		},
		[]string{"source"},
	)

	m.malformedRecords = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "malformed_records_total",
			Help:      "Total number of records dropped during normalization, by source",
		},
		[]string{"source"},
	)

	m.eventsMerged = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_merged_total",
		Help:      "Total number of duplicate events folded into survivors",
	})

	m.geocodeCacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "geocode_cache_hits_total",
		Help:      "Total number of coordinate lookups answered locally",
	})

	m.geocodeLookups = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "geocode_lookups_total",
		Help:      "Total number of remote geocoding calls",
	})

	m.geocodeFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "geocode_failures_total",
		Help:      "Total number of geocoding calls without a usable result",
	})

	m.runsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Total number of completed pipeline runs",
	})

	m.eventsPublished = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_published",
		Help:      "Number of events published by the most recent run",
	})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_seconds",
		Help:      "Histogram of full pipeline run duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
}

// RecordFetched adds fetched record counts for a source.
func RecordFetched(source string, n int) {
	globalManager.recordsFetched.WithLabelValues(source).Add(float64(n))
}

// RecordAdapterFailure increments the failed-fetch counter for a source.
func RecordAdapterFailure(source string) {
	globalManager.adapterFailures.WithLabelValues(source).Inc()
}

// RecordMalformed increments the dropped-record counter for a source.
func RecordMalformed(source string) {
	globalManager.malformedRecords.WithLabelValues(source).Inc()
}

// RecordMerged adds the number of events folded during deduplication.
func RecordMerged(n int) {
	globalManager.eventsMerged.Add(float64(n))
}

// RecordGeocodeCacheHit increments the local-answer counter.
func RecordGeocodeCacheHit() {
	globalManager.geocodeCacheHits.Inc()
}

// RecordGeocodeLookup increments the remote-call counter.
func RecordGeocodeLookup() {
	globalManager.geocodeLookups.Inc()
}

// RecordGeocodeFailure increments the failed-lookup counter.
func RecordGeocodeFailure() {
	globalManager.geocodeFailures.Inc()
}

// RecordRun records one finished run with its duration and published count.
func RecordRun(duration time.Duration, published int) {
	globalManager.runsTotal.Inc()
	globalManager.runDuration.Observe(duration.Seconds())
	globalManager.eventsPublished.Set(float64(published))
}

// Registry returns the custom Prometheus registry used by our metrics.
func Registry() *prometheus.Registry {
	return customRegistry
}
