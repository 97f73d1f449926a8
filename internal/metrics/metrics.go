// Package metrics defines the Prometheus collectors of the scanner and the
// registry. A nil collector set is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Scanner tracks the plate acquisition pipeline.
type Scanner struct {
	Attempts            *prometheus.CounterVec
	SkippedTicks        prometheus.Counter
	RecognitionDuration prometheus.Histogram
	Lookups             *prometheus.CounterVec
	CacheResults        *prometheus.CounterVec
}

// NewScanner registers the scanner collectors on reg.
func NewScanner(reg prometheus.Registerer) *Scanner {
	f := promauto.With(reg)
	return &Scanner{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "platescan_attempts_total",
			Help: "Scan attempts by mode and outcome",
		}, []string{"mode", "outcome"}),
		SkippedTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "platescan_skipped_ticks_total",
			Help: "Auto-scan ticks skipped because an attempt was still running",
		}),
		RecognitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "platescan_recognition_duration_seconds",
			Help:    "Time spent in the text recognition engine",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "platescan_registry_lookups_total",
			Help: "Registry lookups by result (match, miss, error)",
		}, []string{"result"}),
		CacheResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "platescan_lookup_cache_total",
			Help: "Lookup cache reads by result (hit, miss, error)",
		}, []string{"result"}),
	}
}

// ObserveAttempt counts a finished attempt.
func (m *Scanner) ObserveAttempt(mode, outcome string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(mode, outcome).Inc()
}

// IncSkippedTick counts a tick dropped by the busy guard.
func (m *Scanner) IncSkippedTick() {
	if m == nil {
		return
	}
	m.SkippedTicks.Inc()
}

// ObserveRecognition records engine latency.
func (m *Scanner) ObserveRecognition(d time.Duration) {
	if m == nil {
		return
	}
	m.RecognitionDuration.Observe(d.Seconds())
}

// ObserveLookup counts a registry lookup result.
func (m *Scanner) ObserveLookup(result string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(result).Inc()
}

// ObserveCache counts a cache read result.
func (m *Scanner) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheResults.WithLabelValues(result).Inc()
}

// Registry tracks the registry service.
type Registry struct {
	VehiclesCreated prometheus.Counter
	VehiclesDeleted prometheus.Counter
	QueryDuration   *prometheus.HistogramVec
}

// NewRegistry registers the registry collectors on reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	return &Registry{
		VehiclesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_vehicles_created_total",
			Help: "Vehicles registered",
		}),
		VehiclesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_vehicles_deleted_total",
			Help: "Vehicles removed",
		}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_query_duration_seconds",
			Help:    "Duration of registry store operations",
			Buckets: latencyBuckets,
		}, []string{"operation"}),
	}
}

// IncCreated counts a registration.
func (m *Registry) IncCreated() {
	if m == nil {
		return
	}
	m.VehiclesCreated.Inc()
}

// IncDeleted counts a removal.
func (m *Registry) IncDeleted() {
	if m == nil {
		return
	}
	m.VehiclesDeleted.Inc()
}

// ObserveQuery records a store operation; call with the start time.
func (m *Registry) ObserveQuery(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
