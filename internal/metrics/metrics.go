package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tracking service.
type Metrics struct {
	// Ingestion metrics
	EventsIngested     *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	IngestLatency      *prometheus.HistogramVec

	// Read-side metrics
	StatsRequests *prometheus.CounterVec
	StatsLatency  *prometheus.HistogramVec

	// Export metrics
	Exports          *prometheus.CounterVec
	ExportRecords    prometheus.Histogram
	ArtifactReleases *prometheus.CounterVec

	// System metrics
	RateLimitHits *prometheus.CounterVec
	GeoLookups    *prometheus.CounterVec
	StoreErrors   *prometheus.CounterVec
}

var (
	// DefaultMetrics is the global metrics instance
	DefaultMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		EventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Total tracking events accepted",
			},
			[]string{"action"},
		),
		ValidationFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Rejected tracking submissions by field",
			},
			[]string{"field"},
		),
		IngestLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_latency_seconds",
				Help:      "Event ingestion latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"status"},
		),

		StatsRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stats_requests_total",
				Help:      "Stats reads by kind",
			},
			[]string{"kind"},
		),
		StatsLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stats_latency_seconds",
				Help:      "Stats recompute latency in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
			},
			[]string{"kind"},
		),

		Exports: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Export requests by format and outcome",
			},
			[]string{"format", "status"},
		),
		ExportRecords: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_records",
				Help:      "Records per export artifact",
				Buckets:   []float64{10, 100, 1000, 5000, 10000},
			},
		),
		ArtifactReleases: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_releases_total",
				Help:      "Export artifact cleanup outcomes",
			},
			[]string{"status"},
		),

		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint", "ip"},
		),
		GeoLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geo_lookups_total",
				Help:      "GeoIP enrichment lookups by outcome",
			},
			[]string{"status"},
		),
		StoreErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Event store failures by operation",
			},
			[]string{"operation"},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordIngest records an accepted event.
func (m *Metrics) RecordIngest(action string, latency time.Duration) {
	m.EventsIngested.WithLabelValues(action).Inc()
	m.IngestLatency.WithLabelValues("accepted").Observe(latency.Seconds())
}

// RecordValidationFailure records a rejected submission.
func (m *Metrics) RecordValidationFailure(fields []string, latency time.Duration) {
	for _, f := range fields {
		m.ValidationFailures.WithLabelValues(f).Inc()
	}
	m.IngestLatency.WithLabelValues("rejected").Observe(latency.Seconds())
}

// RecordStats records a stats read.
func (m *Metrics) RecordStats(kind string, latency time.Duration) {
	m.StatsRequests.WithLabelValues(kind).Inc()
	m.StatsLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// RecordExport records an export attempt.
func (m *Metrics) RecordExport(format, status string, records int) {
	m.Exports.WithLabelValues(format, status).Inc()
	if records > 0 {
		m.ExportRecords.Observe(float64(records))
	}
}

// RecordArtifactRelease records an artifact cleanup outcome.
func (m *Metrics) RecordArtifactRelease(status string) {
	m.ArtifactReleases.WithLabelValues(status).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint, ip string) {
	m.RateLimitHits.WithLabelValues(endpoint, ip).Inc()
}

// RecordGeoLookup records a geo enrichment attempt.
func (m *Metrics) RecordGeoLookup(status string) {
	m.GeoLookups.WithLabelValues(status).Inc()
}

// RecordStoreError records an event store failure.
func (m *Metrics) RecordStoreError(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}
