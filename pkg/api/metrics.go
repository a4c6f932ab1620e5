package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssargent/recordkit/pkg/codec"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the service. Each instance owns
// its registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec

	// Codec metrics
	codecRecordsTotal *prometheus.CounterVec
	layoutLoadsTotal  *prometheus.CounterVec
	archivedTotal     *prometheus.CounterVec
	replacementsTotal *prometheus.CounterVec

	// Health check metrics
	healthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recordkit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recordkit_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "recordkit_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recordkit_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		codecRecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recordkit_codec_records_total",
				Help: "Total number of records read or written",
			},
			[]string{"operation", "file_type", "record_type", "status"},
		),

		layoutLoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recordkit_layout_loads_total",
				Help: "Total number of layout lookups",
			},
			[]string{"status"},
		),

		archivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recordkit_archived_records_total",
				Help: "Total number of records written to the archive",
			},
			[]string{"record_type", "status"},
		),

		replacementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recordkit_character_replacements_total",
				Help: "Total number of replaced characters",
			},
			[]string{"type"},
		),

		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recordkit_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}
}

var _ codec.Observer = (*Metrics)(nil)

func status(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordProcessed counts one record handled by a formatter
func (m *Metrics) RecordProcessed(op codec.Operation, fileType, recordType string, err error) {
	if recordType == "" {
		recordType = "unclassified"
	}
	m.codecRecordsTotal.WithLabelValues(string(op), fileType, recordType, status(err == nil)).Inc()
}

// RecordLayoutLoad records a layout cache lookup
func (m *Metrics) RecordLayoutLoad(success bool) {
	m.layoutLoadsTotal.WithLabelValues(status(success)).Inc()
}

// RecordArchive records an archive write
func (m *Metrics) RecordArchive(recordType string, success bool) {
	m.archivedTotal.WithLabelValues(recordType, status(success)).Inc()
}

// RecordReplacements records substitutions made by a replacement type
func (m *Metrics) RecordReplacements(typeName string, n int) {
	m.replacementsTotal.WithLabelValues(typeName).Add(float64(n))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	m.authRequestsTotal.WithLabelValues(status(success)).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	m.healthChecksTotal.WithLabelValues(status(success)).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Create response writer wrapper to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware counts authentication outcomes of requests that
// carry an API key
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get(apiKeyHeader) != ""
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
