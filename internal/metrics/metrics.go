package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the sentinel service.
type Metrics struct {
	// Guard metrics
	injectionDetections *prometheus.CounterVec
	loginFailures       prometheus.Counter
	bansIssued          prometheus.Counter
	captchasIssued      prometheus.Counter

	// Session metrics
	sessionsInitialized prometheus.Counter
	sessionValidations  *prometheus.CounterVec
	sessionRotations    prometheus.Counter
	incidentsRaised     *prometheus.CounterVec

	// Governance metrics
	exportRequests    *prometheus.CounterVec
	exportDecisions   *prometheus.CounterVec
	downloadsLogged   *prometheus.CounterVec
	retentionDeleted  *prometheus.CounterVec
	suspiciousFlagged prometheus.Counter

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		injectionDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_injection_detections_total",
				Help: "Total number of inputs flagged by the injection detector, by pattern category",
			},
			[]string{"category"},
		),

		loginFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_login_failures_total",
				Help: "Total number of recorded failed login attempts",
			},
		),

		bansIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_bans_issued_total",
				Help: "Total number of identity bans issued by the login throttle",
			},
		),

		captchasIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_captchas_issued_total",
				Help: "Total number of CAPTCHA challenges issued",
			},
		),

		sessionsInitialized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_sessions_initialized_total",
				Help: "Total number of sessions registered with the integrity monitor",
			},
		),

		sessionValidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_session_validations_total",
				Help: "Total number of session validations by outcome",
			},
			[]string{"outcome"},
		),

		sessionRotations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_session_rotations_total",
				Help: "Total number of session id rotations",
			},
		),

		incidentsRaised: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_incidents_total",
				Help: "Total number of propagation incidents by kind and severity",
			},
			[]string{"kind", "severity"},
		),

		exportRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_export_requests_total",
				Help: "Total number of export requests by classification and initial status",
			},
			[]string{"classification", "status"},
		),

		exportDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_export_decisions_total",
				Help: "Total number of export approvals and rejections",
			},
			[]string{"status"},
		),

		downloadsLogged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_downloads_logged_total",
				Help: "Total number of logged downloads by classification",
			},
			[]string{"classification"},
		),

		retentionDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_retention_deleted_rows_total",
				Help: "Total number of rows deleted by retention sweeps, by table",
			},
			[]string{"table"},
		),

		suspiciousFlagged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_suspicious_downloads_total",
				Help: "Total number of suspicious download-pattern detections",
			},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.injectionDetections,
		m.loginFailures,
		m.bansIssued,
		m.captchasIssued,
		m.sessionsInitialized,
		m.sessionValidations,
		m.sessionRotations,
		m.incidentsRaised,
		m.exportRequests,
		m.exportDecisions,
		m.downloadsLogged,
		m.retentionDeleted,
		m.suspiciousFlagged,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// RecordInjectionDetection records one flagged input.
func (m *Metrics) RecordInjectionDetection(category string) {
	m.injectionDetections.WithLabelValues(category).Inc()
}

// RecordLoginFailure records one failed login attempt.
func (m *Metrics) RecordLoginFailure() {
	m.loginFailures.Inc()
}

// RecordBanIssued records one identity ban.
func (m *Metrics) RecordBanIssued() {
	m.bansIssued.Inc()
}

// RecordCaptchaIssued records one issued CAPTCHA challenge.
func (m *Metrics) RecordCaptchaIssued() {
	m.captchasIssued.Inc()
}

// RecordSessionInitialized records one registered session.
func (m *Metrics) RecordSessionInitialized() {
	m.sessionsInitialized.Inc()
}

// RecordSessionValidation records one validation by outcome
// (valid, rotated, or the invalidity reason).
func (m *Metrics) RecordSessionValidation(outcome string) {
	m.sessionValidations.WithLabelValues(outcome).Inc()
}

// RecordSessionRotation records one session id rotation.
func (m *Metrics) RecordSessionRotation() {
	m.sessionRotations.Inc()
}

// RecordIncident records one propagation incident.
func (m *Metrics) RecordIncident(kind, severity string) {
	m.incidentsRaised.WithLabelValues(kind, severity).Inc()
}

// RecordExportRequest records one export request.
func (m *Metrics) RecordExportRequest(classification, status string) {
	m.exportRequests.WithLabelValues(classification, status).Inc()
}

// RecordExportDecision records one approve/reject decision.
func (m *Metrics) RecordExportDecision(status string) {
	m.exportDecisions.WithLabelValues(status).Inc()
}

// RecordDownload records one logged download.
func (m *Metrics) RecordDownload(classification string) {
	m.downloadsLogged.WithLabelValues(classification).Inc()
}

// RecordRetentionDeleted records rows deleted by one retention sweep.
func (m *Metrics) RecordRetentionDeleted(table string, rows int64) {
	m.retentionDeleted.WithLabelValues(table).Add(float64(rows))
}

// RecordSuspiciousDownloads records one suspicious-pattern detection.
func (m *Metrics) RecordSuspiciousDownloads() {
	m.suspiciousFlagged.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and duration per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
