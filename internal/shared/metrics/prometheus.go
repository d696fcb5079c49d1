package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Ward business metrics
	admissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_total",
			Help: "Total number of patient admissions",
		},
		[]string{"department", "shift_type"},
	)

	dischargesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discharges_total",
			Help: "Total number of admission discharges",
		},
		[]string{"discharge_type"},
	)

	consultationsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultations_completed_total",
			Help: "Total number of completed consultations",
		},
		[]string{"specialty"},
	)

	rosterSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roster_size",
			Help: "Current number of entries in the active roster",
		},
		[]string{"kind"},
	)

	rosterRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roster_refreshes_total",
			Help: "Total number of active roster rebuilds",
		},
		[]string{"trigger"},
	)

	notesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notes_created_total",
			Help: "Total number of clinical notes appended",
		},
		[]string{"note_type"},
	)

	reportsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_generated_total",
			Help: "Total number of generated reports",
		},
		[]string{"report"},
	)

	notificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of follow-up notifications by outcome",
		},
		[]string{"channel", "status"},
	)

	hisRowsImportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "his_rows_imported_total",
			Help: "Total number of rows imported from the legacy HIS",
		},
		[]string{"kind"},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries created",
		},
	)

	// Database metrics
	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
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

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	// Replace UUIDs with placeholder
	// Simple heuristic: segments that look like UUIDs
	// In production, use proper path templates
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordAdmission records a patient admission
func RecordAdmission(department, shiftType string) {
	admissionsTotal.WithLabelValues(department, shiftType).Inc()
}

// RecordDischarge records an admission discharge
func RecordDischarge(dischargeType string) {
	dischargesTotal.WithLabelValues(dischargeType).Inc()
}

// RecordConsultationCompleted records a completed consultation
func RecordConsultationCompleted(specialty string) {
	consultationsCompletedTotal.WithLabelValues(specialty).Inc()
}

// RecordRosterSize records the current roster composition
func RecordRosterSize(admissions, consultations int) {
	rosterSize.WithLabelValues("admission").Set(float64(admissions))
	rosterSize.WithLabelValues("consultation").Set(float64(consultations))
}

// RecordRosterRefresh records a roster rebuild and what triggered it
// ("event" or "manual")
func RecordRosterRefresh(trigger string) {
	rosterRefreshesTotal.WithLabelValues(trigger).Inc()
}

// RecordNoteCreated records an appended clinical note
func RecordNoteCreated(noteType string) {
	notesCreatedTotal.WithLabelValues(noteType).Inc()
}

// RecordReportGenerated records a generated report
func RecordReportGenerated(report string) {
	reportsGeneratedTotal.WithLabelValues(report).Inc()
}

// RecordNotificationSent records a follow-up notification outcome
func RecordNotificationSent(channel, status string) {
	notificationsSentTotal.WithLabelValues(channel, status).Inc()
}

// RecordHISImport records rows imported from the legacy HIS
func RecordHISImport(kind string, count int) {
	hisRowsImportedTotal.WithLabelValues(kind).Add(float64(count))
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordDBConnections records active database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
