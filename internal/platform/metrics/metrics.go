// Package metrics exposes the ledger's Prometheus instruments.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Append results.
const (
	AppendResultSuccess   = "success"
	AppendResultDuplicate = "duplicate_report_date"
	AppendResultConflict  = "concurrent_update_conflict"
	AppendResultRejected  = "rejected"
	AppendResultError     = "error"
)

const (
	VerificationResultValid  = "valid"
	VerificationResultBroken = "broken"
	VerificationResultError  = "error"
)

const (
	PublishResultSuccess = "success"
	PublishResultFailure = "failure"
	PublishResultGaveUp  = "gave_up"
)

const (
	LockResultObtained    = "obtained"
	LockResultNotObtained = "not_obtained"
	LockResultError       = "error"
)

var (
	appendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_ledger_appends_total",
		Help: "Progress report appends by result.",
	}, []string{"result"})

	appendRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progress_ledger_append_retries_total",
		Help: "Appends retried after losing the compare-and-append race.",
	})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_ledger_verifications_total",
		Help: "Chain verifications by result.",
	}, []string{"result"})

	verificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "progress_ledger_verification_duration_seconds",
		Help:    "Time spent verifying one project's chain.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_ledger_http_requests_total",
		Help: "HTTP requests by method, route and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "progress_ledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	outboxPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_ledger_outbox_published_total",
		Help: "Outbox messages handled by the poller, by result.",
	}, []string{"result"})

	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_ledger_alerts_total",
		Help: "Chain audit findings by kind.",
	}, []string{"kind"})

	auditLocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_ledger_audit_locks_total",
		Help: "Per-project audit lock acquisitions by result.",
	}, []string{"result"})
)

// RecordAppend counts one ReportProgress outcome.
func RecordAppend(result string) {
	appendsTotal.WithLabelValues(result).Inc()
}

// RecordAppendRetry counts one lost compare-and-append race.
func RecordAppendRetry() {
	appendRetriesTotal.Inc()
}

// ObserveVerification records one chain verification.
func ObserveVerification(result string, elapsed time.Duration) {
	verificationsTotal.WithLabelValues(result).Inc()
	verificationDuration.Observe(elapsed.Seconds())
}

func RecordOutboxPublish(result string) {
	outboxPublishedTotal.WithLabelValues(result).Inc()
}

func RecordAlert(kind string) {
	alertsTotal.WithLabelValues(kind).Inc()
}

func RecordAuditLock(result string) {
	auditLocksTotal.WithLabelValues(result).Inc()
}

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// NewServer serves /metrics and /health on port for processes without an HTTP API.
func NewServer(port int) *http.Server {
	r := gin.New()
	r.GET("/metrics", Handler())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
