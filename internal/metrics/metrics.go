package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "tesseract"
	subsystem = "bulk_upload"
)

var (
	rowsValidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rows_validated_total",
		Help:      "Staged rows resolved by validation, by resulting status.",
	}, []string{"status"})

	matchDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "match_decisions_total",
		Help:      "Catalog match decisions, by match type and outcome.",
	}, []string{"match_type", "matched"})

	rowsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rows_committed_total",
		Help:      "Rows processed by commit, by result.",
	}, []string{"result"})

	batchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "batches_finished_total",
		Help:      "Upload batches that reached a terminal status.",
	}, []string{"status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// RecordRowValidated counts a row leaving PENDING
func RecordRowValidated(status string) {
	rowsValidated.WithLabelValues(status).Inc()
}

// RecordMatch counts one matcher decision
func RecordMatch(matchType string, matched bool) {
	matchDecisions.WithLabelValues(matchType, strconv.FormatBool(matched)).Inc()
}

// RecordRowCommitted counts a committed ("committed") or failed ("failed") row
func RecordRowCommitted(result string) {
	rowsCommitted.WithLabelValues(result).Inc()
}

// RecordBatchFinished counts a batch reaching COMPLETED or CANCELLED
func RecordBatchFinished(status string) {
	batchesFinished.WithLabelValues(status).Inc()
}

// Middleware records request latency per matched route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus scrape endpoint
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
