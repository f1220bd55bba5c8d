package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chronicleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronicle_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	chronicleRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chronicle_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	chronicleLoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronicle_logins_total",
		Help: "Total login attempts by method (password, social, session) and result.",
	}, []string{"method", "result"})

	chronicleTokensIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronicle_tokens_issued_total",
		Help: "Total credentials issued by kind (access, refresh, session).",
	}, []string{"kind"})

	chronicleVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronicle_verifications_total",
		Help: "Total verification token consumptions by purpose and result.",
	}, []string{"purpose", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request
// metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		chronicleRequestsTotal.WithLabelValues(method, path, status).Inc()
		chronicleRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLogin records a login attempt outcome.
func RecordLogin(method string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	chronicleLoginsTotal.WithLabelValues(method, result).Inc()
}

// RecordTokenIssued records an issued credential.
func RecordTokenIssued(kind string) {
	chronicleTokensIssuedTotal.WithLabelValues(kind).Inc()
}

// RecordVerification records a verification token consumption outcome.
func RecordVerification(purpose string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	chronicleVerificationsTotal.WithLabelValues(purpose, result).Inc()
}
