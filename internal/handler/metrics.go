package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/risk"
	"github.com/exposechain/exposechain/internal/threat"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exposechain_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exposechain_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exposechain_scans_total",
		Help: "Total scans by kind and final status.",
	}, []string{"kind", "status"})

	exposuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exposechain_exposures_total",
		Help: "Total scored exposures by severity.",
	}, []string{"severity"})

	threatReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exposechain_threat_reports_total",
		Help: "Total threat reports by category.",
	}, []string{"category"})

	collectorFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exposechain_collector_failures_total",
		Help: "Total collector runs that reported failure, by collector.",
	}, []string{"collector"})

	eventDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exposechain_event_deliveries_total",
		Help: "Total event publish attempts by result.",
	}, []string{"status"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
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

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordScan records a finished scan.
func RecordScan(kind model.ScanKind, status model.ScanStatus) {
	scansTotal.WithLabelValues(string(kind), string(status)).Inc()
}

// RecordExposure records a scored exposure.
func RecordExposure(severity risk.Severity) {
	exposuresTotal.WithLabelValues(string(severity)).Inc()
}

// RecordThreatReport records a threat analysis result.
func RecordThreatReport(category threat.Category) {
	threatReportsTotal.WithLabelValues(string(category)).Inc()
}

// RecordCollectorFailure records a failed collector run.
func RecordCollectorFailure(collector string) {
	collectorFailuresTotal.WithLabelValues(collector).Inc()
}

// RecordEventDelivery records an event publish attempt.
func RecordEventDelivery(success bool) {
	if success {
		eventDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		eventDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}
