package api

import (
	"strconv"
	"time"

	syncer "github.com/AgentRank/agentrank-backend/internal/sync"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentrank",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "agentrank", Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	syncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "agentrank", Name: "sync_runs_total", Help: "Orchestrated sync runs by outcome"},
		[]string{"outcome"},
	)
	syncRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "agentrank", Name: "sync_rows_total", Help: "Rows upserted by sync runs"},
	)
	syncSourceErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "agentrank", Name: "sync_source_errors_total", Help: "Source-level sync failures"},
	)
	attestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "agentrank", Name: "attest_requests_total", Help: "Attestation calls by outcome and provenance"},
		[]string{"outcome", "provenance"},
	)
)

func init() {
	prometheus.MustRegister(reqDuration, reqTotal, syncRunsTotal, syncRowsTotal, syncSourceErrors, attestTotal)
}

// MetricsMiddleware records request rate and latency per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		reqDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		reqTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

func recordSyncRun(sum syncer.Summary) {
	outcome := "ok"
	if !sum.Success {
		outcome = "deadline"
	} else if sum.ErrorCount > 0 {
		outcome = "partial"
	}
	syncRunsTotal.WithLabelValues(outcome).Inc()
	syncRowsTotal.Add(float64(sum.Synced))
	syncSourceErrors.Add(float64(sum.ErrorCount))
}

func recordAttest(outcome, provenance string) {
	attestTotal.WithLabelValues(outcome, provenance).Inc()
}
