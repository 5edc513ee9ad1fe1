// Package metrics provides Prometheus instrumentation for the Tresor back office.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tresor",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tresor",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts risk decisions by outcome and scorer mode.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tresor",
			Subsystem: "sentinel",
			Name:      "decisions_total",
			Help:      "Risk evaluation decisions by outcome and scorer operating mode.",
		},
		[]string{"decision", "mode"},
	)

	// FailSafeTotal counts evaluations that fell back to the fail-safe challenge.
	FailSafeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tresor",
			Subsystem: "sentinel",
			Name:      "failsafe_total",
			Help:      "Fail-safe CHALLENGE decisions by cause.",
		},
		[]string{"cause"},
	)

	// ReplayRejectionsTotal counts rejected telemetry batches by stream.
	ReplayRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tresor",
			Subsystem: "sentinel",
			Name:      "replay_rejections_total",
			Help:      "Telemetry batches rejected for non-increasing sequence numbers.",
		},
		[]string{"stream"},
	)

	// TelemetryBatchesTotal counts accepted telemetry batches by stream.
	TelemetryBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tresor",
			Subsystem: "sentinel",
			Name:      "telemetry_batches_total",
			Help:      "Accepted telemetry batches by stream.",
		},
		[]string{"stream"},
	)

	// ScorerRequestsTotal counts calls to the external scorer by result.
	ScorerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tresor",
			Subsystem: "sentinel",
			Name:      "scorer_requests_total",
			Help:      "External scorer evaluation calls by result (ok, error, circuit_open).",
		},
		[]string{"result"},
	)

	// ScorerDuration observes external scorer call latency.
	ScorerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tresor",
			Subsystem: "sentinel",
			Name:      "scorer_duration_seconds",
			Help:      "External scorer evaluation latency in seconds.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// ChallengesTotal counts challenge lifecycle events.
	ChallengesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tresor",
			Subsystem: "sentinel",
			Name:      "challenges_total",
			Help:      "Challenge lifecycle events (issued, resolved, cancelled, expired, retry_failed).",
		},
		[]string{"event"},
	)

	// PendingChallenges tracks currently pending challenges.
	PendingChallenges = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tresor",
		Subsystem: "sentinel",
		Name:      "pending_challenges",
		Help:      "Number of challenges awaiting resolution.",
	})

	// SessionsTerminatedTotal counts sessions terminated by a BLOCK decision.
	SessionsTerminatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tresor",
		Subsystem: "sentinel",
		Name:      "sessions_terminated_total",
		Help:      "Sessions terminated by policy.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tresor", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tresor", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tresor", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tresor", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		FailSafeTotal,
		ReplayRejectionsTotal,
		TelemetryBatchesTotal,
		ScorerRequestsTotal,
		ScorerDuration,
		ChallengesTotal,
		PendingChallenges,
		SessionsTerminatedTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
