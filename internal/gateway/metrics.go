package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drawbridge-sh/drawbridge/internal/agents"
)

// metrics holds the gateway's Prometheus collectors. Each Gateway owns
// its own registry, so tests can build instances freely without
// colliding on the global default.
type metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	toolExecutions  *prometheus.CounterVec
	secretHits      *prometheus.CounterVec
}

// Tool execution outcomes.
const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeBlocked = "blocked"
)

func newMetrics(store *agents.Store) *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drawbridge",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "path", "code"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drawbridge",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	m.toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drawbridge",
			Name:      "tool_executions_total",
			Help:      "Tool invocations by tool and outcome (ok, failed, blocked).",
		},
		[]string{"tool", "outcome"},
	)

	m.secretHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drawbridge",
			Name:      "secret_hits_total",
			Help:      "Secret scanner hits by pattern name.",
		},
		[]string{"pattern"},
	)

	agentsRunning := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "drawbridge",
			Name:      "agents_running",
			Help:      "Agents currently recorded as running.",
		},
		func() float64 { return float64(store.RunningCount()) },
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.toolExecutions,
		m.secretHits,
		agentsRunning,
	)
	return m
}

// observe records per-request metrics. The route pattern is read off the
// request after the mux has dispatched it (the mux fills in r.Pattern on
// the same request value), which keeps path labels low-cardinality.
func (m *metrics) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		m.requestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

func (m *metrics) recordSecretHits(patterns []string) {
	for _, p := range patterns {
		m.secretHits.WithLabelValues(p).Inc()
	}
}
