package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_decisions_total",
			Help: "Access decisions by result and denial reason.",
		},
		[]string{"result", "reason"},
	)

	decisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatehouse_decision_duration_seconds",
			Help:    "Pipeline evaluation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	propagationPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_propagation_pushes_total",
			Help: "Per-device permission pushes by outcome.",
		},
		[]string{"outcome"},
	)

	propagationQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gatehouse_propagation_queue_depth",
		Help: "Permission changes waiting in the propagator queue.",
	})

	propagationDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatehouse_propagation_dropped_total",
		Help: "Permission changes dropped because the queue was full or the effect was stale.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatehouse_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Init registers all metrics with the default registry.  Call once at
// process start.
func Init() {
	prometheus.MustRegister(
		decisionsTotal, decisionDuration,
		propagationPushes, propagationQueueDepth, propagationDropped,
		httpRequestsTotal, httpRequestDuration,
	)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveDecision(granted bool, reason string, dur time.Duration) {
	result := "deny"
	if granted {
		result = "grant"
	}
	decisionsTotal.WithLabelValues(result, reason).Inc()
	decisionDuration.Observe(dur.Seconds())
}

func ObservePush(ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	propagationPushes.WithLabelValues(outcome).Inc()
}

func SetPropagationQueueDepth(n int) {
	propagationQueueDepth.Set(float64(n))
}

func CountPropagationDrop() {
	propagationDropped.Inc()
}

// Instrument wraps an HTTP handler with request counting and latency
// observation.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
