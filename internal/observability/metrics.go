package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	tokensIssued        *prometheus.CounterVec
	sessionsInvalidated prometheus.Counter
	batchItems          *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	tokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_tokens_issued_total",
		Help: "Issued bearer tokens, split by fresh issuance vs session reuse.",
	}, []string{"reused"})
	invalidated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_sessions_invalidated_total",
		Help: "Sessions removed by the invalidation cascade.",
	})
	batch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_batch_items_total",
		Help: "Bulk assignment items by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, tokens, invalidated, batch)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		tokensIssued:        tokens,
		sessionsInvalidated: invalidated,
		batchItems:          batch,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveTokenIssued counts a token issuance or reuse.
func (m *Metrics) ObserveTokenIssued(reused bool) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(strconv.FormatBool(reused)).Inc()
}

// ObserveSessionsInvalidated counts swept sessions.
func (m *Metrics) ObserveSessionsInvalidated(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.sessionsInvalidated.Add(float64(count))
}

// ObserveBatchItems counts bulk assignment outcomes.
func (m *Metrics) ObserveBatchItems(succeeded, unchanged, failed int) {
	if m == nil {
		return
	}
	m.batchItems.WithLabelValues("succeeded").Add(float64(succeeded))
	m.batchItems.WithLabelValues("unchanged").Add(float64(unchanged))
	m.batchItems.WithLabelValues("failed").Add(float64(failed))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestMiddleware instruments requests with the route pattern chi matched.
func (m *Metrics) RequestMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
