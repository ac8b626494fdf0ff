package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the API.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	rateLimitTotal   *prometheus.CounterVec
	authzTotal       *prometheus.CounterVec
	loginsTotal      *prometheus.CounterVec
	cacheTotal       *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miq_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "miq_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "miq_http_requests_in_flight",
		Help: "HTTP requests currently being served.",
	})
	rateLimit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miq_rate_limit_decisions_total",
		Help: "Rate limiter decisions partitioned by outcome.",
	}, []string{"outcome"})
	authz := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miq_authz_decisions_total",
		Help: "Access guard decisions partitioned by outcome.",
	}, []string{"outcome"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miq_logins_total",
		Help: "Login attempts partitioned by outcome.",
	}, []string{"outcome"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miq_user_cache_events_total",
		Help: "User listing cache lookups partitioned by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, inFlight, rateLimit, authz, logins, cache)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		requestsInFlight: inFlight,
		rateLimitTotal:   rateLimit,
		authzTotal:       authz,
		loginsTotal:      logins,
		cacheTotal:       cache,
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

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for registering extra collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveRateLimit counts a limiter decision. Outcomes: allowed,
// limited, error_allowed, error_limited.
func (m *Metrics) ObserveRateLimit(outcome string) {
	if m == nil {
		return
	}
	m.rateLimitTotal.WithLabelValues(outcome).Inc()
}

// ObserveAuthz counts an access guard decision. Outcomes: allowed,
// unauthenticated, forbidden.
func (m *Metrics) ObserveAuthz(outcome string) {
	if m == nil {
		return
	}
	m.authzTotal.WithLabelValues(outcome).Inc()
}

// ObserveLogin counts a login attempt. Outcomes: granted, denied, error.
func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCache counts a user cache lookup. Results: hit, miss, bypass.
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
