package exposure

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for exposure planning and the
// servers it creates. A nil *Metrics is valid and records nothing.
type Metrics struct {
	plansTotal      *prometheus.CounterVec
	interfacesTotal *prometheus.CounterVec

	clientErrors *prometheus.CounterVec
	listenErrors *prometheus.CounterVec
	listeners    *prometheus.GaugeVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance on its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		plansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polis_expose_plans_total",
				Help: "Total number of exposure plans by policy, discovery mode and outcome",
			},
			[]string{"policy", "mode", "status"},
		),

		interfacesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polis_expose_interfaces_planned_total",
				Help: "Total number of planned interfaces by name and encryption",
			},
			[]string{"interface", "encrypted"},
		),

		clientErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polis_expose_tls_client_errors_total",
				Help: "Total number of TLS client errors observed on encrypted interfaces",
			},
			[]string{"interface"},
		),

		listenErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polis_expose_listen_errors_total",
				Help: "Total number of failed listener binds",
			},
			[]string{"interface"},
		),

		listeners: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polis_expose_listeners_active",
				Help: "Listeners currently bound per interface",
			},
			[]string{"interface", "encrypted"},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polis_expose_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polis_expose_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.plansTotal,
		m.interfacesTotal,
		m.clientErrors,
		m.listenErrors,
		m.listeners,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// RecordPlan records a finished Plan call.
func (m *Metrics) RecordPlan(policy Policy, mode string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.plansTotal.WithLabelValues(string(policy), mode, status).Inc()
}

// RecordInterface records one planned interface.
func (m *Metrics) RecordInterface(iface Interface, encrypted bool) {
	if m == nil {
		return
	}
	m.interfacesTotal.WithLabelValues(string(iface), strconv.FormatBool(encrypted)).Inc()
}

// RecordClientError records a TLS client error on an interface.
func (m *Metrics) RecordClientError(iface Interface) {
	if m == nil {
		return
	}
	m.clientErrors.WithLabelValues(string(iface)).Inc()
}

// RecordListenError records a failed bind.
func (m *Metrics) RecordListenError(iface Interface) {
	if m == nil {
		return
	}
	m.listenErrors.WithLabelValues(string(iface)).Inc()
}

// SetListening marks an interface listener as bound or released.
func (m *Metrics) SetListening(iface Interface, encrypted, listening bool) {
	if m == nil {
		return
	}
	value := 0.0
	if listening {
		value = 1
	}
	m.listeners.WithLabelValues(string(iface), strconv.FormatBool(encrypted)).Set(value)
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request metrics for next.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, endpointName(r.URL.Path), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// endpointName keeps label cardinality bounded.
func endpointName(path string) string {
	switch path {
	case "/health":
		return "health"
	case "/metrics":
		return "metrics"
	case "/":
		return "root"
	default:
		return "other"
	}
}
