// Package metrics holds the Prometheus collectors of the simulator. All
// methods are nil-safe so components can run without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	browserAcquired       prometheus.Counter
	browserReleased       prometheus.Counter
	browserInFlight       prometheus.Gauge
	browserLaunchFailures prometheus.Counter

	paymentsTotal  *prometheus.CounterVec
	paymentRetries *prometheus.CounterVec

	rateLimitRejections prometheus.Counter
	authFailures        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "route"}),
		browserAcquired: f.NewCounter(prometheus.CounterOpts{
			Name: "browser_sessions_acquired_total",
			Help: "Browser sessions launched",
		}),
		browserReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "browser_sessions_released_total",
			Help: "Browser sessions torn down",
		}),
		browserInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "browser_sessions_in_flight",
			Help: "Browser sessions currently open",
		}),
		browserLaunchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "browser_launch_failures_total",
			Help: "Browser sessions that failed to launch",
		}),
		paymentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_simulations_total",
			Help: "Payment requests by mode and outcome",
		}, []string{"mode", "outcome"}),
		paymentRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_step_retries_total",
			Help: "Retried browser interaction steps",
		}, []string{"step"}),
		rateLimitRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by the per-caller window",
		}),
		authFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Rejected authentication attempts",
		}, []string{"reason"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) SessionAcquired() {
	if m == nil {
		return
	}
	m.browserAcquired.Inc()
	m.browserInFlight.Inc()
}

func (m *Metrics) SessionReleased() {
	if m == nil {
		return
	}
	m.browserReleased.Inc()
	m.browserInFlight.Dec()
}

func (m *Metrics) LaunchFailed() {
	if m == nil {
		return
	}
	m.browserLaunchFailures.Inc()
}

func (m *Metrics) Payment(mode, outcome string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) StepRetried(step string) {
	if m == nil {
		return
	}
	m.paymentRetries.WithLabelValues(step).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimitRejections.Inc()
}

func (m *Metrics) AuthFailed(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
