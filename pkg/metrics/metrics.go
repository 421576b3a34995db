package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the HTTP surface and the commerce pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	couponValidations *prometheus.CounterVec
	checkouts         *prometheus.CounterVec
	reconciles        *prometheus.CounterVec
	certificates      prometheus.Counter
	notifications     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		couponValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coupon_validations_total",
			Help: "Coupon checks by result.",
		}, []string{"result"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout attempts by result.",
		}, []string{"result"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_reconciles_total",
			Help: "Reconcile calls by source and outcome.",
		}, []string{"source", "outcome"}),
		certificates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certificates_issued_total",
			Help: "Certificates newly issued.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Notifications handed to the queue by kind and result.",
		}, []string{"kind", "result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpLatency,
		m.couponValidations, m.checkouts, m.reconciles, m.certificates, m.notifications,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(route, method, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) CouponValidation(result string) {
	if m == nil {
		return
	}
	m.couponValidations.WithLabelValues(result).Inc()
}

func (m *Metrics) Checkout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

func (m *Metrics) Reconcile(source, outcome string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) CertificateIssued() {
	if m == nil {
		return
	}
	m.certificates.Inc()
}

func (m *Metrics) Notification(kind, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}
