// Package metrics defines the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "order_bridge"

// Metrics holds every collector on a private registry, so tests can build
// as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	Requests       *prometheus.CounterVec
	Latency        *prometheus.HistogramVec
	TokenRefreshes *prometheus.CounterVec
	Quotes         *prometheus.CounterVec
	Webhooks       *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 25},
		}, []string{"route"}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "ERP token refresh exchanges by outcome.",
		}, []string{"outcome"}),
		Quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_quotes_total",
			Help:      "Shipping quotes by source (live or fallback).",
		}, []string{"source"}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_notifications_total",
			Help:      "Payment notifications by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests, m.Latency, m.TokenRefreshes, m.Quotes, m.Webhooks,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.Latency.WithLabelValues(route).Observe(d.Seconds())
}

// TokenRefreshed counts one refresh exchange.
func (m *Metrics) TokenRefreshed(outcome string) {
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// QuoteServed counts one shipping quote.
func (m *Metrics) QuoteServed(source string) {
	m.Quotes.WithLabelValues(source).Inc()
}

// WebhookHandled counts one payment notification.
func (m *Metrics) WebhookHandled(outcome string) {
	m.Webhooks.WithLabelValues(outcome).Inc()
}
