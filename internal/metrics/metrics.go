// Package metrics owns the Prometheus collectors of the service. Collectors
// live on a private registry so tests can build as many as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	recordsCreated   *prometheus.CounterVec
	assistantResults *prometheus.CounterVec
	subscribers      prometheus.Gauge
	broadcasts       *prometheus.CounterVec
	digests          *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code",
		}, []string{"route", "method", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsdash_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		recordsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_records_created_total",
			Help: "Records inserted, by kind",
		}, []string{"kind"}),
		assistantResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_assistant_requests_total",
			Help: "Assistant questions by outcome",
		}, []string{"outcome"}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opsdash_stream_subscribers",
			Help: "Connected snapshot stream subscribers",
		}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_stream_broadcasts_total",
			Help: "Snapshot refreshes by result",
		}, []string{"result"}),
		digests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_digests_total",
			Help: "KPI digests by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordCreated(kind string) {
	if m == nil {
		return
	}
	m.recordsCreated.WithLabelValues(kind).Inc()
}

// AssistantResult counts one question; outcome is a short label such as
// "answered", "not_configured" or "failed".
func (m *Metrics) AssistantResult(outcome string) {
	if m == nil {
		return
	}
	m.assistantResults.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func (m *Metrics) Broadcast(ok bool) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) Digest(ok bool) {
	if m == nil {
		return
	}
	m.digests.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
