package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics содержит метрики HTTP API сервиса корзины.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	conflict prometheus.Counter
}

// NewHTTPMetrics создаёт метрики HTTP API в DefaultRegisterer.
func NewHTTPMetrics() *HTTPMetrics {
	return NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewHTTPMetricsWithRegisterer создаёт метрики HTTP API в указанном реестре.
func NewHTTPMetricsWithRegisterer(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_http_requests_total",
			Help: "Total number of cart API requests grouped by route and status code",
		}, []string{"route", "code"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "cart_http_request_duration_seconds",
			Help:    "Duration of cart API requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		conflict: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_http_conflicts_total",
			Help: "Total number of requests rejected with 409 because of a stale revision",
		}),
	}
}

// ObserveRequest учитывает обработанный запрос.
func (m *HTTPMetrics) ObserveRequest(route, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, code).Inc()
	m.duration.WithLabelValues(route).Observe(duration.Seconds())
	if code == "409" {
		m.conflict.Inc()
	}
}
