package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics собирает метрики асинхронной публикации событий корзины.
type RelayMetrics struct {
	attempts *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	buffered prometheus.Gauge
}

// NewRelayMetrics создаёт метрики в DefaultRegisterer.
func NewRelayMetrics() *RelayMetrics {
	return NewRelayMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewRelayMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewRelayMetricsWithRegisterer(registerer prometheus.Registerer) *RelayMetrics {
	return &RelayMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_event_publish_attempts_total",
			Help: "Total number of event publish attempts grouped by result.",
		}, []string{"result"}),
		dropped: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_event_dropped_total",
			Help: "Total number of events dropped before publishing grouped by reason.",
		}, []string{"reason"}),
		buffered: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cart_event_buffered",
			Help: "Current number of events waiting to be published.",
		}),
	}
}

// RecordAttempt учитывает попытку публикации (sent, retry_error, failed).
func (m *RelayMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// RecordDropped учитывает событие, не попавшее в брокер.
func (m *RelayMetrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// SetBuffered выставляет глубину буфера.
func (m *RelayMetrics) SetBuffered(n int) {
	if m == nil {
		return
	}
	m.buffered.Set(float64(n))
}
