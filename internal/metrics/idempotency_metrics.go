package metrics

import "github.com/prometheus/client_golang/prometheus"

// IdempotencyMetrics — метрики ключей идемпотентности сервиса корзины.
type IdempotencyMetrics struct {
	replays        *prometheus.CounterVec
	cleanupRuns    *prometheus.CounterVec
	cleanupDeleted prometheus.Counter
	lastDeleted    prometheus.Gauge
}

// NewIdempotencyMetrics создаёт метрики в DefaultRegisterer.
func NewIdempotencyMetrics() *IdempotencyMetrics {
	return NewIdempotencyMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewIdempotencyMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewIdempotencyMetricsWithRegisterer(registerer prometheus.Registerer) *IdempotencyMetrics {
	return &IdempotencyMetrics{
		replays: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_idempotency_requests_total",
			Help: "Cart mutations carrying an Idempotency-Key grouped by result (new, replayed, in_progress, mismatch).",
		}, []string{"result"}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cart_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		}),
	}
}

// RecordRequest учитывает запрос с Idempotency-Key.
func (m *IdempotencyMetrics) RecordRequest(result string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(result).Inc()
}

// RecordCleanup учитывает цикл очистки и число удалённых записей.
func (m *IdempotencyMetrics) RecordCleanup(result string, deleted int) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(result).Inc()
	if result == "ok" {
		m.lastDeleted.Set(float64(deleted))
	}
}

// AddDeleted увеличивает счётчик удалённых записей.
func (m *IdempotencyMetrics) AddDeleted(deleted int) {
	if m == nil || deleted <= 0 {
		return
	}
	m.cleanupDeleted.Add(float64(deleted))
}
