package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics содержит метрики движка синхронизации корзины.
// Все методы безопасны для nil-получателя: движок без метрик просто ничего не пишет.
type SyncMetrics struct {
	// Мутации по типу и исходу
	mutations *prometheus.CounterVec
	// Исходы проходов слива очереди
	drains *prometheus.CounterVec
	// Операции, выброшенные после исчерпания попыток
	dropped prometheus.Counter
	// Конфликты 409
	conflicts prometheus.Counter
	// Загрузки корзины с сервера
	fetches *prometheus.CounterVec

	remoteDuration *prometheus.HistogramVec

	queueDepth prometheus.Gauge
	status     *prometheus.GaugeVec
	online     prometheus.Gauge
}

var syncStatuses = []string{"synced", "pending", "error"}

// NewSyncMetrics создаёт метрики движка в DefaultRegisterer.
func NewSyncMetrics() *SyncMetrics {
	return NewSyncMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSyncMetricsWithRegisterer создаёт метрики в указанном реестре (в тестах отдельный реестр).
func NewSyncMetricsWithRegisterer(registerer prometheus.Registerer) *SyncMetrics {
	return &SyncMetrics{
		mutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cartsync_mutations_total",
			Help: "Total number of cart mutations grouped by kind and outcome",
		}, []string{"kind", "outcome"}),
		drains: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cartsync_queue_drains_total",
			Help: "Total number of offline queue drain passes grouped by result",
		}, []string{"result"}),
		dropped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cartsync_queue_dropped_total",
			Help: "Total number of queued operations dropped after exhausting retries",
		}),
		conflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cartsync_conflicts_total",
			Help: "Total number of concurrent modification conflicts reported by the cart service",
		}),
		fetches: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cartsync_fetches_total",
			Help: "Total number of authoritative cart fetches grouped by result",
		}, []string{"result"}),
		remoteDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "cartsync_remote_call_duration_seconds",
			Help:    "Duration of cart service calls in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		queueDepth: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cartsync_queue_depth",
			Help: "Number of operations waiting in the offline queue",
		}),
		status: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "cartsync_status",
			Help: "Current sync status (1 for the active status)",
		}, []string{"status"}),
		online: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cartsync_online",
			Help: "1 when the host is online",
		}),
	}
}

// RecordMutation учитывает мутацию корзины с её исходом (synced, queued, conflict, rolled_back, ...).
func (m *SyncMetrics) RecordMutation(kind, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, outcome).Inc()
}

// RecordDrain учитывает проход слива очереди.
func (m *SyncMetrics) RecordDrain(result string) {
	if m == nil {
		return
	}
	m.drains.WithLabelValues(result).Inc()
}

// RecordDropped увеличивает счётчик выброшенных операций.
func (m *SyncMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// RecordConflict увеличивает счётчик конфликтов.
func (m *SyncMetrics) RecordConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// RecordFetch учитывает загрузку корзины.
func (m *SyncMetrics) RecordFetch(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}

// ObserveRemoteCall записывает длительность вызова удалённого сервиса.
func (m *SyncMetrics) ObserveRemoteCall(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.remoteDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetQueueDepth выставляет текущую длину офлайн-очереди.
func (m *SyncMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// SetStatus помечает активный статус синхронизации.
func (m *SyncMetrics) SetStatus(status string) {
	if m == nil {
		return
	}
	for _, s := range syncStatuses {
		value := 0.0
		if s == status {
			value = 1
		}
		m.status.WithLabelValues(s).Set(value)
	}
}

// SetOnline отражает состояние сети.
func (m *SyncMetrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}
