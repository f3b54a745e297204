package push

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 推送链路指标
type Metrics struct {
	EnqueueTotal *prometheus.CounterVec // labels: event_type
	DroppedTotal *prometheus.CounterVec // labels: event_type
	PushTotal    *prometheus.CounterVec // labels: event_type, result
	PushDuration prometheus.Histogram
	QueueDepth   prometheus.Gauge
}

// NewMetrics 注册并返回推送指标
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		EnqueueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deck_push_enqueue_total",
			Help: "Events accepted into the webhook queue.",
		}, []string{"event_type"}),
		DroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deck_push_dropped_total",
			Help: "Events dropped because the webhook queue was full.",
		}, []string{"event_type"}),
		PushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deck_push_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"event_type", "result"}),
		PushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deck_push_duration_seconds",
			Help:    "Time spent delivering one event to the webhook.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deck_push_queue_depth",
			Help: "Events waiting in the webhook queue.",
		}),
	}
	reg.MustRegister(m.EnqueueTotal, m.DroppedTotal, m.PushTotal, m.PushDuration, m.QueueDepth)
	return m
}
