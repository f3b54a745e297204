package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// DriverMetrics 驱动业务指标
type DriverMetrics struct {
	MessagesReceived  prometheus.Counter     // 解析成功的入站消息
	CommandsSent      *prometheus.CounterVec // labels: cmd
	InputEvents       *prometheus.CounterVec // labels: type
	PendingTxns       prometheus.Gauge       // 在途事务数
	ConnectedDevices  prometheus.Gauge       // 当前已连接设备数
	ReconnectAttempts prometheus.Counter
	ReconnectFailures prometheus.Counter
	DrawDuration      prometheus.Histogram // 帧缓冲上传耗时
}

// NewDriverMetrics 注册并返回驱动指标
func NewDriverMetrics(reg *prometheus.Registry) *DriverMetrics {
	m := &DriverMetrics{
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deck_messages_received_total",
			Help: "Total inbound protocol messages decoded.",
		}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deck_commands_sent_total",
			Help: "Outbound commands by name.",
		}, []string{"cmd"}),
		InputEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deck_input_events_total",
			Help: "Decoded input events by type.",
		}, []string{"type"}),
		PendingTxns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deck_pending_transactions",
			Help: "Commands awaiting a device reply.",
		}),
		ConnectedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deck_connected_devices",
			Help: "Current number of connected devices.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deck_reconnect_attempts_total",
			Help: "Reconnection attempts after a lost connection.",
		}),
		ReconnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deck_reconnect_failures_total",
			Help: "Reconnection attempts that did not restore the link.",
		}),
		DrawDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deck_draw_duration_seconds",
			Help:    "Time spent encoding and uploading one framebuffer region.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.MessagesReceived, m.CommandsSent, m.InputEvents, m.PendingTxns, m.ConnectedDevices, m.ReconnectAttempts, m.ReconnectFailures, m.DrawDuration)
	return m
}
