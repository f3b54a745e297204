package push

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultQueueSize = 256
	DefaultWorkers   = 2

	// 单次投递预算，覆盖pusher的全部重试
	deliverTimeout = 30 * time.Second
)

// Queue 内存事件队列。队列满时丢弃新事件，输入事件过期即无价值，
// 不做跨重启持久化。
type Queue struct {
	pusher   *Pusher
	endpoint string
	logger   *zap.Logger
	met      *Metrics

	ch      chan *Event
	workers int
	wg      sync.WaitGroup
}

// NewQueue 创建事件队列
func NewQueue(pusher *Pusher, endpoint string, size, workers int, logger *zap.Logger, met *Metrics) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		pusher:   pusher,
		endpoint: endpoint,
		logger:   logger,
		met:      met,
		ch:       make(chan *Event, size),
		workers:  workers,
	}
}

// Enqueue 非阻塞入队，队列满时丢弃并返回false
func (q *Queue) Enqueue(ev *Event) bool {
	if ev == nil {
		return false
	}
	select {
	case q.ch <- ev:
		if q.met != nil {
			q.met.EnqueueTotal.WithLabelValues(string(ev.EventType)).Inc()
			q.met.QueueDepth.Set(float64(len(q.ch)))
		}
		return true
	default:
		if q.met != nil {
			q.met.DroppedTotal.WithLabelValues(string(ev.EventType)).Inc()
		}
		q.logger.Warn("push queue full, event dropped",
			zap.String("event_type", string(ev.EventType)),
			zap.String("device", ev.Device))
		return false
	}
}

// Start 启动投递Worker，ctx取消后全部退出
func (q *Queue) Start(ctx context.Context) {
	q.logger.Info("starting push workers",
		zap.Int("worker_count", q.workers),
		zap.String("webhook_url", q.endpoint))
	for i := 0; i < q.workers; i++ {
		workerID := i + 1
		q.wg.Add(1)
		go q.worker(ctx, workerID)
	}
}

// Wait 等待全部Worker退出
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()
	logger := q.logger.With(zap.Int("worker_id", workerID))
	logger.Info("push worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("push worker stopped")
			return
		case ev := <-q.ch:
			if q.met != nil {
				q.met.QueueDepth.Set(float64(len(q.ch)))
			}
			q.deliver(ctx, ev, logger)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, ev *Event, logger *zap.Logger) {
	pushCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	start := time.Now()
	code, _, err := q.pusher.SendJSON(pushCtx, q.endpoint, ev)
	if q.met != nil {
		q.met.PushDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if q.met != nil {
			q.met.PushTotal.WithLabelValues(string(ev.EventType), "failed").Inc()
		}
		logger.Warn("event push failed",
			zap.String("event_id", ev.EventID),
			zap.String("event_type", string(ev.EventType)),
			zap.Int("status_code", code),
			zap.Error(err))
		return
	}
	if code >= 400 {
		// 4xx是接收端拒收，重试无意义
		if q.met != nil {
			q.met.PushTotal.WithLabelValues(string(ev.EventType), "rejected").Inc()
		}
		logger.Warn("event push rejected",
			zap.String("event_id", ev.EventID),
			zap.String("event_type", string(ev.EventType)),
			zap.Int("status_code", code))
		return
	}

	if q.met != nil {
		q.met.PushTotal.WithLabelValues(string(ev.EventType), "success").Inc()
	}
	logger.Debug("event pushed",
		zap.String("event_id", ev.EventID),
		zap.String("event_type", string(ev.EventType)),
		zap.Int("status_code", code))
}
