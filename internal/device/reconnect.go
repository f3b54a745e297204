package device

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// supervisor 断线重连：断开后以固定间隔重试，同一时刻至多一个待决尝试，
// 成功后计数清零，设备关闭时取消
type supervisor struct {
	d        *Device
	interval time.Duration

	mu      sync.Mutex
	armed   bool
	stopped bool
	attempt int
	timer   *time.Timer
}

func newSupervisor(d *Device, interval time.Duration) *supervisor {
	return &supervisor{d: d, interval: interval}
}

// arm 安排一次重连，已安排或已停止时为空操作
func (s *supervisor) arm(cause error) {
	s.mu.Lock()
	if s.stopped || s.armed {
		s.mu.Unlock()
		return
	}
	s.armed = true
	s.attempt++
	attempt := s.attempt
	s.timer = time.AfterFunc(s.interval, func() { s.fire(attempt) })
	s.mu.Unlock()
	s.d.logger.Info("已安排重连",
		zap.Int("attempt", attempt),
		zap.Duration("delay", s.interval),
		zap.NamedError("cause", cause))
}

func (s *supervisor) fire(attempt int) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.d.met != nil {
		s.d.met.ReconnectAttempts.Inc()
	}
	s.d.em.Emit(EventReconnecting, ReconnectInfo{Attempt: attempt})
	err := s.d.connectOnce(context.Background())

	s.mu.Lock()
	s.armed = false
	if err == nil {
		s.attempt = 0
	}
	stopped := s.stopped
	s.mu.Unlock()

	if err != nil {
		if s.d.met != nil {
			s.d.met.ReconnectFailures.Inc()
		}
		s.d.logger.Warn("重连失败", zap.Int("attempt", attempt), zap.Error(err))
		s.d.em.Emit(EventReconnectFailed, ReconnectInfo{Attempt: attempt, Err: err})
		if !stopped {
			s.arm(err)
		}
		return
	}
	s.d.em.Emit(EventReconnected, ReconnectInfo{Attempt: attempt, Address: s.d.Address()})
	if !stopped && !s.d.Ready() {
		// 建连后瞬断时断开回调可能早于armed解除，补一次安排
		s.arm(nil)
	}
}

// stop 取消待决尝试并拒绝后续安排
func (s *supervisor) stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}
