package transport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Kind 传输通道类型
type Kind string

const (
	KindSerial Kind = "serial"
	KindWS     Kind = "ws"
)

// State 连接状态（单个实例内只会单调推进，重连使用新实例）
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

var (
	// ErrNotReady 连接未就绪时发送指令返回
	ErrNotReady = errors.New("connection not ready")
	// ErrTimeout 保活超时
	ErrTimeout = errors.New("connection timed out")
)

// ConnError 通道层错误（握手/超时/IO）
type ConnError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// Connection 设备通道的统一抽象
// 回调须在 Connect 之前安装；Close 幂等，断开回调只触发一次。
type Connection interface {
	Connect(ctx context.Context) error
	// Send 发送一条完整协议报文；raw=true 时跳过通道自身的封包
	Send(data []byte, raw bool) error
	Close() error
	Ready() bool
	State() State
	Address() string
	// LastActivity 最近一次收到数据的时间
	LastActivity() time.Time
	SetOnMessage(fn func(data []byte))
	SetOnDisconnect(fn func(err error))
}

// DiscoveredDevice 设备发现的统一记录
type DiscoveredDevice struct {
	Kind      Kind
	Address   string
	VendorID  uint16
	ProductID uint16
	Product   string
	Serial    string
}

// connState 连接状态机（原子推进）
type connState struct{ v int32 }

func (c *connState) get() State { return State(atomic.LoadInt32(&c.v)) }

func (c *connState) cas(from, to State) bool {
	return atomic.CompareAndSwapInt32(&c.v, int32(from), int32(to))
}

// beginClose 抢占进入Closing，返回之前的状态；已在Closing时返回false
func (c *connState) beginClose() (State, bool) {
	for {
		cur := atomic.LoadInt32(&c.v)
		if State(cur) == StateClosing {
			return StateClosing, false
		}
		if atomic.CompareAndSwapInt32(&c.v, cur, int32(StateClosing)) {
			return State(cur), true
		}
	}
}
