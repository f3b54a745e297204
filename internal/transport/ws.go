package transport

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultWSPort 设备WebSocket默认端口
const DefaultWSPort = "80"

// WSConfig WebSocket通道参数
type WSConfig struct {
	ConnectTimeout   time.Duration // 单次拨号超时，默认5s
	KeepaliveTimeout time.Duration // 超过该时长未收到消息判定失活，默认3s
	MaxRetries       int           // 拨号失败重试次数，默认3
	RetryDelay       time.Duration // 重试间隔，默认1s
}

func (c *WSConfig) withDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = 3 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
}

// wsAddress 补全默认端口并拼装ws地址
func wsAddress(host string) string {
	if host == "" {
		return ""
	}
	if strings.Contains(host, "://") {
		return host
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, DefaultWSPort)
	}
	return "ws://" + host
}

// WS 网络通道：一条二进制消息即一条完整协议报文，无额外封包
type WS struct {
	host   string
	addr   string
	cfg    WSConfig
	logger *zap.Logger

	st       connState
	conn     *websocket.Conn
	writeMu  sync.Mutex
	lastRecv int64
	readDone chan struct{}
	stopC    chan struct{}

	onMessage    func([]byte)
	onDisconnect func(error)
}

// NewWS 创建WebSocket通道
func NewWS(host string, cfg WSConfig, logger *zap.Logger) *WS {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.withDefaults()
	return &WS{
		host:     host,
		addr:     wsAddress(host),
		cfg:      cfg,
		logger:   logger,
		readDone: make(chan struct{}),
		stopC:    make(chan struct{}),
	}
}

func (w *WS) SetOnMessage(fn func([]byte))   { w.onMessage = fn }
func (w *WS) SetOnDisconnect(fn func(error)) { w.onDisconnect = fn }

func (w *WS) Ready() bool     { return w.st.get() == StateReady }
func (w *WS) State() State    { return w.st.get() }
func (w *WS) Address() string { return w.addr }

// LastActivity 最近一次收到消息的时间
func (w *WS) LastActivity() time.Time {
	v := atomic.LoadInt64(&w.lastRecv)
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

func (w *WS) touch() { atomic.StoreInt64(&w.lastRecv, time.Now().UnixNano()) }

// Connect 带重试拨号，成功后启动读循环与保活检查
func (w *WS) Connect(ctx context.Context) error {
	if w.host == "" {
		return &ConnError{Op: "dial", Addr: "", Err: errors.New("host is required")}
	}
	if !w.st.cas(StateDisconnected, StateConnecting) {
		return &ConnError{Op: "dial", Addr: w.addr, Err: errors.New("connection instance already used")}
	}
	dialer := websocket.Dialer{HandshakeTimeout: w.cfg.ConnectTimeout}
	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			w.logger.Info("websocket dial retrying",
				zap.String("addr", w.addr),
				zap.Int("attempt", attempt),
				zap.Int("max", w.cfg.MaxRetries))
			select {
			case <-ctx.Done():
				w.st.beginClose()
				return &ConnError{Op: "dial", Addr: w.addr, Err: ctx.Err()}
			case <-time.After(w.cfg.RetryDelay):
			}
		}
		conn, _, err := dialer.DialContext(ctx, w.addr, nil)
		if err != nil {
			lastErr = err
			continue
		}
		w.conn = conn
		break
	}
	if w.conn == nil {
		w.st.beginClose()
		return &ConnError{Op: "dial", Addr: w.addr, Err: lastErr}
	}
	if !w.st.cas(StateConnecting, StateReady) {
		_ = w.conn.Close()
		return &ConnError{Op: "dial", Addr: w.addr, Err: errors.New("closed during dial")}
	}
	w.touch()
	go w.readPump()
	go w.watchdog()
	w.logger.Info("websocket connected", zap.String("addr", w.addr))
	return nil
}

func (w *WS) readPump() {
	defer close(w.readDone)
	for {
		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			if w.st.get() == StateClosing {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Warn("websocket read failed", zap.String("addr", w.addr), zap.Error(err))
			}
			_ = w.teardown(err, false)
			return
		}
		w.touch()
		if w.onMessage != nil {
			w.onMessage(msg)
		}
	}
}

// watchdog 周期检查收包间隔，超时判定连接失活
func (w *WS) watchdog() {
	interval := w.cfg.KeepaliveTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopC:
			return
		case <-ticker.C:
			idle := time.Since(w.LastActivity())
			if idle > w.cfg.KeepaliveTimeout {
				w.logger.Warn("websocket keepalive timed out",
					zap.String("addr", w.addr),
					zap.Duration("idle", idle))
				// 超时属于异常断开（1006语义），不发关闭帧直接断开
				_ = w.teardown(&ConnError{Op: "keepalive", Addr: w.addr, Err: ErrTimeout}, false)
				return
			}
		}
	}
}

// Send 发送二进制消息；网络通道无额外封包，raw与否行为一致
func (w *WS) Send(data []byte, raw bool) error {
	if w.st.get() != StateReady {
		return ErrNotReady
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return &ConnError{Op: "write", Addr: w.addr, Err: err}
	}
	return nil
}

// Close 关闭通道（幂等），主动关闭发送1000关闭帧
func (w *WS) Close() error { return w.teardown(nil, true) }

func (w *WS) teardown(cause error, wait bool) error {
	prev, ok := w.st.beginClose()
	if !ok {
		return nil
	}
	close(w.stopC)
	if w.conn != nil {
		if cause == nil {
			w.writeMu.Lock()
			_ = w.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			w.writeMu.Unlock()
		}
		_ = w.conn.Close()
	}
	if wait && prev == StateReady {
		<-w.readDone
	}
	if prev == StateReady && w.onDisconnect != nil {
		w.onDisconnect(cause)
	}
	return nil
}

var (
	_ Connection = (*Serial)(nil)
	_ Connection = (*WS)(nil)
)
