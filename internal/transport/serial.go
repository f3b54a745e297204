package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/taoyao-code/deck-driver/internal/protocol/loupedeck"
)

// 设备在串口上模拟WebSocket升级握手
var (
	wsUpgradeHeader   = []byte("GET /index.html\r\nHTTP/1.1\r\nConnection: Upgrade\r\nUpgrade: websocket\r\nSec-WebSocket-Key: 123abc\r\n\r\n")
	wsUpgradeResponse = []byte("HTTP/1.1")
	wsCloseFrame      = []byte{0x88, 0x80, 0x00, 0x00, 0x00, 0x00}
)

const serialBaudRate = 256000

// SerialConfig 串口通道参数
type SerialConfig struct {
	HandshakeTimeout time.Duration // 握手应答等待，默认1s
	PollTimeout      time.Duration // 读轮询超时，默认500ms
}

func (c *SerialConfig) withDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 500 * time.Millisecond
	}
}

// serialPort 驱动实际用到的串口能力子集
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

func openSerialPort(path string) (serialPort, error) {
	return serial.Open(path, &serial.Mode{
		BaudRate: serialBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// Serial 串口通道：0x82前导封包 + 升级握手，读循环做有界轮询
type Serial struct {
	path   string
	cfg    SerialConfig
	logger *zap.Logger

	openPort func(path string) (serialPort, error)

	st       connState
	port     serialPort
	parser   *loupedeck.Parser
	writeMu  sync.Mutex
	lastRecv int64
	readDone chan struct{}

	onMessage    func([]byte)
	onDisconnect func(error)
}

// NewSerial 创建串口通道
func NewSerial(path string, cfg SerialConfig, logger *zap.Logger) *Serial {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.withDefaults()
	return &Serial{
		path:     path,
		cfg:      cfg,
		logger:   logger,
		openPort: openSerialPort,
		parser:   loupedeck.NewParser(),
		readDone: make(chan struct{}),
	}
}

func (s *Serial) SetOnMessage(fn func([]byte))   { s.onMessage = fn }
func (s *Serial) SetOnDisconnect(fn func(error)) { s.onDisconnect = fn }

func (s *Serial) Ready() bool     { return s.st.get() == StateReady }
func (s *Serial) State() State    { return s.st.get() }
func (s *Serial) Address() string { return s.path }

// LastActivity 最近一次收到字节的时间
func (s *Serial) LastActivity() time.Time {
	v := atomic.LoadInt64(&s.lastRecv)
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

func (s *Serial) touch() { atomic.StoreInt64(&s.lastRecv, time.Now().UnixNano()) }

// Connect 打开串口并完成升级握手
func (s *Serial) Connect(ctx context.Context) error {
	if s.path == "" {
		return &ConnError{Op: "open", Addr: s.path, Err: errors.New("path is required")}
	}
	if !s.st.cas(StateDisconnected, StateConnecting) {
		return &ConnError{Op: "open", Addr: s.path, Err: errors.New("connection instance already used")}
	}
	port, err := s.openPort(s.path)
	if err != nil {
		s.st.beginClose()
		return &ConnError{Op: "open", Addr: s.path, Err: err}
	}
	s.port = port
	_ = port.SetReadTimeout(s.cfg.PollTimeout)

	leftover, err := s.handshake(ctx)
	if err != nil {
		_ = port.Close()
		s.st.beginClose()
		return err
	}
	if !s.st.cas(StateConnecting, StateReady) {
		_ = port.Close()
		return &ConnError{Op: "open", Addr: s.path, Err: errors.New("closed during handshake")}
	}
	s.touch()
	// 握手应答后粘连的首批帧不能丢
	for _, pkt := range s.parser.Feed(leftover) {
		s.deliver(pkt)
	}
	go s.readLoop()
	s.logger.Info("serial connected", zap.String("path", s.path))
	return nil
}

// handshake 发送升级请求并校验应答行，返回应答行之后已读到的字节
func (s *Serial) handshake(ctx context.Context) ([]byte, error) {
	if _, err := s.port.Write(wsUpgradeHeader); err != nil {
		return nil, &ConnError{Op: "handshake", Addr: s.path, Err: err}
	}
	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	var resp []byte
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return nil, &ConnError{Op: "handshake", Addr: s.path, Err: err}
		}
		if time.Now().After(deadline) {
			return nil, &ConnError{Op: "handshake", Addr: s.path, Err: ErrTimeout}
		}
		n, err := s.port.Read(buf)
		if err != nil {
			return nil, &ConnError{Op: "handshake", Addr: s.path, Err: err}
		}
		if n == 0 {
			// 轮询超时，继续等
			continue
		}
		resp = append(resp, buf[:n]...)
		if i := bytes.IndexByte(resp, '\n'); i >= 0 {
			if !bytes.HasPrefix(resp, wsUpgradeResponse) {
				return nil, &ConnError{Op: "handshake", Addr: s.path, Err: fmt.Errorf("invalid handshake response %q", resp[:i+1])}
			}
			return resp[i+1:], nil
		}
		if len(resp) >= len(wsUpgradeResponse) && !bytes.HasPrefix(resp, wsUpgradeResponse) {
			return nil, &ConnError{Op: "handshake", Addr: s.path, Err: fmt.Errorf("invalid handshake response %q", resp)}
		}
	}
}

func (s *Serial) readLoop() {
	defer close(s.readDone)
	buf := make([]byte, 4096)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.touch()
			for _, pkt := range s.parser.Feed(buf[:n]) {
				s.deliver(pkt)
			}
		}
		if err != nil {
			if s.st.get() == StateClosing {
				return
			}
			s.logger.Warn("serial read failed", zap.String("path", s.path), zap.Error(err))
			_ = s.teardown(err, false)
			return
		}
		if s.st.get() == StateClosing {
			return
		}
		// n==0 且无错误是轮询超时，不是EOF
	}
}

func (s *Serial) deliver(pkt []byte) {
	if s.onMessage != nil {
		s.onMessage(pkt)
	}
}

// Send 发送报文；raw=false 时加0x82前导封包
func (s *Serial) Send(data []byte, raw bool) error {
	if s.st.get() != StateReady {
		return ErrNotReady
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !raw {
		if _, err := s.port.Write(buildSerialPrep(len(data))); err != nil {
			return &ConnError{Op: "write", Addr: s.path, Err: err}
		}
	}
	if _, err := s.port.Write(data); err != nil {
		return &ConnError{Op: "write", Addr: s.path, Err: err}
	}
	return nil
}

// buildSerialPrep 串口封包前导：短报文6字节，长度超255走14字节扩展头
func buildSerialPrep(n int) []byte {
	if n > 0xFF {
		prep := make([]byte, 14)
		prep[0] = loupedeck.Magic
		prep[1] = 0xFF
		binary.BigEndian.PutUint32(prep[6:10], uint32(n))
		return prep
	}
	prep := make([]byte, 6)
	prep[0] = loupedeck.Magic
	prep[1] = 0x80 + byte(n)
	return prep
}

// Close 关闭通道（幂等）
func (s *Serial) Close() error { return s.teardown(nil, true) }

func (s *Serial) teardown(cause error, wait bool) error {
	prev, ok := s.st.beginClose()
	if !ok {
		return nil
	}
	if s.port != nil {
		if prev == StateReady {
			// 通知设备端会话结束
			s.writeMu.Lock()
			_, _ = s.port.Write(wsCloseFrame)
			s.writeMu.Unlock()
		}
		_ = s.port.Close()
	}
	if wait && prev == StateReady {
		<-s.readDone
	}
	s.parser.Flush()
	if prev == StateReady && s.onDisconnect != nil {
		s.onDisconnect(cause)
	}
	return nil
}
