package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"image/color"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/deck-driver/internal/metrics"
	"github.com/taoyao-code/deck-driver/internal/protocol/loupedeck"
	"github.com/taoyao-code/deck-driver/internal/transport"
)

// 缺省参数
const (
	DefaultReplyTimeout      = 2 * time.Second
	DefaultReconnectInterval = 3 * time.Second
	DefaultDrawRate          = 60
	DefaultDrawBurst         = 2

	firmwareChunkSize = 1016
)

// Config 引擎可调参数，零值字段取缺省值
type Config struct {
	ReplyTimeout      time.Duration
	DrawRate          float64
	DrawBurst         int
	Reconnect         bool
	ReconnectInterval time.Duration
	Serial            transport.SerialConfig
	WS                transport.WSConfig
}

func (c *Config) withDefaults() {
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = DefaultReplyTimeout
	}
	if c.DrawRate <= 0 {
		c.DrawRate = DefaultDrawRate
	}
	if c.DrawBurst <= 0 {
		c.DrawBurst = DefaultDrawBurst
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
}

// GenerateInstanceID 生成驱动侧设备实例ID
func GenerateInstanceID() string {
	return "dev-" + uuid.NewString()
}

type pendingTxn struct {
	cont  func([]byte)
	timer *time.Timer
}

// Device 单台设备的协议引擎。实例一次性使用：Close后不可再连接。
type Device struct {
	desc   *Descriptor
	cfg    Config
	logger *zap.Logger
	met    *metrics.DriverMetrics
	em     *Emitter
	id     string

	// 显式地址，空表示走发现
	kind    transport.Kind
	address string
	origin  *transport.DiscoveredDevice

	// 测试与重连注入点
	newConn func(kind transport.Kind, addr string) transport.Connection

	mu         sync.Mutex
	conn       transport.Connection
	txnID      uint8
	pending    map[uint8]*pendingTxn
	touches    map[int]Touch
	closed     bool
	usedOrigin bool

	handlers map[loupedeck.Command]func([]byte)
	drawLim  *rate.Limiter
	sup      *supervisor
}

func newDevice(desc *Descriptor, cfg Config, logger *zap.Logger, met *metrics.DriverMetrics) *Device {
	cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Device{
		desc:    desc,
		cfg:     cfg,
		logger:  logger.With(zap.String("model", desc.Type)),
		met:     met,
		em:      NewEmitter(),
		id:      GenerateInstanceID(),
		pending: make(map[uint8]*pendingTxn),
		touches: make(map[int]Touch),
		drawLim: rate.NewLimiter(rate.Limit(cfg.DrawRate), cfg.DrawBurst),
	}
	d.buildHandlers()
	if cfg.Reconnect {
		d.sup = newSupervisor(d, cfg.ReconnectInterval)
	}
	return d
}

// NewSerialDevice 通过串口路径创建设备
func NewSerialDevice(desc *Descriptor, path string, cfg Config, logger *zap.Logger, met *metrics.DriverMetrics) *Device {
	d := newDevice(desc, cfg, logger, met)
	d.kind = transport.KindSerial
	d.address = path
	return d
}

// NewWSDevice 通过网络主机创建设备
func NewWSDevice(desc *Descriptor, host string, cfg Config, logger *zap.Logger, met *metrics.DriverMetrics) *Device {
	d := newDevice(desc, cfg, logger, met)
	d.kind = transport.KindWS
	d.address = host
	return d
}

// FromDiscovery 按发现记录创建设备，型号按USB标识匹配；
// 网络记录不携带USB标识，按Live处理
func FromDiscovery(rec transport.DiscoveredDevice, cfg Config, logger *zap.Logger, met *metrics.DriverMetrics) (*Device, error) {
	desc := LoupedeckLive
	if rec.Kind == transport.KindSerial {
		m, ok := Lookup(rec.VendorID, rec.ProductID)
		if !ok {
			return nil, fmt.Errorf("unknown device model %04x:%04x at %s", rec.VendorID, rec.ProductID, rec.Address)
		}
		desc = m
	}
	d := newDevice(desc, cfg, logger, met)
	d.kind = rec.Kind
	d.origin = &rec
	return d, nil
}

// Descriptor 型号描述
func (d *Device) Descriptor() *Descriptor { return d.desc }

// InstanceID 驱动侧实例ID
func (d *Device) InstanceID() string { return d.id }

// On 订阅设备事件，返回退订令牌
func (d *Device) On(name string, fn Handler) int { return d.em.On(name, fn) }

// Once 订阅单次事件
func (d *Device) Once(name string, fn Handler) int { return d.em.Once(name, fn) }

// Off 退订
func (d *Device) Off(name string, token int) { d.em.Off(name, token) }

// Ready 通道是否可收发
func (d *Device) Ready() bool {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	return conn != nil && conn.Ready()
}

// State 通道状态
func (d *Device) State() transport.State {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return transport.StateDisconnected
	}
	return conn.State()
}

// Closed 设备是否已终止，终止后不会再重连
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Address 当前通道地址，未连接时为空
func (d *Device) Address() string {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return ""
	}
	return conn.Address()
}

// LastActivity 最近一次收到设备数据的时间
func (d *Device) LastActivity() time.Time {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return time.Time{}
	}
	return conn.LastActivity()
}

// Connect 建立通道并开始分发，已连接时为空操作
func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.conn != nil && d.conn.Ready() {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()
	return d.connectOnce(ctx)
}

// connectOnce 一次完整的建连：解析地址、建通道、登记回调
func (d *Device) connectOnce(ctx context.Context) error {
	kind, addr, err := d.resolveAddress(ctx)
	if err != nil {
		return err
	}
	conn := d.buildConn(kind, addr)
	conn.SetOnMessage(d.onReceive)
	conn.SetOnDisconnect(d.onDisconnect)
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	d.conn = conn
	d.mu.Unlock()
	if d.met != nil {
		d.met.ConnectedDevices.Inc()
	}
	d.logger.Info("设备已连接", zap.String("instance", d.id), zap.String("addr", conn.Address()))
	d.em.Emit(EventConnect, ConnectInfo{Address: conn.Address()})
	return nil
}

// resolveAddress 显式地址原样使用；发现构造的设备首连用原记录，
// 之后每次重连重新发现，优先匹配原序列号或USB标识
func (d *Device) resolveAddress(ctx context.Context) (transport.Kind, string, error) {
	if d.address != "" {
		return d.kind, d.address, nil
	}
	d.mu.Lock()
	origin := d.origin
	used := d.usedOrigin
	d.usedOrigin = true
	d.mu.Unlock()
	if origin != nil && !used {
		return origin.Kind, origin.Address, nil
	}
	recs, err := transport.Discover(ctx, transport.DiscoverOptions{}, d.logger)
	if err != nil {
		return "", "", err
	}
	if len(recs) == 0 {
		return "", "", &transport.ConnError{Op: "discover", Err: fmt.Errorf("no device found")}
	}
	rec := d.pickDiscovered(recs)
	return rec.Kind, rec.Address, nil
}

// pickDiscovered 重连时在候选中挑最可能是原设备的一台
func (d *Device) pickDiscovered(recs []transport.DiscoveredDevice) transport.DiscoveredDevice {
	d.mu.Lock()
	origin := d.origin
	d.mu.Unlock()
	if origin != nil && origin.Serial != "" {
		for _, r := range recs {
			if r.Serial == origin.Serial {
				return r
			}
		}
	}
	for _, r := range recs {
		if r.VendorID == d.desc.VendorID && r.ProductID == d.desc.ProductID {
			return r
		}
	}
	return recs[0]
}

func (d *Device) buildConn(kind transport.Kind, addr string) transport.Connection {
	if d.newConn != nil {
		return d.newConn(kind, addr)
	}
	if kind == transport.KindWS {
		return transport.NewWS(addr, d.cfg.WS, d.logger)
	}
	return transport.NewSerial(addr, d.cfg.Serial, d.logger)
}

// onDisconnect 通道结束回调：未决事务收尾、广播断开、视情况安排重连
func (d *Device) onDisconnect(cause error) {
	d.drainPending()
	if d.met != nil {
		d.met.ConnectedDevices.Dec()
	}
	d.em.Emit(EventDisconnect, cause)
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if !closed && d.sup != nil {
		d.sup.arm(cause)
	}
}

// Close 关闭设备（幂等）：先停重连与定时器，再收尾未决事务，最后关通道
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	conn := d.conn
	d.mu.Unlock()
	if d.sup != nil {
		d.sup.stop()
	}
	d.drainPending()
	if conn != nil {
		_ = conn.Close()
	}
	d.logger.Info("设备已关闭", zap.String("instance", d.id))
	return nil
}

// nextTxnLocked 流水号1..255循环，跳过0（0保留为无应答）
func (d *Device) nextTxnLocked() uint8 {
	d.txnID++
	if d.txnID == 0 {
		d.txnID = 1
	}
	return d.txnID
}

// Send 发送指令，不等待应答，返回占用的流水号
func (d *Device) Send(cmd loupedeck.Command, payload []byte) (uint8, error) {
	return d.send(cmd, payload, nil)
}

// Request 发送指令并登记应答回调。回调恰好触发一次：收到应答时携带载荷，
// 超时或连接结束时携带nil。写失败时登记回滚，回调不触发。
func (d *Device) Request(cmd loupedeck.Command, payload []byte, cont func([]byte)) (uint8, error) {
	return d.send(cmd, payload, cont)
}

func (d *Device) send(cmd loupedeck.Command, payload []byte, cont func([]byte)) (uint8, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	conn := d.conn
	if conn == nil || !conn.Ready() {
		d.mu.Unlock()
		return 0, &CommandError{Cmd: cmd, Err: transport.ErrNotReady}
	}
	id := d.nextTxnLocked()
	if cont != nil {
		d.addPendingLocked(id, cont)
	}
	d.mu.Unlock()

	msg := loupedeck.EncodeMessage(cmd, id, payload)
	if err := conn.Send(msg, false); err != nil {
		if cont != nil {
			d.cancelPending(id)
		}
		return 0, &CommandError{Cmd: cmd, Err: err}
	}
	if d.met != nil {
		d.met.CommandsSent.WithLabelValues(cmd.String()).Inc()
	}
	return id, nil
}

func (d *Device) addPendingLocked(id uint8, cont func([]byte)) {
	if old, ok := d.pending[id]; ok {
		// 同号在途极罕见（255笔未决后回绕），旧项按超时收尾
		old.timer.Stop()
		delete(d.pending, id)
		go old.cont(nil)
		if d.met != nil {
			d.met.PendingTxns.Dec()
		}
	}
	p := &pendingTxn{cont: cont}
	p.timer = time.AfterFunc(d.cfg.ReplyTimeout, func() { d.expirePending(id, p) })
	d.pending[id] = p
	if d.met != nil {
		d.met.PendingTxns.Inc()
	}
}

// cancelPending 写失败回滚：移除登记且不触发回调
func (d *Device) cancelPending(id uint8) {
	d.mu.Lock()
	p, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	p.timer.Stop()
	if d.met != nil {
		d.met.PendingTxns.Dec()
	}
}

func (d *Device) expirePending(id uint8, p *pendingTxn) {
	d.mu.Lock()
	cur, ok := d.pending[id]
	if !ok || cur != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, id)
	d.mu.Unlock()
	if d.met != nil {
		d.met.PendingTxns.Dec()
	}
	d.logger.Debug("应答超时", zap.Uint8("txn", id))
	p.cont(nil)
}

// resolvePending 应答路径：流水号命中则以载荷收尾
func (d *Device) resolvePending(id uint8, payload []byte) {
	if id == 0 {
		return
	}
	d.mu.Lock()
	p, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	p.timer.Stop()
	if d.met != nil {
		d.met.PendingTxns.Dec()
	}
	p.cont(payload)
}

// drainPending 连接结束时全部未决事务以nil收尾
func (d *Device) drainPending() {
	d.mu.Lock()
	pend := d.pending
	d.pending = make(map[uint8]*pendingTxn)
	d.mu.Unlock()
	for _, p := range pend {
		p.timer.Stop()
		if d.met != nil {
			d.met.PendingTxns.Dec()
		}
		p.cont(nil)
	}
}

// onReceive 入站分发：指令查表处理，应答路径与指令分发相互独立
func (d *Device) onReceive(data []byte) {
	msg, ok := loupedeck.DecodeMessage(data)
	if !ok {
		return
	}
	if d.met != nil {
		d.met.MessagesReceived.Inc()
	}
	if h, ok := d.handlers[msg.Cmd]; ok {
		h(msg.Payload)
	} else {
		d.logger.Debug("忽略未知指令", zap.String("cmd", msg.Cmd.String()))
	}
	d.resolvePending(msg.Txn, msg.Payload)
}

// buildHandlers 构造不可变的指令分发表
func (d *Device) buildHandlers() {
	h := map[loupedeck.Command]func([]byte){
		loupedeck.CmdButtonPress: d.onButton,
		loupedeck.CmdKnobRotate:  d.onRotate,
	}
	if d.desc.Touch.Start != 0 {
		h[d.desc.Touch.Start] = func(p []byte) { d.onTouch(p, false) }
		h[d.desc.Touch.End] = func(p []byte) { d.onTouch(p, true) }
	}
	d.handlers = h
}

func (d *Device) emitInput(ev InputEvent) {
	if d.met != nil {
		d.met.InputEvents.WithLabelValues(string(ev.Type)).Inc()
	}
	d.em.Emit(string(ev.Type), ev)
}

func (d *Device) onButton(payload []byte) {
	hw, down, ok := loupedeck.DecodeButton(payload)
	if !ok {
		return
	}
	id, known := d.desc.Buttons[hw]
	if !known {
		d.logger.Debug("忽略未知按键", zap.Uint8("hw", hw))
		return
	}
	typ := EventUp
	if down {
		typ = EventDown
	}
	d.emitInput(InputEvent{Type: typ, Button: id})
	if d.desc.TouchFromButtons {
		d.synthesizeTouch(int(hw), down)
	}
}

func (d *Device) onRotate(payload []byte) {
	hw, delta, ok := loupedeck.DecodeKnob(payload)
	if !ok {
		return
	}
	id, known := d.desc.Buttons[hw]
	if !known {
		d.logger.Debug("忽略未知旋钮", zap.Uint8("hw", hw))
		return
	}
	d.emitInput(InputEvent{Type: EventRotate, Button: id, Delta: int(delta)})
}

// onTouch 原生触摸：同一触点后续上报为移动，end移除触点
func (d *Device) onTouch(payload []byte, end bool) {
	x16, y16, tid, ok := loupedeck.DecodeTouch(payload)
	if !ok {
		return
	}
	x, y, id := int(x16), int(y16), int(tid)
	touch := Touch{ID: id, X: x, Y: y, Target: Target{Key: -1}}
	if d.desc.Resolve != nil {
		if tgt, hit := d.desc.Resolve(d.desc, x, y, id); hit {
			touch.Target = tgt
		}
	}
	d.mu.Lock()
	var typ EventType
	if end {
		typ = EventTouchEnd
		delete(d.touches, id)
	} else {
		if _, moving := d.touches[id]; moving {
			typ = EventTouchMove
		} else {
			typ = EventTouchStart
		}
		d.touches[id] = touch
	}
	active := make([]Touch, 0, len(d.touches))
	for _, t := range d.touches {
		active = append(active, t)
	}
	d.mu.Unlock()
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	d.emitInput(InputEvent{Type: typ, Touches: active, Changed: []Touch{touch}})
}

// synthesizeTouch 网格按键型号：按键报文合成触摸事件，触点落在键格中心
func (d *Device) synthesizeTouch(key int, down bool) {
	col := key % d.desc.Columns
	row := key / d.desc.Columns
	touch := Touch{
		ID:     0,
		X:      col*d.desc.KeySize + d.desc.KeySize/2,
		Y:      row*d.desc.KeySize + d.desc.KeySize/2,
		Target: Target{Screen: "center", Key: key},
	}
	ev := InputEvent{Type: EventTouchEnd, Changed: []Touch{touch}}
	if down {
		ev.Type = EventTouchStart
		ev.Touches = []Touch{touch}
	}
	d.emitInput(ev)
}

// SetBrightness 设置背光亮度，level限定在[0,1]并换算为0..10档
func (d *Device) SetBrightness(level float64) error {
	b := int(math.Round(level * loupedeck.MaxBrightness))
	if b < 0 {
		b = 0
	}
	if b > loupedeck.MaxBrightness {
		b = loupedeck.MaxBrightness
	}
	_, err := d.Send(loupedeck.CmdSetBrightness, []byte{byte(b)})
	return err
}

// SetButtonColor 设置实体按键背光颜色
func (d *Device) SetButtonColor(id ButtonID, c color.Color) error {
	if !d.desc.HasColorButtons {
		return &UnsupportedError{Feature: "button color", Model: d.desc.Type}
	}
	hw, ok := d.desc.ButtonByte(id)
	if !ok {
		return &ValidationError{Field: "button", Value: string(id)}
	}
	r, g, b := rgb8(c)
	_, err := d.Send(loupedeck.CmdSetColor, []byte{hw, r, g, b})
	return err
}

// Vibrate 触发一次震动
func (d *Device) Vibrate(pattern loupedeck.Haptic) error {
	if !d.desc.HasVibration {
		return &UnsupportedError{Feature: "vibration", Model: d.desc.Type}
	}
	_, err := d.Send(loupedeck.CmdSetVibration, []byte{byte(pattern)})
	return err
}

// Reset 复位设备显示状态
func (d *Device) Reset() error {
	_, err := d.Send(loupedeck.CmdReset, nil)
	return err
}

// Info 设备出厂信息
type Info struct {
	Serial  string
	Version string
}

// Info 查询序列号与固件版本，阻塞等待设备应答
func (d *Device) Info(ctx context.Context) (Info, error) {
	serialC := make(chan []byte, 1)
	versionC := make(chan []byte, 1)
	if _, err := d.Request(loupedeck.CmdSerial, nil, func(p []byte) { serialC <- p }); err != nil {
		return Info{}, err
	}
	if _, err := d.Request(loupedeck.CmdVersion, nil, func(p []byte) { versionC <- p }); err != nil {
		return Info{}, err
	}
	var info Info
	for i := 0; i < 2; i++ {
		select {
		case p := <-serialC:
			if p == nil {
				return Info{}, &CommandError{Cmd: loupedeck.CmdSerial, Err: transport.ErrTimeout}
			}
			info.Serial = loupedeck.DecodeSerial(p)
			serialC = nil
		case p := <-versionC:
			if p == nil {
				return Info{}, &CommandError{Cmd: loupedeck.CmdVersion, Err: transport.ErrTimeout}
			}
			v, ok := loupedeck.DecodeVersion(p)
			if !ok {
				return Info{}, &CommandError{Cmd: loupedeck.CmdVersion, Err: fmt.Errorf("short version payload")}
			}
			info.Version = v
			versionC = nil
		case <-ctx.Done():
			return Info{}, ctx.Err()
		}
	}
	return info, nil
}

// UpdateFirmware 分块上传固件镜像。每块载荷为4字节小端偏移加数据，
// 逐块等待确认，任一块失败立即中止。
func (d *Device) UpdateFirmware(ctx context.Context, blob []byte) error {
	if len(blob) == 0 {
		return &ValidationError{Field: "firmware", Value: "empty image"}
	}
	for off := 0; off < len(blob); off += firmwareChunkSize {
		end := off + firmwareChunkSize
		if end > len(blob) {
			end = len(blob)
		}
		payload := make([]byte, 4, 4+end-off)
		binary.LittleEndian.PutUint32(payload, uint32(off))
		payload = append(payload, blob[off:end]...)
		ackC := make(chan []byte, 1)
		if _, err := d.Request(loupedeck.CmdFirmwareUpdate, payload, func(p []byte) { ackC <- p }); err != nil {
			return err
		}
		select {
		case p := <-ackC:
			if p == nil {
				return &CommandError{Cmd: loupedeck.CmdFirmwareUpdate, Err: transport.ErrTimeout}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.logger.Info("固件上传完成", zap.Int("bytes", len(blob)))
	return nil
}

// rgb8 取颜色的8位RGB分量
func rgb8(c color.Color) (uint8, uint8, uint8) {
	r, g, b, _ := c.RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}
