package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/deck-driver/internal/transport"
)

// connFactory 按调用顺序吐出预置的假通道，耗尽后给全新可用通道
type connFactory struct {
	mu    sync.Mutex
	queue []*fakeConn
	built []*fakeConn
	addrs []string
}

func (cf *connFactory) push(fc *fakeConn) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.queue = append(cf.queue, fc)
}

func (cf *connFactory) build(kind transport.Kind, addr string) transport.Connection {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	var fc *fakeConn
	if len(cf.queue) > 0 {
		fc = cf.queue[0]
		cf.queue = cf.queue[1:]
	} else {
		fc = &fakeConn{}
	}
	cf.built = append(cf.built, fc)
	cf.addrs = append(cf.addrs, addr)
	return fc
}

func (cf *connFactory) builds() int {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return len(cf.built)
}

func (cf *connFactory) at(i int) *fakeConn {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.built[i]
}

func (cf *connFactory) builtAddrs() []string {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	out := make([]string, len(cf.addrs))
	copy(out, cf.addrs)
	return out
}

func newReconnectDevice(t *testing.T, cf *connFactory, cfg Config) *Device {
	t.Helper()
	cfg.Reconnect = true
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 20 * time.Millisecond
	}
	d := NewSerialDevice(LoupedeckLive, "/dev/fake0", cfg, zap.NewNop(), nil)
	d.newConn = cf.build
	require.NoError(t, d.Connect(context.Background()))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func waitReconnectInfo(t *testing.T, ch <-chan ReconnectInfo, what string) ReconnectInfo {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("等待%s超时", what)
		panic("unreachable")
	}
}

// TestReconnectAfterDrop 断链后按固定间隔自动重建，显式地址原样复用
func TestReconnectAfterDrop(t *testing.T) {
	cf := &connFactory{}
	d := newReconnectDevice(t, cf, Config{})

	recoC := make(chan ReconnectInfo, 1)
	doneC := make(chan ReconnectInfo, 1)
	d.On(EventReconnecting, func(p any) { recoC <- p.(ReconnectInfo) })
	d.On(EventReconnected, func(p any) { doneC <- p.(ReconnectInfo) })

	cf.at(0).dropLink(errors.New("读失败"))

	info := waitReconnectInfo(t, recoC, "reconnecting")
	assert.Equal(t, 1, info.Attempt)
	info = waitReconnectInfo(t, doneC, "reconnected")
	assert.Equal(t, "fake:0", info.Address)

	assert.Equal(t, 2, cf.builds())
	assert.Equal(t, []string{"/dev/fake0", "/dev/fake0"}, cf.builtAddrs(), "显式地址应原样重试")
	assert.True(t, d.Ready())
}

// TestReconnectRetriesAfterFailure 失败后继续下一轮，尝试计数递增
func TestReconnectRetriesAfterFailure(t *testing.T) {
	cf := &connFactory{}
	// 初次建连成功，第一次重连失败，第二次重连成功
	cf.push(&fakeConn{})
	cf.push(&fakeConn{connectErr: errors.New("端口被占用")})
	d := newReconnectDevice(t, cf, Config{})

	failC := make(chan ReconnectInfo, 1)
	doneC := make(chan ReconnectInfo, 1)
	d.On(EventReconnectFailed, func(p any) { failC <- p.(ReconnectInfo) })
	d.On(EventReconnected, func(p any) { doneC <- p.(ReconnectInfo) })

	cf.at(0).dropLink(errors.New("读失败"))

	fail := waitReconnectInfo(t, failC, "reconnect_failed")
	assert.Equal(t, 1, fail.Attempt)
	require.Error(t, fail.Err)

	done := waitReconnectInfo(t, doneC, "reconnected")
	assert.Equal(t, 2, done.Attempt, "第二轮尝试成功")
	assert.Equal(t, 3, cf.builds())
	assert.True(t, d.Ready())
}

// TestCloseCancelsReconnect 关闭设备取消待决重连
func TestCloseCancelsReconnect(t *testing.T) {
	cf := &connFactory{}
	d := newReconnectDevice(t, cf, Config{ReconnectInterval: 50 * time.Millisecond})

	var reconnecting int32
	d.On(EventReconnecting, func(any) { atomic.AddInt32(&reconnecting, 1) })

	cf.at(0).dropLink(errors.New("读失败"))
	require.NoError(t, d.Close())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, cf.builds(), "关闭后不应再尝试建连")
	assert.Equal(t, int32(0), atomic.LoadInt32(&reconnecting))
}

// TestNoReconnectWhenDisabled 未开启自动重连时断链后保持断开
func TestNoReconnectWhenDisabled(t *testing.T) {
	cf := &connFactory{}
	d := NewSerialDevice(LoupedeckLive, "/dev/fake0", Config{}, zap.NewNop(), nil)
	d.newConn = cf.build
	require.NoError(t, d.Connect(context.Background()))
	defer d.Close()

	cf.at(0).dropLink(errors.New("读失败"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, cf.builds())
	assert.False(t, d.Ready())
}
