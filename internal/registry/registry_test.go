package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/deck-driver/internal/device"
	"github.com/taoyao-code/deck-driver/internal/protocol/loupedeck"
)

func newDevice(t *testing.T) *device.Device {
	t.Helper()
	return device.NewSerialDevice(device.LoupedeckLive, "/dev/fake0", device.Config{}, nil, nil)
}

func TestBindAndGet(t *testing.T) {
	r := New()
	d := newDevice(t)

	require.NoError(t, r.Bind("desk", d), "首次绑定应成功")

	got, ok := r.Get("desk")
	assert.True(t, ok)
	assert.Same(t, d, got)

	_, ok = r.Get("missing")
	assert.False(t, ok, "未绑定名称不应命中")
}

func TestBindDuplicateName(t *testing.T) {
	r := New()
	require.NoError(t, r.Bind("desk", newDevice(t)))

	err := r.Bind("desk", newDevice(t))
	assert.Error(t, err, "重名绑定应报错")

	assert.Equal(t, []string{"desk"}, r.Names())
}

func TestOrderPreserved(t *testing.T) {
	r := New()
	names := []string{"studio", "desk", "shelf"}
	for _, n := range names {
		require.NoError(t, r.Bind(n, newDevice(t)))
	}

	assert.Equal(t, names, r.Names(), "Names应按绑定顺序返回")

	entries := r.Entries()
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, names[i], e.Name)
	}
}

func TestRemove(t *testing.T) {
	r := New()
	require.NoError(t, r.Bind("a", newDevice(t)))
	require.NoError(t, r.Bind("b", newDevice(t)))
	require.NoError(t, r.Bind("c", newDevice(t)))

	r.Remove("b")

	assert.Equal(t, []string{"a", "c"}, r.Names())
	_, ok := r.Get("b")
	assert.False(t, ok)

	// 删除不存在的名称是空操作
	r.Remove("b")
	assert.Equal(t, []string{"a", "c"}, r.Names())

	// 解绑后名称可复用
	require.NoError(t, r.Bind("b", newDevice(t)))
	assert.Equal(t, []string{"a", "c", "b"}, r.Names())
}

func TestReadyCount(t *testing.T) {
	r := New()
	require.NoError(t, r.Bind("a", newDevice(t)))
	require.NoError(t, r.Bind("b", newDevice(t)))

	assert.Equal(t, 0, r.ReadyCount(), "未连接设备不计入就绪数")
}

func TestIdleSince(t *testing.T) {
	r := New()
	require.NoError(t, r.Bind("a", newDevice(t)))

	assert.True(t, r.IdleSince("a", time.Now()), "从未收到数据的设备视为空闲")
	assert.False(t, r.IdleSince("missing", time.Now()), "未绑定名称不视为空闲")
}

func TestCloseAll(t *testing.T) {
	r := New()
	d1 := newDevice(t)
	d2 := newDevice(t)
	require.NoError(t, r.Bind("a", d1))
	require.NoError(t, r.Bind("b", d2))

	r.CloseAll()

	_, err := d1.Send(loupedeck.CmdSetBrightness, []byte{0x05})
	assert.ErrorIs(t, err, device.ErrClosed)
	_, err = d2.Send(loupedeck.CmdSetBrightness, []byte{0x05})
	assert.ErrorIs(t, err, device.ErrClosed)
}
