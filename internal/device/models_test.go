package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLookup USB标识到型号的映射
func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		vendor   uint16
		product  uint16
		wantType string
		wantOK   bool
	}{
		{name: "Loupedeck Live", vendor: 0x2EC2, product: 0x0004, wantType: "Loupedeck Live", wantOK: true},
		{name: "Loupedeck CT", vendor: 0x2EC2, product: 0x0003, wantType: "Loupedeck CT", wantOK: true},
		{name: "Loupedeck Live S", vendor: 0x2EC2, product: 0x0006, wantType: "Loupedeck Live S", wantOK: true},
		{name: "Razer贴牌Live", vendor: 0x1532, product: 0x0D06, wantType: "Razer Stream Controller", wantOK: true},
		{name: "Razer X", vendor: 0x1532, product: 0x0D09, wantType: "Razer Stream Controller X", wantOK: true},
		{name: "未知设备", vendor: 0xDEAD, product: 0xBEEF, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := Lookup(tt.vendor, tt.product)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantType, m.Type)
			}
		})
	}
}

// TestModelsComplete 注册表包含全部五个型号
func TestModelsComplete(t *testing.T) {
	all := Models()
	assert.Len(t, all, 5)
	seen := make(map[string]bool)
	for _, m := range all {
		seen[m.Type] = true
	}
	assert.Len(t, seen, 5, "型号名不应重复")
}

// TestButtonMaps 各型号硬件键码表
func TestButtonMaps(t *testing.T) {
	tests := []struct {
		name string
		desc *Descriptor
		hw   byte
		want ButtonID
	}{
		{name: "Live旋钮左上", desc: LoupedeckLive, hw: 0x01, want: "knobTL"},
		{name: "Live旋钮右下", desc: LoupedeckLive, hw: 0x06, want: "knobBR"},
		{name: "Live数字键0", desc: LoupedeckLive, hw: 0x07, want: "0"},
		{name: "Live数字键7", desc: LoupedeckLive, hw: 0x0E, want: "7"},
		{name: "CT功能键home", desc: LoupedeckCT, hw: 0x0F, want: "home"},
		{name: "CT功能键e", desc: LoupedeckCT, hw: 0x1A, want: "e"},
		{name: "LiveS旋钮", desc: LoupedeckLiveS, hw: 0x02, want: "knobCL"},
		{name: "X首键即0号", desc: RazerStreamControllerX, hw: 0x00, want: "0"},
		{name: "X末键14号", desc: RazerStreamControllerX, hw: 0x0E, want: "14"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.desc.Buttons[tt.hw]
			require.True(t, ok, "键码0x%02X应在表内", tt.hw)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestModelByName 型号名与简称查找
func TestModelByName(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   *Descriptor
		wantOK bool
	}{
		{name: "简称live", in: "live", want: LoupedeckLive, wantOK: true},
		{name: "简称ct", in: "ct", want: LoupedeckCT, wantOK: true},
		{name: "简称live-s", in: "live-s", want: LoupedeckLiveS, wantOK: true},
		{name: "简称razer-x", in: "razer-x", want: RazerStreamControllerX, wantOK: true},
		{name: "完整型号名", in: "Loupedeck CT", want: LoupedeckCT, wantOK: true},
		{name: "大小写与空白容错", in: "  LIVE  ", want: LoupedeckLive, wantOK: true},
		{name: "未知型号", in: "stream-brick", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := ModelByName(tt.in)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Same(t, tt.want, m)
			}
		})
	}
}

// TestButtonByte 逻辑标识反查硬件键码
func TestButtonByte(t *testing.T) {
	hw, ok := LoupedeckLive.ButtonByte("3")
	require.True(t, ok)
	assert.Equal(t, byte(0x0A), hw)

	_, ok = LoupedeckLive.ButtonByte("no-such-button")
	assert.False(t, ok)
}

// TestTargetResolution 触摸坐标到屏幕区域的解析
func TestTargetResolution(t *testing.T) {
	tests := []struct {
		name    string
		desc    *Descriptor
		x, y    int
		touchID int
		want    Target
		wantHit bool
	}{
		{name: "Live左屏", desc: LoupedeckLive, x: 30, y: 100, want: Target{Screen: "left", Key: -1}, wantHit: true},
		{name: "Live右屏", desc: LoupedeckLive, x: 450, y: 10, want: Target{Screen: "right", Key: -1}, wantHit: true},
		{name: "Live中屏首格", desc: LoupedeckLive, x: 100, y: 50, want: Target{Screen: "center", Key: 0}, wantHit: true},
		{name: "Live中屏第5格", desc: LoupedeckLive, x: 150, y: 130, want: Target{Screen: "center", Key: 5}, wantHit: true},
		{name: "Live中屏末格", desc: LoupedeckLive, x: 419, y: 269, want: Target{Screen: "center", Key: 11}, wantHit: true},
		{name: "CT触点0命中旋钮屏", desc: LoupedeckCT, x: 470, y: 5, touchID: 0, want: Target{Screen: "knob", Key: -1}, wantHit: true},
		{name: "CT普通触点走三段式", desc: LoupedeckCT, x: 100, y: 50, touchID: 1, want: Target{Screen: "center", Key: 0}, wantHit: true},
		{name: "LiveS左边带无命中", desc: LoupedeckLiveS, x: 10, y: 50, wantHit: false},
		{name: "LiveS右边带无命中", desc: LoupedeckLiveS, x: 465, y: 50, wantHit: false},
		{name: "LiveS首格", desc: LoupedeckLiveS, x: 15, y: 0, want: Target{Screen: "center", Key: 0}, wantHit: true},
		{name: "LiveS第5格", desc: LoupedeckLiveS, x: 104, y: 95, want: Target{Screen: "center", Key: 5}, wantHit: true},
		{name: "LiveS末格", desc: LoupedeckLiveS, x: 464, y: 269, want: Target{Screen: "center", Key: 14}, wantHit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.desc.Resolve)
			got, hit := tt.desc.Resolve(tt.desc, tt.x, tt.y, tt.touchID)
			require.Equal(t, tt.wantHit, hit)
			if hit {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// TestDescriptorCapabilities 型号能力开关与屏幕几何
func TestDescriptorCapabilities(t *testing.T) {
	// X型号无旋钮无彩键无马达，触摸靠按键合成
	assert.Empty(t, RazerStreamControllerX.Knobs)
	assert.False(t, RazerStreamControllerX.HasColorButtons)
	assert.False(t, RazerStreamControllerX.HasVibration)
	assert.True(t, RazerStreamControllerX.TouchFromButtons)
	assert.Nil(t, RazerStreamControllerX.Resolve)

	// Live三联屏共享一条硬件条带，靠横向偏移区分
	left, _ := LoupedeckLive.Display("left")
	center, _ := LoupedeckLive.Display("center")
	right, _ := LoupedeckLive.Display("right")
	assert.Equal(t, left.ID, center.ID)
	assert.Equal(t, 60, center.OffsetX)
	assert.Equal(t, 420, right.OffsetX)
	assert.Equal(t, 480, left.Width+center.Width+right.Width)

	// CT旋钮屏独立编号且为大端像素
	knob, ok := LoupedeckCT.Display("knob")
	require.True(t, ok)
	assert.Equal(t, [2]byte{0x00, 'W'}, knob.ID)
	assert.True(t, knob.BigEndian)
	assert.Equal(t, 240, knob.Width)

	// 网格几何
	assert.Equal(t, 12, LoupedeckLive.KeyCount())
	assert.Equal(t, 15, RazerStreamControllerX.KeyCount())
	assert.Equal(t, [2]int{15, 465}, LoupedeckLiveS.VisibleX)
}
