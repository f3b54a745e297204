package device

import (
	"github.com/taoyao-code/deck-driver/internal/protocol/loupedeck"
)

// ButtonID 按键逻辑标识，数字键为"0"、"1"等字符串形式
type ButtonID string

// Screen 一块可绘制屏幕
type Screen struct {
	ID        [2]byte
	Width     int
	Height    int
	OffsetX   int  // 共享硬件条带时的横向偏移
	BigEndian bool // 像素字节序
}

// TouchCodes 原生触摸上报指令码，零值表示该型号无原生触摸
type TouchCodes struct {
	Start loupedeck.Command
	End   loupedeck.Command
}

// TargetFunc 触摸坐标到屏幕区域的解析策略，返回false表示坐标落在可见区外
type TargetFunc func(d *Descriptor, x, y, touchID int) (Target, bool)

// Descriptor 型号描述，注册表内共享，调用方不得修改
type Descriptor struct {
	Type      string
	VendorID  uint16
	ProductID uint16

	KeySize  int
	Rows     int
	Columns  int
	VisibleX [2]int

	Buttons  map[byte]ButtonID
	Knobs    []ButtonID
	Displays map[string]*Screen

	Touch            TouchCodes
	TouchFromButtons bool // 屏幕按键以按键报文上报，触摸靠合成
	HasColorButtons  bool
	HasVibration     bool

	Resolve TargetFunc
}

// Display 按名称查找屏幕
func (d *Descriptor) Display(name string) (*Screen, bool) {
	s, ok := d.Displays[name]
	return s, ok
}

// ButtonByte 逻辑标识反查硬件键码
func (d *Descriptor) ButtonByte(id ButtonID) (byte, bool) {
	for hw, v := range d.Buttons {
		if v == id {
			return hw, true
		}
	}
	return 0, false
}

// KeyCount 中屏按键格数量
func (d *Descriptor) KeyCount() int {
	return d.Rows * d.Columns
}

// liveTarget 左/中/右三段式解析，中段按网格换算按键号
func liveTarget(d *Descriptor, x, y, _ int) (Target, bool) {
	left := d.Displays["left"]
	center := d.Displays["center"]
	if x < left.Width {
		return Target{Screen: "left", Key: -1}, true
	}
	if x >= left.Width+center.Width {
		return Target{Screen: "right", Key: -1}, true
	}
	col := (x - left.Width) / d.KeySize
	row := y / d.KeySize
	return Target{Screen: "center", Key: row*d.Columns + col}, true
}

// ctTarget 触点ID为0时固定命中旋钮屏
func ctTarget(d *Descriptor, x, y, id int) (Target, bool) {
	if id == 0 {
		return Target{Screen: "knob", Key: -1}, true
	}
	return liveTarget(d, x, y, id)
}

// singleScreenTarget 单屏型号，可见窗口外无命中
func singleScreenTarget(d *Descriptor, x, y, _ int) (Target, bool) {
	if x < d.VisibleX[0] || x >= d.VisibleX[1] {
		return Target{}, false
	}
	col := (x - d.VisibleX[0]) / d.KeySize
	row := y / d.KeySize
	return Target{Screen: "center", Key: row*d.Columns + col}, true
}
