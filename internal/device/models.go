package device

import (
	"strconv"
	"strings"

	"github.com/taoyao-code/deck-driver/internal/protocol/loupedeck"
)

// liveButtons Live系硬件键码：0x01起为旋钮，0x07起为数字键
func liveButtons() map[byte]ButtonID {
	m := map[byte]ButtonID{
		0x01: "knobTL", 0x02: "knobCL", 0x03: "knobBL",
		0x04: "knobTR", 0x05: "knobCR", 0x06: "knobBR",
	}
	for i := 0; i < 8; i++ {
		m[byte(0x07+i)] = ButtonID(strconv.Itoa(i))
	}
	return m
}

// ctButtons CT在Live基础上追加功能键区
func ctButtons() map[byte]ButtonID {
	m := liveButtons()
	extras := []ButtonID{"home", "enter", "undo", "save", "keyboard", "fnL", "a", "b", "c", "d", "fnR", "e"}
	for i, id := range extras {
		m[byte(0x0F+i)] = id
	}
	return m
}

// liveSButtons LiveS仅两枚旋钮与四个数字键
func liveSButtons() map[byte]ButtonID {
	m := map[byte]ButtonID{0x01: "knobTL", 0x02: "knobCL"}
	for i := 0; i < 4; i++ {
		m[byte(0x07+i)] = ButtonID(strconv.Itoa(i))
	}
	return m
}

// gridButtons 键码即网格序号的型号
func gridButtons(n int) map[byte]ButtonID {
	m := make(map[byte]ButtonID, n)
	for i := 0; i < n; i++ {
		m[byte(i)] = ButtonID(strconv.Itoa(i))
	}
	return m
}

var (
	// LoupedeckLive 三联屏加4x3触摸网格
	LoupedeckLive = &Descriptor{
		Type:      "Loupedeck Live",
		VendorID:  0x2EC2,
		ProductID: 0x0004,
		KeySize:   90,
		Rows:      3,
		Columns:   4,
		VisibleX:  [2]int{0, 480},
		Buttons:   liveButtons(),
		Knobs:     []ButtonID{"knobTL", "knobCL", "knobBL", "knobTR", "knobCR", "knobBR"},
		Displays: map[string]*Screen{
			"left":   {ID: [2]byte{0x00, 'M'}, Width: 60, Height: 270},
			"center": {ID: [2]byte{0x00, 'M'}, Width: 360, Height: 270, OffsetX: 60},
			"right":  {ID: [2]byte{0x00, 'M'}, Width: 60, Height: 270, OffsetX: 420},
		},
		Touch:           TouchCodes{Start: loupedeck.CmdTouch, End: loupedeck.CmdTouchEnd},
		HasColorButtons: true,
		HasVibration:    true,
		Resolve:         liveTarget,
	}

	// LoupedeckCT 独立三联屏加旋钮圆屏，旋钮屏像素为大端序
	LoupedeckCT = &Descriptor{
		Type:      "Loupedeck CT",
		VendorID:  0x2EC2,
		ProductID: 0x0003,
		KeySize:   90,
		Rows:      3,
		Columns:   4,
		VisibleX:  [2]int{0, 480},
		Buttons:   ctButtons(),
		Knobs:     []ButtonID{"knobTL", "knobCL", "knobBL", "knobTR", "knobCR", "knobBR"},
		Displays: map[string]*Screen{
			"left":   {ID: [2]byte{0x00, 'L'}, Width: 60, Height: 270},
			"center": {ID: [2]byte{0x00, 'A'}, Width: 360, Height: 270},
			"right":  {ID: [2]byte{0x00, 'R'}, Width: 60, Height: 270},
			"knob":   {ID: [2]byte{0x00, 'W'}, Width: 240, Height: 240, BigEndian: true},
		},
		Touch:           TouchCodes{Start: loupedeck.CmdTouchCT, End: loupedeck.CmdTouchEndCT},
		HasColorButtons: true,
		HasVibration:    true,
		Resolve:         ctTarget,
	}

	// LoupedeckLiveS 单屏紧凑型，屏幕两侧各有15像素不可见边带
	LoupedeckLiveS = &Descriptor{
		Type:      "Loupedeck Live S",
		VendorID:  0x2EC2,
		ProductID: 0x0006,
		KeySize:   90,
		Rows:      3,
		Columns:   5,
		VisibleX:  [2]int{15, 465},
		Buttons:   liveSButtons(),
		Knobs:     []ButtonID{"knobTL", "knobCL"},
		Displays: map[string]*Screen{
			"center": {ID: [2]byte{0x00, 'M'}, Width: 480, Height: 270},
		},
		Touch:           TouchCodes{Start: loupedeck.CmdTouch, End: loupedeck.CmdTouchEnd},
		HasColorButtons: true,
		HasVibration:    true,
		Resolve:         singleScreenTarget,
	}

	// RazerStreamController Live的贴牌版本，仅USB标识不同
	RazerStreamController = &Descriptor{
		Type:      "Razer Stream Controller",
		VendorID:  0x1532,
		ProductID: 0x0D06,
		KeySize:   90,
		Rows:      3,
		Columns:   4,
		VisibleX:  [2]int{0, 480},
		Buttons:   liveButtons(),
		Knobs:     []ButtonID{"knobTL", "knobCL", "knobBL", "knobTR", "knobCR", "knobBR"},
		Displays: map[string]*Screen{
			"left":   {ID: [2]byte{0x00, 'M'}, Width: 60, Height: 270},
			"center": {ID: [2]byte{0x00, 'M'}, Width: 360, Height: 270, OffsetX: 60},
			"right":  {ID: [2]byte{0x00, 'M'}, Width: 60, Height: 270, OffsetX: 420},
		},
		Touch:           TouchCodes{Start: loupedeck.CmdTouch, End: loupedeck.CmdTouchEnd},
		HasColorButtons: true,
		HasVibration:    true,
		Resolve:         liveTarget,
	}

	// RazerStreamControllerX 纯按键网格，无旋钮、无背光彩键、无马达，
	// 屏幕按键以按键报文上报
	RazerStreamControllerX = &Descriptor{
		Type:      "Razer Stream Controller X",
		VendorID:  0x1532,
		ProductID: 0x0D09,
		KeySize:   96,
		Rows:      3,
		Columns:   5,
		VisibleX:  [2]int{0, 480},
		Buttons:   gridButtons(15),
		Displays: map[string]*Screen{
			"center": {ID: [2]byte{0x00, 'M'}, Width: 480, Height: 288},
		},
		TouchFromButtons: true,
	}
)

var models = []*Descriptor{
	LoupedeckCT,
	LoupedeckLive,
	LoupedeckLiveS,
	RazerStreamController,
	RazerStreamControllerX,
}

// Lookup 按USB标识查找型号
func Lookup(vendorID, productID uint16) (*Descriptor, bool) {
	for _, m := range models {
		if m.VendorID == vendorID && m.ProductID == productID {
			return m, true
		}
	}
	return nil, false
}

var modelAliases = map[string]*Descriptor{
	"live":    LoupedeckLive,
	"ct":      LoupedeckCT,
	"live-s":  LoupedeckLiveS,
	"lives":   LoupedeckLiveS,
	"razer":   RazerStreamController,
	"razer-x": RazerStreamControllerX,
}

// ModelByName 按型号名或简称查找，大小写不敏感
func ModelByName(name string) (*Descriptor, bool) {
	t := strings.ToLower(strings.TrimSpace(name))
	if m, ok := modelAliases[t]; ok {
		return m, true
	}
	for _, m := range models {
		if strings.ToLower(m.Type) == t {
			return m, true
		}
	}
	return nil, false
}

// Models 全部已知型号
func Models() []*Descriptor {
	out := make([]*Descriptor, len(models))
	copy(out, models)
	return out
}
