package loupedeck

import (
	"fmt"
	"strings"
)

// Magic 帧起始标志
const Magic byte = 0x82

// HeaderLen 报文头长度：总长(1) + 指令(1) + 流水号(1)
const HeaderLen = 3

// MaxBrightness 亮度档位上限（0x00~0x0A）
const MaxBrightness = 10

// Command 指令码
type Command uint8

const (
	CmdButtonPress    Command = 0x00
	CmdKnobRotate     Command = 0x01
	CmdSetColor       Command = 0x02
	CmdSerial         Command = 0x03
	CmdReset          Command = 0x06
	CmdVersion        Command = 0x07
	CmdSetBrightness  Command = 0x09
	CmdFirmwareUpdate Command = 0x0c
	CmdMCU            Command = 0x0d
	CmdDraw           Command = 0x0f
	CmdFramebuffer    Command = 0x10
	CmdSetVibration   Command = 0x1b
	CmdTouch          Command = 0x4d
	CmdTouchCT        Command = 0x52
	CmdTouchEnd       Command = 0x6d
	CmdTouchEndCT     Command = 0x72
)

var commandNames = map[Command]string{
	CmdButtonPress:    "button_press",
	CmdKnobRotate:     "knob_rotate",
	CmdSetColor:       "set_color",
	CmdSerial:         "serial",
	CmdReset:          "reset",
	CmdVersion:        "version",
	CmdSetBrightness:  "set_brightness",
	CmdFirmwareUpdate: "firmware_update",
	CmdMCU:            "mcu",
	CmdDraw:           "draw",
	CmdFramebuffer:    "framebuffer",
	CmdSetVibration:   "set_vibration",
	CmdTouch:          "touch",
	CmdTouchCT:        "touch_ct",
	CmdTouchEnd:       "touch_end",
	CmdTouchEndCT:     "touch_end_ct",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("0x%02x", uint8(c))
}

// Haptic 震动波形编号
type Haptic uint8

const (
	HapticShort    Haptic = 0x01
	HapticMedium   Haptic = 0x0a
	HapticLong     Haptic = 0x0f
	HapticLow      Haptic = 0x31
	HapticLower    Haptic = 0x40
	HapticLowest   Haptic = 0x41
	HapticBuzz     Haptic = 0x70
	HapticKnock    Haptic = 0x71
	HapticVeryLong Haptic = 0x76
)

var hapticNames = map[string]Haptic{
	"short":     HapticShort,
	"medium":    HapticMedium,
	"long":      HapticLong,
	"low":       HapticLow,
	"lower":     HapticLower,
	"lowest":    HapticLowest,
	"buzz":      HapticBuzz,
	"knock":     HapticKnock,
	"very_long": HapticVeryLong,
}

// ParseHaptic 按名称查找震动波形
func ParseHaptic(name string) (Haptic, bool) {
	h, ok := hapticNames[strings.ToLower(strings.TrimSpace(name))]
	return h, ok
}

// Message 一条解帧后的协议报文
// 布局：totalLen(1) | cmd(1) | txn(1) | payload[..]
type Message struct {
	Length  uint8
	Cmd     Command
	Txn     uint8
	Payload []byte
}

// EncodeMessage 构造下行报文：头3字节{总长(超255时截断为0xFF), 指令, 流水号} + 载荷
func EncodeMessage(cmd Command, txn uint8, payload []byte) []byte {
	total := HeaderLen + len(payload)
	if total > 0xFF {
		total = 0xFF
	}
	buf := make([]byte, 0, HeaderLen+len(payload))
	buf = append(buf, byte(total), byte(cmd), txn)
	buf = append(buf, payload...)
	return buf
}

// DecodeMessage 解析上行报文头
// 长度字段仅作截断参考：小于实际数据时按声明截断，大于实际数据时以实际为准。
func DecodeMessage(data []byte) (Message, bool) {
	if len(data) < HeaderLen {
		return Message{}, false
	}
	m := Message{Length: data[0], Cmd: Command(data[1]), Txn: data[2]}
	end := len(data)
	n := int(m.Length)
	switch {
	case n <= HeaderLen:
		end = HeaderLen
	case n < end:
		end = n
	}
	m.Payload = data[HeaderLen:end]
	return m, true
}
