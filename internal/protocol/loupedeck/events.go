package loupedeck

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DecodeButton 解析按键上报：payload[0]=硬件键码，payload[1]=0x00表示按下
func DecodeButton(payload []byte) (id byte, down bool, ok bool) {
	if len(payload) < 2 {
		return 0, false, false
	}
	return payload[0], payload[1] == 0x00, true
}

// DecodeKnob 解析旋钮上报：payload[0]=硬件键码，payload[1]=有符号步进
func DecodeKnob(payload []byte) (id byte, delta int8, ok bool) {
	if len(payload) < 2 {
		return 0, 0, false
	}
	return payload[0], int8(payload[1]), true
}

// DecodeTouch 解析触摸上报：x/y为大端16位坐标，payload[5]=触点ID
func DecodeTouch(payload []byte) (x, y uint16, id uint8, ok bool) {
	if len(payload) < 6 {
		return 0, 0, 0, false
	}
	x = binary.BigEndian.Uint16(payload[1:3])
	y = binary.BigEndian.Uint16(payload[3:5])
	return x, y, payload[5], true
}

// DecodeVersion 固件版本号 major.minor.patch
func DecodeVersion(payload []byte) (string, bool) {
	if len(payload) < 3 {
		return "", false
	}
	return fmt.Sprintf("%d.%d.%d", payload[0], payload[1], payload[2]), true
}

// DecodeSerial 设备序列号（去除两端空白）
func DecodeSerial(payload []byte) string {
	return strings.TrimSpace(string(payload))
}
