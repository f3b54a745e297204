package loupedeck

// PixelRGB565 将RGB888压缩为RGB565
func PixelRGB565(r, g, b uint8) uint16 {
	return uint16(b)>>3 | uint16(g&0xFC)<<3 | uint16(r&0xF8)<<8
}

// AppendPixel 按屏幕字节序追加一个RGB565像素（默认小端，个别屏幕为大端）
func AppendPixel(dst []byte, v uint16, bigEndian bool) []byte {
	if bigEndian {
		return append(dst, byte(v>>8), byte(v))
	}
	return append(dst, byte(v), byte(v>>8))
}
