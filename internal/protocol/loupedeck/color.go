package loupedeck

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

var namedColors = map[string]color.RGBA{
	"black": {R: 0x00, G: 0x00, B: 0x00, A: 0xFF},
	"white": {R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
	"red":   {R: 0xFF, G: 0x00, B: 0x00, A: 0xFF},
	"green": {R: 0x00, G: 0xFF, B: 0x00, A: 0xFF},
	"blue":  {R: 0x00, G: 0x00, B: 0xFF, A: 0xFF},
}

// ParseColor 解析颜色字符串：#RGB、#RRGGBB、RRGGBB 或常用色名
func ParseColor(s string) (color.RGBA, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[t]; ok {
		return c, nil
	}
	t = strings.TrimPrefix(t, "#")
	switch len(t) {
	case 3:
		// 短格式逐位展开：f00 -> ff0000
		var expanded [6]byte
		for i := 0; i < 3; i++ {
			expanded[2*i] = t[i]
			expanded[2*i+1] = t[i]
		}
		t = string(expanded[:])
	case 6:
	default:
		return color.RGBA{}, fmt.Errorf("unrecognized color %q", s)
	}
	v, err := strconv.ParseUint(t, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("unrecognized color %q", s)
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xFF,
	}, nil
}
