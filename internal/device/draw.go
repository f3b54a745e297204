package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"time"

	"github.com/disintegration/gift"

	"github.com/taoyao-code/deck-driver/internal/protocol/loupedeck"
	"github.com/taoyao-code/deck-driver/internal/transport"
)

// Refresh 让屏幕显示最近写入的帧缓冲
func (d *Device) Refresh(screen string) error {
	scr, ok := d.desc.Display(screen)
	if !ok {
		return &ValidationError{Field: "screen", Value: screen}
	}
	_, err := d.Send(loupedeck.CmdDraw, scr.ID[:])
	return err
}

// DrawBuffer 将图像写入屏幕指定区域并刷新显示。
// 载荷为屏幕ID(2字节)、x/y/w/h各大端16位、按屏幕字节序的RGB565像素。
// 区域必须落在屏幕范围内，图像尺寸不符时重采样。
func (d *Device) DrawBuffer(ctx context.Context, screen string, x, y, w, h int, img image.Image) error {
	scr, ok := d.desc.Display(screen)
	if !ok {
		return &ValidationError{Field: "screen", Value: screen}
	}
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > scr.Width || y+h > scr.Height {
		return &ValidationError{Field: "region", Value: fmt.Sprintf("%dx%d@(%d,%d) on %s", w, h, x, y, screen)}
	}
	if err := d.drawLim.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	img = fitImage(img, w, h)

	payload := make([]byte, 0, 10+w*h*2)
	payload = append(payload, scr.ID[0], scr.ID[1])
	payload = binary.BigEndian.AppendUint16(payload, uint16(x+scr.OffsetX))
	payload = binary.BigEndian.AppendUint16(payload, uint16(y))
	payload = binary.BigEndian.AppendUint16(payload, uint16(w))
	payload = binary.BigEndian.AppendUint16(payload, uint16(h))
	b := img.Bounds()
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			r, g, bl, _ := img.At(b.Min.X+col, b.Min.Y+row).RGBA()
			v := loupedeck.PixelRGB565(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			payload = loupedeck.AppendPixel(payload, v, scr.BigEndian)
		}
	}

	ackC := make(chan []byte, 1)
	if _, err := d.Request(loupedeck.CmdFramebuffer, payload, func(p []byte) { ackC <- p }); err != nil {
		return err
	}
	select {
	case p := <-ackC:
		if p == nil {
			return &CommandError{Cmd: loupedeck.CmdFramebuffer, Err: transport.ErrTimeout}
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	if d.met != nil {
		d.met.DrawDuration.Observe(time.Since(start).Seconds())
	}
	return d.Refresh(screen)
}

// Draw 全屏绘制
func (d *Device) Draw(ctx context.Context, screen string, img image.Image) error {
	scr, ok := d.desc.Display(screen)
	if !ok {
		return &ValidationError{Field: "screen", Value: screen}
	}
	return d.DrawBuffer(ctx, screen, 0, 0, scr.Width, scr.Height, img)
}

// FillKey 以纯色填充按键格
func (d *Device) FillKey(ctx context.Context, key int, c color.Color) error {
	img := image.NewRGBA(image.Rect(0, 0, d.desc.KeySize, d.desc.KeySize))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return d.DrawKey(ctx, key, img)
}

// DrawKey 绘制中屏指定按键格。LiveS的中屏覆盖整条硬件条带，
// 按键网格从可见窗口左缘起算，其余型号偏移为0。
func (d *Device) DrawKey(ctx context.Context, key int, img image.Image) error {
	if key < 0 || key >= d.desc.KeyCount() {
		return &ValidationError{Field: "key", Value: strconv.Itoa(key)}
	}
	center, ok := d.desc.Display("center")
	if !ok {
		return &ValidationError{Field: "screen", Value: "center"}
	}
	gridLeft := 0
	if center.Width > d.desc.Columns*d.desc.KeySize {
		gridLeft = d.desc.VisibleX[0]
	}
	x := gridLeft + (key%d.desc.Columns)*d.desc.KeySize
	y := (key / d.desc.Columns) * d.desc.KeySize
	return d.DrawBuffer(ctx, "center", x, y, d.desc.KeySize, d.desc.KeySize, img)
}

// fitImage 尺寸不符时重采样到目标区域
func fitImage(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	g := gift.New(gift.Resize(w, h, gift.LanczosResampling))
	dst := image.NewRGBA(g.Bounds(b))
	g.Draw(dst, img)
	return dst
}
