package layout

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/deck-driver/internal/device"
	"github.com/taoyao-code/deck-driver/internal/protocol/loupedeck"
	"github.com/taoyao-code/deck-driver/internal/transport"
)

// Layout 启动版面：背光亮度、按键灯色、格子底色
type Layout struct {
	Brightness *float64          `yaml:"brightness"`
	Buttons    map[string]string `yaml:"buttons"`
	Keys       map[int]string    `yaml:"keys"`
}

// Default 返回默认版面：满亮度，不配灯色
func Default() *Layout {
	full := 1.0
	return &Layout{Brightness: &full}
}

// Load 读取版面文件。文件不存在时返回默认版面，内容非法时报错。
func Load(path string) (*Layout, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read layout: %w", err)
	}
	var l Layout
	if err := yaml.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("unmarshal layout: %w", err)
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l *Layout) validate() error {
	if l.Brightness != nil && (*l.Brightness < 0 || *l.Brightness > 1) {
		return fmt.Errorf("layout brightness %v out of range [0,1]", *l.Brightness)
	}
	for id, c := range l.Buttons {
		if _, err := loupedeck.ParseColor(c); err != nil {
			return fmt.Errorf("layout button %s: %w", id, err)
		}
	}
	for key, c := range l.Keys {
		if key < 0 {
			return fmt.Errorf("layout key %d out of range", key)
		}
		if _, err := loupedeck.ParseColor(c); err != nil {
			return fmt.Errorf("layout key %d: %w", key, err)
		}
	}
	return nil
}

// Apply 将版面下发到设备。单项不适用时记日志跳过，通道级失败立即返回。
func (l *Layout) Apply(ctx context.Context, d *device.Device, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if l.Brightness != nil {
		if err := itemResult(logger, "brightness", d.SetBrightness(*l.Brightness)); err != nil {
			return err
		}
	}
	for id, s := range l.Buttons {
		c, err := loupedeck.ParseColor(s)
		if err != nil {
			logger.Warn("版面颜色无效", zap.String("button", id), zap.Error(err))
			continue
		}
		if err := itemResult(logger, "button "+id, d.SetButtonColor(device.ButtonID(id), c)); err != nil {
			return err
		}
	}
	for key, s := range l.Keys {
		c, err := loupedeck.ParseColor(s)
		if err != nil {
			logger.Warn("版面颜色无效", zap.Int("key", key), zap.Error(err))
			continue
		}
		if err := itemResult(logger, fmt.Sprintf("key %d", key), d.FillKey(ctx, key, c)); err != nil {
			return err
		}
	}
	return nil
}

// itemResult 版面项错误分级：通道级失败上抛，型号不适用等记日志放过
func itemResult(logger *zap.Logger, item string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, device.ErrClosed) || errors.Is(err, transport.ErrNotReady) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logger.Warn("版面项未生效", zap.String("item", item), zap.Error(err))
	return nil
}
