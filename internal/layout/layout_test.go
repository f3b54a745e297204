package layout

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/deck-driver/internal/device"
	"github.com/taoyao-code/deck-driver/internal/transport"
)

func writeLayout(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFile(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err, "文件缺失应回落默认版面")
	require.NotNil(t, l.Brightness)
	assert.Equal(t, 1.0, *l.Brightness)
	assert.Empty(t, l.Buttons)
	assert.Empty(t, l.Keys)
}

func TestLoadValid(t *testing.T) {
	path := writeLayout(t, `
brightness: 0.6
buttons:
  circle: "#ff8800"
  "1": "00ff00"
keys:
  0: red
  5: "#0f0"
`)
	l, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, l.Brightness)
	assert.Equal(t, 0.6, *l.Brightness)
	assert.Equal(t, "#ff8800", l.Buttons["circle"])
	assert.Equal(t, "00ff00", l.Buttons["1"])
	assert.Equal(t, "red", l.Keys[0])
	assert.Equal(t, "#0f0", l.Keys[5])
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"YAML语法错误", "brightness: [unclosed"},
		{"亮度越界", "brightness: 1.5"},
		{"按键颜色无效", "buttons: {circle: notacolor}"},
		{"格子颜色无效", "keys: {0: '#12345'}"},
		{"格子序号为负", "keys: {-1: red}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeLayout(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestApplyAbortsWhenNotReady(t *testing.T) {
	d := device.NewSerialDevice(device.LoupedeckLive, "/dev/fake0", device.Config{}, nil, nil)
	lvl := 0.8
	l := &Layout{Brightness: &lvl}

	err := l.Apply(context.Background(), d, nil)
	assert.ErrorIs(t, err, transport.ErrNotReady, "设备未就绪时应上抛而非静默")
}

func TestApplyKeyFillNotReady(t *testing.T) {
	d := device.NewSerialDevice(device.LoupedeckLive, "/dev/fake0", device.Config{}, nil, nil)
	l := &Layout{Keys: map[int]string{0: "red"}}

	err := l.Apply(context.Background(), d, nil)
	assert.ErrorIs(t, err, transport.ErrNotReady)
}

func TestApplySkipsUnsupportedItems(t *testing.T) {
	// X型号无按键灯，单项跳过而非整体失败
	d := device.NewSerialDevice(device.RazerStreamControllerX, "/dev/fake0", device.Config{}, nil, nil)
	l := &Layout{Buttons: map[string]string{"0": "red"}}

	assert.NoError(t, l.Apply(context.Background(), d, nil))
}

func TestApplySkipsUnknownButton(t *testing.T) {
	d := device.NewSerialDevice(device.LoupedeckLive, "/dev/fake0", device.Config{}, nil, nil)
	l := &Layout{Buttons: map[string]string{"nosuch": "red"}}

	assert.NoError(t, l.Apply(context.Background(), d, nil))
}
