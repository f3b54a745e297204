package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/deck-driver/internal/config"
	"github.com/taoyao-code/deck-driver/internal/device"
)

// TestBuildDevice 显式设备配置的组装与校验
func TestBuildDevice(t *testing.T) {
	devCfg := device.Config{}

	t.Run("串口设备", func(t *testing.T) {
		d, err := buildDevice(cfgpkg.DeviceConfig{
			Name: "desk", Transport: "serial", Address: "/dev/ttyACM0", Model: "ct",
		}, devCfg, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "Loupedeck CT", d.Descriptor().Type)
	})

	t.Run("网络设备默认Live", func(t *testing.T) {
		d, err := buildDevice(cfgpkg.DeviceConfig{
			Name: "studio", Transport: "WS", Address: "192.168.1.50",
		}, devCfg, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "Loupedeck Live", d.Descriptor().Type)
	})

	t.Run("未知型号", func(t *testing.T) {
		_, err := buildDevice(cfgpkg.DeviceConfig{
			Name: "bad", Transport: "serial", Address: "/dev/ttyACM0", Model: "stream-brick",
		}, devCfg, nil, nil)
		assert.Error(t, err)
	})

	t.Run("缺少地址", func(t *testing.T) {
		_, err := buildDevice(cfgpkg.DeviceConfig{
			Name: "bad", Transport: "serial", Model: "live",
		}, devCfg, nil, nil)
		assert.Error(t, err)
	})

	t.Run("未知传输方式", func(t *testing.T) {
		_, err := buildDevice(cfgpkg.DeviceConfig{
			Name: "bad", Transport: "carrier-pigeon", Address: "somewhere",
		}, devCfg, nil, nil)
		assert.Error(t, err)
	})
}

// TestDeviceConfig 文件配置折算成引擎参数
func TestDeviceConfig(t *testing.T) {
	cfg := &cfgpkg.Config{
		Reconnect: cfgpkg.ReconnectConfig{Enable: true, Interval: 5 * time.Second},
		Draw:      cfgpkg.DrawConfig{Rate: 30, Burst: 4},
		Serial:    cfgpkg.SerialChannelConfig{HandshakeTimeout: 2 * time.Second, PollTimeout: 100 * time.Millisecond},
		WS:        cfgpkg.WSChannelConfig{ConnectTimeout: 3 * time.Second, KeepaliveTimeout: 6 * time.Second, MaxRetries: 2, RetryDelay: 500 * time.Millisecond},
	}
	devCfg := deviceConfig(cfg)

	assert.True(t, devCfg.Reconnect)
	assert.Equal(t, 5*time.Second, devCfg.ReconnectInterval)
	assert.Equal(t, float64(30), devCfg.DrawRate)
	assert.Equal(t, 4, devCfg.DrawBurst)
	assert.Equal(t, 2*time.Second, devCfg.Serial.HandshakeTimeout)
	assert.Equal(t, 2, devCfg.WS.MaxRetries)
}
