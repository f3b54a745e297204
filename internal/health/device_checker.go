package health

import (
	"context"
	"time"

	"github.com/taoyao-code/deck-driver/internal/device"
	"github.com/taoyao-code/deck-driver/internal/transport"
)

// DeviceChecker 单台设备健康检查器
type DeviceChecker struct {
	name string
	dev  *device.Device
}

// NewDeviceChecker 创建设备健康检查器
func NewDeviceChecker(name string, dev *device.Device) *DeviceChecker {
	return &DeviceChecker{name: name, dev: dev}
}

// Name 返回检查器名称
func (c *DeviceChecker) Name() string {
	return "device:" + c.name
}

// Check 执行健康检查
func (c *DeviceChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	// 已终止的设备不会再恢复
	if c.dev.Closed() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "device closed",
			Latency: time.Since(start),
		}
	}

	state := c.dev.State()
	details := map[string]interface{}{
		"model":   c.dev.Descriptor().Type,
		"state":   state.String(),
		"address": c.dev.Address(),
	}
	if last := c.dev.LastActivity(); !last.IsZero() {
		details["last_activity"] = last.Format(time.RFC3339)
	}

	// 掉线交由重连监督恢复，报告降级而非不健康
	if state != transport.StateReady {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "awaiting connection",
			Details: details,
			Latency: time.Since(start),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: details,
		Latency: time.Since(start),
	}
}
