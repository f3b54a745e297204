package push

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/deck-driver/internal/device"
)

// EventSource 可订阅的设备事件面
type EventSource interface {
	On(name string, fn device.Handler) int
}

// Bridge 把设备事件折算成推送事件并入队
type Bridge struct {
	queue  *Queue
	logger *zap.Logger
}

// NewBridge 创建事件桥
func NewBridge(queue *Queue, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{queue: queue, logger: logger}
}

// Attach 订阅一台设备的输入与生命周期事件
func (b *Bridge) Attach(name string, src EventSource) {
	for devType := range inputEventTypes {
		t := devType
		src.On(string(t), func(p any) {
			ev, ok := p.(device.InputEvent)
			if !ok {
				return
			}
			b.queue.Enqueue(FromInput(name, ev))
		})
	}

	src.On(device.EventConnect, func(p any) {
		data := map[string]any{}
		if info, ok := p.(device.ConnectInfo); ok {
			data["address"] = info.Address
		}
		b.queue.Enqueue(NewEvent(EventDeviceConnected, name, data))
	})
	src.On(device.EventDisconnect, func(p any) {
		data := map[string]any{}
		if err, ok := p.(error); ok && err != nil {
			data["reason"] = err.Error()
		}
		b.queue.Enqueue(NewEvent(EventDeviceDisconnected, name, data))
	})
	src.On(device.EventReconnected, func(p any) {
		data := map[string]any{}
		if info, ok := p.(device.ReconnectInfo); ok {
			data["attempt"] = info.Attempt
			data["address"] = info.Address
		}
		b.queue.Enqueue(NewEvent(EventDeviceReconnected, name, data))
	})

	b.logger.Info("device events bridged", zap.String("device", name))
}
