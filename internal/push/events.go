package push

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/deck-driver/internal/device"
)

// EventType 外推事件类型
type EventType string

const (
	EventButtonDown EventType = "button.down"
	EventButtonUp   EventType = "button.up"
	EventKnobRotate EventType = "knob.rotate"
	EventTouchStart EventType = "touch.start"
	EventTouchMove  EventType = "touch.move"
	EventTouchEnd   EventType = "touch.end"

	EventDeviceConnected    EventType = "device.connected"
	EventDeviceDisconnected EventType = "device.disconnected"
	EventDeviceReconnected  EventType = "device.reconnected"
)

// Event 推送给Webhook的标准事件
type Event struct {
	EventID   string         `json:"event_id"`   // 事件唯一ID（用于接收端去重）
	EventType EventType      `json:"event_type"` // 事件类型
	Device    string         `json:"device"`     // 注册表里的设备名
	Timestamp int64          `json:"timestamp"`  // Unix秒
	Nonce     string         `json:"nonce"`      // 随机数（用于签名）
	Data      map[string]any `json:"data"`       // 具体事件数据
}

// NewEvent 创建标准事件
func NewEvent(eventType EventType, deviceName string, data map[string]any) *Event {
	return &Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Device:    deviceName,
		Timestamp: time.Now().Unix(),
		Nonce:     fmt.Sprintf("%08x", rand.Uint32()),
		Data:      data,
	}
}

var inputEventTypes = map[device.EventType]EventType{
	device.EventDown:       EventButtonDown,
	device.EventUp:         EventButtonUp,
	device.EventRotate:     EventKnobRotate,
	device.EventTouchStart: EventTouchStart,
	device.EventTouchMove:  EventTouchMove,
	device.EventTouchEnd:   EventTouchEnd,
}

// FromInput 把设备输入事件折算成推送事件
func FromInput(deviceName string, ev device.InputEvent) *Event {
	t, ok := inputEventTypes[ev.Type]
	if !ok {
		return nil
	}
	data := map[string]any{}
	switch ev.Type {
	case device.EventDown, device.EventUp:
		data["button"] = string(ev.Button)
	case device.EventRotate:
		data["knob"] = string(ev.Button)
		data["delta"] = ev.Delta
	default:
		data["touches"] = touchList(ev.Changed)
	}
	return NewEvent(t, deviceName, data)
}

func touchList(touches []device.Touch) []map[string]any {
	out := make([]map[string]any, 0, len(touches))
	for _, t := range touches {
		out = append(out, map[string]any{
			"id":     t.ID,
			"x":      t.X,
			"y":      t.Y,
			"screen": t.Target.Screen,
			"key":    t.Target.Key,
		})
	}
	return out
}
