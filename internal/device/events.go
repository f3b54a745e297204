package device

// EventType 输入事件类型，同时用作事件订阅名
type EventType string

const (
	EventDown       EventType = "down"
	EventUp         EventType = "up"
	EventRotate     EventType = "rotate"
	EventTouchStart EventType = "touchstart"
	EventTouchMove  EventType = "touchmove"
	EventTouchEnd   EventType = "touchend"
)

// 生命周期事件名
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventReconnecting    = "reconnecting"
	EventReconnected     = "reconnected"
	EventReconnectFailed = "reconnect_failed"
)

// Target 触摸命中的屏幕区域，Key为-1表示未落在按键格上
type Target struct {
	Screen string
	Key    int
}

// Touch 一个活动触点
type Touch struct {
	ID     int
	X      int
	Y      int
	Target Target
}

// InputEvent 设备输入事件载荷
type InputEvent struct {
	Type    EventType
	Button  ButtonID // down/up/rotate
	Delta   int      // rotate：正为顺时针
	Touches []Touch  // 事件后的全部活动触点，按ID升序
	Changed []Touch  // 本次变化的触点
}

// ConnectInfo connect事件载荷
type ConnectInfo struct {
	Address string
}

// ReconnectInfo 重连进度事件载荷
type ReconnectInfo struct {
	Attempt int
	Address string
	Err     error
}
