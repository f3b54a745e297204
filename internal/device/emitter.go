package device

import "sync"

// Handler 事件订阅回调
type Handler func(payload any)

type subscriber struct {
	id   int
	once bool
	fn   Handler
}

// Emitter 按事件名分发的订阅表。Emit对订阅快照遍历，
// 分发期间的订阅与退订不影响本次分发。
type Emitter struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string][]subscriber
}

// NewEmitter 创建分发器
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]subscriber)}
}

// On 订阅事件，返回退订令牌
func (e *Emitter) On(name string, fn Handler) int {
	return e.subscribe(name, fn, false)
}

// Once 订阅单次事件，触发一次后自动退订
func (e *Emitter) Once(name string, fn Handler) int {
	return e.subscribe(name, fn, true)
}

func (e *Emitter) subscribe(name string, fn Handler, once bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.handlers[name] = append(e.handlers[name], subscriber{id: e.nextID, once: once, fn: fn})
	return e.nextID
}

// Off 退订，令牌无效时为空操作
func (e *Emitter) Off(name string, token int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.handlers[name]
	for i, s := range subs {
		if s.id == token {
			e.handlers[name] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit 依订阅顺序触发全部回调
func (e *Emitter) Emit(name string, payload any) {
	e.mu.Lock()
	subs := e.handlers[name]
	snapshot := make([]subscriber, len(subs))
	copy(snapshot, subs)
	e.mu.Unlock()
	for _, s := range snapshot {
		if s.once {
			e.Off(name, s.id)
		}
		s.fn(payload)
	}
}

// ListenerCount 当前订阅数
func (e *Emitter) ListenerCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[name])
}
