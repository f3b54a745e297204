package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/taoyao-code/deck-driver/internal/device"
)

// Entry 一台已纳管设备
type Entry struct {
	Name   string
	Device *device.Device
}

// Registry 名称到设备引擎的绑定表，遍历保持绑定顺序
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*device.Device
	order   []string
}

func New() *Registry {
	return &Registry{devices: make(map[string]*device.Device)}
}

// Bind 纳管设备，重名报错
func (r *Registry) Bind(name string, d *device.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[name]; exists {
		return fmt.Errorf("device name %q already bound", name)
	}
	r.devices[name] = d
	r.order = append(r.order, name)
	return nil
}

// Get 按名称取设备
func (r *Registry) Get(name string) (*device.Device, bool) {
	r.mu.RLock()
	d, ok := r.devices[name]
	r.mu.RUnlock()
	return d, ok
}

// Remove 解除纳管，设备本身不关闭
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[name]; !ok {
		return
	}
	delete(r.devices, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Names 绑定顺序的名称表
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Entries 绑定顺序的设备快照
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Entry{Name: name, Device: r.devices[name]})
	}
	return out
}

// ReadyCount 当前可收发的设备数
func (r *Registry) ReadyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, d := range r.devices {
		if d.Ready() {
			n++
		}
	}
	return n
}

// IdleSince 判断设备自given时刻起是否再无数据
func (r *Registry) IdleSince(name string, since time.Time) bool {
	r.mu.RLock()
	d, ok := r.devices[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	last := d.LastActivity()
	return last.IsZero() || last.Before(since)
}

// CloseAll 关闭全部设备，停机用
func (r *Registry) CloseAll() {
	for _, e := range r.Entries() {
		_ = e.Device.Close()
	}
}
