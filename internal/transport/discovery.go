package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// 串口设备厂商过滤
var (
	serialVendorIDs     = []uint16{0x2EC2, 0x1532} // Loupedeck / Razer
	serialManufacturers = []string{"Loupedeck", "Razer"}
)

// DiscoverSerial 枚举本机匹配厂商的串口设备
func DiscoverSerial(logger *zap.Logger) ([]DiscoveredDevice, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	var out []DiscoveredDevice
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		vid := parseUSBID(p.VID)
		pid := parseUSBID(p.PID)
		if !serialVendorMatch(vid, p.Product) {
			continue
		}
		logger.Debug("serial device found",
			zap.String("port", p.Name),
			zap.String("vid", p.VID),
			zap.String("pid", p.PID),
			zap.String("serial", p.SerialNumber))
		out = append(out, DiscoveredDevice{
			Kind:      KindSerial,
			Address:   p.Name,
			VendorID:  vid,
			ProductID: pid,
			Product:   p.Product,
			Serial:    p.SerialNumber,
		})
	}
	return out, nil
}

// parseUSBID 解析枚举器给出的十六进制ID字符串
func parseUSBID(s string) uint16 {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

func serialVendorMatch(vid uint16, product string) bool {
	for _, id := range serialVendorIDs {
		if vid == id {
			return true
		}
	}
	for _, m := range serialManufacturers {
		if product != "" && strings.Contains(product, m) {
			return true
		}
	}
	return false
}

// ProbeWS 并发探测候选地址是否为可连通的设备WebSocket端点
// 候选地址的产生（网段扫描等）由调用方负责。
func ProbeWS(ctx context.Context, hosts []string, timeout time.Duration, logger *zap.Logger) []DiscoveredDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	var (
		mu  sync.Mutex
		out []DiscoveredDevice
		wg  sync.WaitGroup
	)
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	for _, h := range hosts {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			addr := wsAddress(host)
			conn, _, err := dialer.DialContext(ctx, addr, nil)
			if err != nil {
				logger.Debug("ws probe failed", zap.String("addr", addr), zap.Error(err))
				return
			}
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			logger.Debug("ws probe hit", zap.String("addr", addr))
			mu.Lock()
			out = append(out, DiscoveredDevice{Kind: KindWS, Address: host})
			mu.Unlock()
		}(h)
	}
	wg.Wait()
	return out
}

// DiscoverOptions 设备发现选项
type DiscoverOptions struct {
	SkipSerial   bool
	Hosts        []string // 网络探测候选地址，为空则跳过网络发现
	ProbeTimeout time.Duration
}

// Discover 汇总串口与网络两类发现结果，串口在前
func Discover(ctx context.Context, opts DiscoverOptions, logger *zap.Logger) ([]DiscoveredDevice, error) {
	var out []DiscoveredDevice
	if !opts.SkipSerial {
		found, err := DiscoverSerial(logger)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	if len(opts.Hosts) > 0 {
		out = append(out, ProbeWS(ctx, opts.Hosts, opts.ProbeTimeout, logger)...)
	}
	return out, nil
}
