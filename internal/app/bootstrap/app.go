package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/deck-driver/internal/api"
	"github.com/taoyao-code/deck-driver/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/deck-driver/internal/config"
	"github.com/taoyao-code/deck-driver/internal/device"
	"github.com/taoyao-code/deck-driver/internal/health"
	"github.com/taoyao-code/deck-driver/internal/httpserver"
	"github.com/taoyao-code/deck-driver/internal/layout"
	"github.com/taoyao-code/deck-driver/internal/metrics"
	"github.com/taoyao-code/deck-driver/internal/push"
	"github.com/taoyao-code/deck-driver/internal/registry"
	"github.com/taoyao-code/deck-driver/internal/transport"
)

// 单台设备的连接预算：串口握手加网络重试的最坏情况
const connectTimeout = 30 * time.Second

// Run 统一启动流程
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting deck driver", zap.String("env", cfg.App.Env))

	// ========== 阶段1: 初始化基础组件 ==========
	promReg := metrics.NewRegistry()
	dm := metrics.NewDriverMetrics(promReg)
	var metricsHandler http.Handler
	if cfg.Metrics.Enable {
		metricsHandler = metrics.Handler(promReg)
	}
	devices := registry.New()
	log.Info("basic components initialized")

	// ========== 阶段2: 读取启动版面（内容非法直接返回）==========
	lay, err := layout.Load(cfg.Layout.Path)
	if err != nil {
		log.Error("layout load failed", zap.String("path", cfg.Layout.Path), zap.Error(err))
		return err
	}

	// ========== 阶段3: 组装设备（显式配置优先，否则自动发现）==========
	devCfg := deviceConfig(cfg)
	if len(cfg.Devices) > 0 {
		for i, dc := range cfg.Devices {
			d, err := buildDevice(dc, devCfg, log, dm)
			if err != nil {
				log.Error("device config invalid", zap.String("name", dc.Name), zap.Error(err))
				return err
			}
			name := dc.Name
			if name == "" {
				name = fmt.Sprintf("deck%d", i)
			}
			if err := devices.Bind(name, d); err != nil {
				return err
			}
			log.Info("device configured",
				zap.String("name", name),
				zap.String("model", d.Descriptor().Type),
				zap.String("transport", dc.Transport),
				zap.String("address", dc.Address))
		}
	} else if cfg.Discovery.Enable {
		found, err := transport.Discover(context.Background(), transport.DiscoverOptions{
			Hosts:        cfg.Discovery.Hosts,
			ProbeTimeout: cfg.Discovery.ProbeTimeout,
		}, log)
		if err != nil {
			log.Error("device discovery failed", zap.Error(err))
			return err
		}
		for i, rec := range found {
			d, err := device.FromDiscovery(rec, devCfg, log, dm)
			if err != nil {
				log.Warn("skipping discovered device", zap.String("address", rec.Address), zap.Error(err))
				continue
			}
			name := fmt.Sprintf("deck%d", i)
			if err := devices.Bind(name, d); err != nil {
				return err
			}
			log.Info("device discovered",
				zap.String("name", name),
				zap.String("model", d.Descriptor().Type),
				zap.String("address", rec.Address))
		}
	}
	if len(devices.Names()) == 0 {
		log.Warn("no devices configured or discovered, api will serve an empty registry")
	}

	// ========== 阶段4: 连接设备并下发版面（失败不阻断启动，交由重连恢复）==========
	var wg sync.WaitGroup
	for _, e := range devices.Entries() {
		name, d := e.Name, e.Device
		d.On(device.EventReconnected, func(any) {
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			if err := lay.Apply(ctx, d, log); err != nil {
				log.Warn("layout reapply failed", zap.String("device", name), zap.Error(err))
			}
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			if err := d.Connect(ctx); err != nil {
				log.Warn("device connect failed", zap.String("device", name), zap.Error(err))
				return
			}
			log.Info("device connected", zap.String("device", name), zap.String("address", d.Address()))
			if err := lay.Apply(ctx, d, log); err != nil {
				log.Warn("layout apply failed", zap.String("device", name), zap.Error(err))
			}
		}()
	}
	wg.Wait()
	log.Info("device bring-up complete",
		zap.Int("total", len(devices.Names())),
		zap.Int("ready", devices.ReadyCount()))

	// ========== 阶段5: 事件Webhook推送（如果启用）==========
	pushCtx, pushCancel := context.WithCancel(context.Background())
	defer pushCancel()
	var pushQueue *push.Queue
	if cfg.Push.Enabled && cfg.Push.URL != "" {
		pm := push.NewMetrics(promReg)
		pusher := push.NewPusher(nil, cfg.Push.APIKey, cfg.Push.Secret)
		pushQueue = push.NewQueue(pusher, cfg.Push.URL, cfg.Push.QueueSize, cfg.Push.Workers, log, pm)
		pushQueue.Start(pushCtx)

		bridge := push.NewBridge(pushQueue, log)
		for _, e := range devices.Entries() {
			bridge.Attach(e.Name, e.Device)
		}
		log.Info("event push enabled", zap.String("url", cfg.Push.URL))
	}

	// ========== 阶段6: 健康检查与HTTP服务 ==========
	healthAgg := health.NewAggregator()
	for _, e := range devices.Entries() {
		healthAgg.AddChecker(health.NewDeviceChecker(e.Name, e.Device))
	}

	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler)
	httpSrv.Register(func(r *gin.Engine) {
		authCfg := middleware.AuthConfig{
			Enabled: cfg.API.Auth.Enabled,
			APIKeys: cfg.API.Auth.APIKeys,
		}
		api.RegisterDeviceRoutes(r, devices, authCfg, log)
		health.RegisterHTTPRoutes(r, healthAgg)
	})

	go func() {
		if err := httpSrv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))
	log.Info("all services ready")

	// ========== 阶段7: 等待关闭信号 ==========
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("received shutdown signal, gracefully shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctx)
	log.Info("http server stopped")

	devices.CloseAll()
	log.Info("devices closed")

	if pushQueue != nil {
		pushCancel()
		pushQueue.Wait()
		log.Info("push workers stopped")
	}

	log.Info("shutdown complete")
	return nil
}

// deviceConfig 把文件配置折算成设备引擎参数
func deviceConfig(cfg *cfgpkg.Config) device.Config {
	return device.Config{
		Reconnect:         cfg.Reconnect.Enable,
		ReconnectInterval: cfg.Reconnect.Interval,
		DrawRate:          cfg.Draw.Rate,
		DrawBurst:         cfg.Draw.Burst,
		Serial: transport.SerialConfig{
			HandshakeTimeout: cfg.Serial.HandshakeTimeout,
			PollTimeout:      cfg.Serial.PollTimeout,
		},
		WS: transport.WSConfig{
			ConnectTimeout:   cfg.WS.ConnectTimeout,
			KeepaliveTimeout: cfg.WS.KeepaliveTimeout,
			MaxRetries:       cfg.WS.MaxRetries,
			RetryDelay:       cfg.WS.RetryDelay,
		},
	}
}

// buildDevice 按显式配置构建设备引擎
func buildDevice(dc cfgpkg.DeviceConfig, devCfg device.Config, log *zap.Logger, dm *metrics.DriverMetrics) (*device.Device, error) {
	desc := device.LoupedeckLive
	if dc.Model != "" {
		m, ok := device.ModelByName(dc.Model)
		if !ok {
			return nil, fmt.Errorf("unknown device model %q", dc.Model)
		}
		desc = m
	}
	if dc.Address == "" {
		return nil, fmt.Errorf("device %q missing address", dc.Name)
	}
	switch strings.ToLower(dc.Transport) {
	case "serial":
		return device.NewSerialDevice(desc, dc.Address, devCfg, log, dm), nil
	case "ws":
		return device.NewWSDevice(desc, dc.Address, devCfg, log, dm), nil
	default:
		return nil, fmt.Errorf("device %q: unknown transport %q", dc.Name, dc.Transport)
	}
}
