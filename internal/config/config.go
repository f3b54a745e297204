package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// DeviceConfig 一台要接入的控制台设备。不配置任何设备时走自动发现。
type DeviceConfig struct {
	Name      string `mapstructure:"name"`
	Transport string `mapstructure:"transport"` // serial | ws
	Address   string `mapstructure:"address"`   // 串口节点或主机地址
	Model     string `mapstructure:"model"`     // 型号名或简称，空取Live
}

// DiscoveryConfig 自动发现参数
type DiscoveryConfig struct {
	Enable       bool          `mapstructure:"enable"`
	Hosts        []string      `mapstructure:"hosts"` // 网络探测候选主机
	ProbeTimeout time.Duration `mapstructure:"probeTimeout"`
}

// ReconnectConfig 断线重连参数
type ReconnectConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Interval time.Duration `mapstructure:"interval"`
}

// DrawConfig 帧缓冲上传限速
type DrawConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

// SerialChannelConfig 串口通道参数
type SerialChannelConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`
	PollTimeout      time.Duration `mapstructure:"pollTimeout"`
}

// WSChannelConfig 网络通道参数
type WSChannelConfig struct {
	ConnectTimeout   time.Duration `mapstructure:"connectTimeout"`
	KeepaliveTimeout time.Duration `mapstructure:"keepaliveTimeout"`
	MaxRetries       int           `mapstructure:"maxRetries"`
	RetryDelay       time.Duration `mapstructure:"retryDelay"`
}

// LayoutConfig 启动布局文件
type LayoutConfig struct {
	Path string `mapstructure:"path"`
}

// PushConfig 事件Webhook推送
type PushConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	URL       string `mapstructure:"url"`
	APIKey    string `mapstructure:"apiKey"`
	Secret    string `mapstructure:"secret"`
	QueueSize int    `mapstructure:"queueSize"`
	Workers   int    `mapstructure:"workers"`
}

// APIAuthConfig 控制接口的访问令牌
type APIAuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// APIConfig 控制接口配置
type APIConfig struct {
	Auth APIAuthConfig `mapstructure:"auth"`
}

// Config 顶层配置结构
type Config struct {
	App       AppConfig           `mapstructure:"app"`
	HTTP      HTTPConfig          `mapstructure:"http"`
	API       APIConfig           `mapstructure:"api"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	Metrics   MetricsConfig       `mapstructure:"metrics"`
	Devices   []DeviceConfig      `mapstructure:"devices"`
	Discovery DiscoveryConfig     `mapstructure:"discovery"`
	Reconnect ReconnectConfig     `mapstructure:"reconnect"`
	Draw      DrawConfig          `mapstructure:"draw"`
	Serial    SerialChannelConfig `mapstructure:"serial"`
	WS        WSChannelConfig     `mapstructure:"ws"`
	Layout    LayoutConfig        `mapstructure:"layout"`
	Push      PushConfig          `mapstructure:"push"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 DECK_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = v.GetString("DECK_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 DECK_，并将点号替换为下划线
	v.SetEnvPrefix("DECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if fmt.Sprintf("%T", err) != fmt.Sprintf("%T", notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "deckd")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/deckd.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("api.auth.enabled", false)

	v.SetDefault("discovery.enable", true)
	v.SetDefault("discovery.probeTimeout", "2s")

	v.SetDefault("reconnect.enable", true)
	v.SetDefault("reconnect.interval", "3s")

	v.SetDefault("draw.rate", 60)
	v.SetDefault("draw.burst", 2)

	v.SetDefault("serial.handshakeTimeout", "1s")
	v.SetDefault("serial.pollTimeout", "500ms")

	v.SetDefault("ws.connectTimeout", "5s")
	v.SetDefault("ws.keepaliveTimeout", "3s")
	v.SetDefault("ws.maxRetries", 3)
	v.SetDefault("ws.retryDelay", "1s")

	v.SetDefault("layout.path", "")

	v.SetDefault("push.enabled", false)
	v.SetDefault("push.queueSize", 256)
	v.SetDefault("push.workers", 2)
}
