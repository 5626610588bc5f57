package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environment 运行环境
type Environment string

const (
	EnvironmentPaper Environment = "paper"
	EnvironmentLive  Environment = "live"
)

// 环境推导的默认端点（未显式覆盖时使用）
const (
	paperTradingBaseURL = "https://paper-api.alpaca.markets"
	liveTradingBaseURL  = "https://api.alpaca.markets"
	paperStreamURL      = "wss://paper-api.alpaca.markets/stream"
	liveStreamURL       = "wss://api.alpaca.markets/stream"
)

// 默认凭证环境变量名
const (
	defaultKeyEnv    = "APCA_API_KEY_ID"
	defaultSecretEnv = "APCA_API_SECRET_KEY"
)

var validFeeds = map[string]bool{"iex": true, "sip": true, "test": true}
var validOrderTypes = map[string]bool{"market": true, "limit": true, "stop": true, "stop_limit": true}
var validTimeInForce = map[string]bool{"day": true, "gtc": true, "ioc": true, "fok": true, "opg": true, "cls": true}
var validRounding = map[string]bool{"down": true, "nearest": true}

// ValidationError 配置错误（启动期致命，绝不重试）
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("配置无效: %s: %s", e.Field, e.Reason)
}

// IsValidationError 检查错误是否为配置错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HTTPConfig HTTP 重试调参
type HTTPConfig struct {
	Timeout     time.Duration // 单次请求超时
	MaxRetries  int           // 最大重试次数（默认 5）
	BackoffBase time.Duration // 指数退避起始间隔（默认 250ms，每次翻倍）
}

// ReconcileConfig 对账调参
type ReconcileConfig struct {
	PollInterval       time.Duration // 轮询间隔（默认 30s）
	FullResyncInterval time.Duration // 全量重同步间隔（默认 300s）
}

// ExecutionConfig 下单执行默认值
type ExecutionConfig struct {
	OrderType    string // 默认订单类型
	TimeInForce  string // 默认有效期
	RoundingMode string // 数量舍入模式
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string // debug / info / warn / error
	OutputFile string // 日志文件路径（可选，为空则只输出到控制台）
	MaxSizeMB  int    // 单个日志文件最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAgeDays int    // 旧日志保留天数
	Compress   bool   // 是否压缩旧日志
}

// Config 应用配置（启动时构建一次，之后不可变）
//
// 不使用包级全局配置：构造后显式传给每个构造函数（依赖注入）。
type Config struct {
	Environment Environment // paper / live
	Feed        string      // 行情订阅层级：iex / sip / test

	// 凭证不直接存在配置里，只存环境变量名，取值时再读
	KeyEnvVar    string
	SecretEnvVar string

	// 端点（为空时按环境推导默认值）
	tradingBaseURL string
	streamURL      string

	HTTP      HTTPConfig
	Reconcile ReconcileConfig
	Execution ExecutionConfig
	Log       LogConfig
}

// configFile 配置文件结构（YAML 解析用，严格模式拒绝未知键）
type configFile struct {
	Environment string `yaml:"environment"`
	Feed        string `yaml:"feed"`
	Credentials struct {
		KeyEnv    string `yaml:"key_env"`
		SecretEnv string `yaml:"secret_env"`
	} `yaml:"credentials"`
	Endpoints struct {
		TradingBaseURL string `yaml:"trading_base_url"`
		StreamURL      string `yaml:"stream_url"`
	} `yaml:"endpoints"`
	HTTP struct {
		TimeoutSeconds     float64 `yaml:"timeout_seconds"`
		MaxRetries         *int    `yaml:"max_retries"`
		BackoffBaseSeconds float64 `yaml:"backoff_base_seconds"`
	} `yaml:"http"`
	Reconcile struct {
		PollIntervalSeconds       float64 `yaml:"poll_interval_seconds"`
		FullResyncIntervalSeconds float64 `yaml:"full_resync_interval_seconds"`
	} `yaml:"reconcile"`
	Execution struct {
		OrderType    string `yaml:"order_type"`
		TimeInForce  string `yaml:"time_in_force"`
		RoundingMode string `yaml:"rounding_mode"`
	} `yaml:"execution"`
	Log struct {
		Level      string `yaml:"level"`
		OutputFile string `yaml:"output_file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
}

// LoadFromFile 从 YAML 文件加载配置
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "打开配置文件失败: %s", path)
	}
	defer f.Close()
	return Load(f)
}

// Load 从 reader 加载配置并校验
// 未知键直接报错（严格模式），尽早发现拼写错误
func Load(r io.Reader) (*Config, error) {
	var raw configFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "解析配置文件失败")
	}

	cfg := &Config{
		Environment:    Environment(strings.ToLower(strings.TrimSpace(raw.Environment))),
		Feed:           strings.ToLower(strings.TrimSpace(raw.Feed)),
		KeyEnvVar:      strings.TrimSpace(raw.Credentials.KeyEnv),
		SecretEnvVar:   strings.TrimSpace(raw.Credentials.SecretEnv),
		tradingBaseURL: strings.TrimRight(strings.TrimSpace(raw.Endpoints.TradingBaseURL), "/"),
		streamURL:      strings.TrimSpace(raw.Endpoints.StreamURL),
		HTTP: HTTPConfig{
			Timeout:     secondsOrDefault(raw.HTTP.TimeoutSeconds, 30*time.Second),
			MaxRetries:  5,
			BackoffBase: secondsOrDefault(raw.HTTP.BackoffBaseSeconds, 250*time.Millisecond),
		},
		Reconcile: ReconcileConfig{
			PollInterval:       secondsOrDefault(raw.Reconcile.PollIntervalSeconds, 30*time.Second),
			FullResyncInterval: secondsOrDefault(raw.Reconcile.FullResyncIntervalSeconds, 300*time.Second),
		},
		Execution: ExecutionConfig{
			OrderType:    defaultString(raw.Execution.OrderType, "market"),
			TimeInForce:  defaultString(raw.Execution.TimeInForce, "day"),
			RoundingMode: defaultString(raw.Execution.RoundingMode, "down"),
		},
		Log: LogConfig{
			Level:      defaultString(raw.Log.Level, "info"),
			OutputFile: raw.Log.OutputFile,
			MaxSizeMB:  raw.Log.MaxSizeMB,
			MaxBackups: raw.Log.MaxBackups,
			MaxAgeDays: raw.Log.MaxAgeDays,
			Compress:   raw.Log.Compress,
		},
	}

	if raw.HTTP.MaxRetries != nil {
		cfg.HTTP.MaxRetries = *raw.HTTP.MaxRetries
	}
	if cfg.Feed == "" {
		cfg.Feed = "iex"
	}
	if cfg.KeyEnvVar == "" {
		cfg.KeyEnvVar = defaultKeyEnv
	}
	if cfg.SecretEnvVar == "" {
		cfg.SecretEnvVar = defaultSecretEnv
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Environment != EnvironmentPaper && c.Environment != EnvironmentLive {
		return &ValidationError{Field: "environment", Reason: fmt.Sprintf("必须是 paper 或 live，得到 %q", c.Environment)}
	}
	if !validFeeds[c.Feed] {
		return &ValidationError{Field: "feed", Reason: fmt.Sprintf("必须是 iex/sip/test 之一，得到 %q", c.Feed)}
	}
	if !validOrderTypes[c.Execution.OrderType] {
		return &ValidationError{Field: "execution.order_type", Reason: fmt.Sprintf("不支持的订单类型 %q", c.Execution.OrderType)}
	}
	if !validTimeInForce[c.Execution.TimeInForce] {
		return &ValidationError{Field: "execution.time_in_force", Reason: fmt.Sprintf("不支持的有效期 %q", c.Execution.TimeInForce)}
	}
	if !validRounding[c.Execution.RoundingMode] {
		return &ValidationError{Field: "execution.rounding_mode", Reason: fmt.Sprintf("不支持的舍入模式 %q", c.Execution.RoundingMode)}
	}
	if c.HTTP.MaxRetries < 0 {
		return &ValidationError{Field: "http.max_retries", Reason: "不能为负数"}
	}
	if c.HTTP.BackoffBase <= 0 {
		return &ValidationError{Field: "http.backoff_base_seconds", Reason: "必须为正数"}
	}
	if c.Reconcile.PollInterval <= 0 {
		return &ValidationError{Field: "reconcile.poll_interval_seconds", Reason: "必须为正数"}
	}
	return nil
}

// APIKey 读取 API key（环境变量未设置时返回配置错误，启动期直接失败）
func (c *Config) APIKey() (string, error) {
	v := strings.TrimSpace(os.Getenv(c.KeyEnvVar))
	if v == "" {
		return "", &ValidationError{Field: c.KeyEnvVar, Reason: "环境变量未设置"}
	}
	return v, nil
}

// APISecret 读取 API secret
func (c *Config) APISecret() (string, error) {
	v := strings.TrimSpace(os.Getenv(c.SecretEnvVar))
	if v == "" {
		return "", &ValidationError{Field: c.SecretEnvVar, Reason: "环境变量未设置"}
	}
	return v, nil
}

// TradingBaseURL 返回交易 REST 基础 URL（未覆盖时按环境推导）
func (c *Config) TradingBaseURL() string {
	if c.tradingBaseURL != "" {
		return c.tradingBaseURL
	}
	if c.Environment == EnvironmentLive {
		return liveTradingBaseURL
	}
	return paperTradingBaseURL
}

// StreamURL 返回交易事件流 WebSocket URL（未覆盖时按环境推导）
func (c *Config) StreamURL() string {
	if c.streamURL != "" {
		return c.streamURL
	}
	if c.Environment == EnvironmentLive {
		return liveStreamURL
	}
	return paperStreamURL
}

func secondsOrDefault(seconds float64, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds * float64(time.Second))
}

func defaultString(v, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return def
	}
	return v
}
