package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Log            LogConfig            `mapstructure:"log"`
	AI             AIConfig             `mapstructure:"ai"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Providers      ProvidersConfig      `mapstructure:"providers"`
	RoomClassifier RoomClassifierConfig `mapstructure:"room_classifier"`

	v *viper.Viper
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string `mapstructure:"path"` // sqlite 文件路径
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig AI 调用可靠性配置（进程启动时读取一次）
type AIConfig struct {
	TimeoutMs      int    `mapstructure:"timeout_ms"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryDelayMs   int    `mapstructure:"retry_delay_ms"`
	ModelStrategy  string `mapstructure:"model_strategy"`  // claude-first, openai-first, round-robin
	TokenEstimator string `mapstructure:"token_estimator"` // bytes, tiktoken
	PricingFile    string `mapstructure:"pricing_file"`    // 可选的价格覆盖 YAML
}

// Timeout 单次尝试超时
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RetryDelay 重试基础间隔
func (c AIConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// MetricsConfig 遥测采集配置
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	QueueMax   int    `mapstructure:"queue_max"`
	FlushMs    int    `mapstructure:"flush_ms"`
	BatchSize  int    `mapstructure:"batch_size"`
	Dir        string `mapstructure:"dir"`         // JSONL 日志目录
	LedgerFile string `mapstructure:"ledger_file"` // 同步台账镜像文件，空表示不落盘
}

// FlushInterval 定时刷盘间隔
func (c MetricsConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushMs) * time.Millisecond
}

// ProvidersConfig 视觉模型提供商凭证
type ProvidersConfig struct {
	OpenAI    ProviderConfig `mapstructure:"openai"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
}

// ProviderConfig 单个提供商配置
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// RoomClassifierConfig A/B 实验配置快照
// 路由器运行时通过 Live() 实时读取，这里只用于启动日志
type RoomClassifierConfig struct {
	ABEnabled string `mapstructure:"ab_enabled"`
	ABSplit   string `mapstructure:"ab_split"`
}

// envBindings 领域配置与环境变量名的固定映射（不带 APP_ 前缀）
var envBindings = map[string]string{
	"ai.timeout_ms":                "AI_TIMEOUT_MS",
	"ai.max_retries":               "AI_MAX_RETRIES",
	"ai.retry_delay_ms":            "AI_RETRY_DELAY_MS",
	"ai.model_strategy":            "AI_MODEL_STRATEGY",
	"ai.token_estimator":           "AI_TOKEN_ESTIMATOR",
	"ai.pricing_file":              "AI_PRICING_FILE",
	"metrics.enabled":              "AI_METRICS_ENABLED",
	"metrics.queue_max":            "AI_METRICS_QUEUE_MAX",
	"metrics.flush_ms":             "AI_METRICS_FLUSH_MS",
	"metrics.batch_size":           "AI_METRICS_BATCH_SIZE",
	"metrics.dir":                  "AI_METRICS_DIR",
	"metrics.ledger_file":          "AI_METRICS_LEDGER_FILE",
	"providers.openai.api_key":     "OPENAI_API_KEY",
	"providers.openai.base_url":    "OPENAI_BASE_URL",
	"providers.openai.model":       "OPENAI_MODEL",
	"providers.anthropic.api_key":  "ANTHROPIC_API_KEY",
	"providers.anthropic.base_url": "ANTHROPIC_BASE_URL",
	"providers.anthropic.model":    "ANTHROPIC_MODEL",
	"room_classifier.ab_enabled":   "ROOM_CLASSIFIER_AB_ENABLED",
	"room_classifier.ab_split":     "ROOM_CLASSIFIER_AB_SPLIT",
}

// liveKeys 允许以环境变量名直接实时读取的键
var liveKeys = []string{"ROOM_CLASSIFIER_AB_ENABLED", "ROOM_CLASSIFIER_AB_SPLIT"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/photoai.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("ai.timeout_ms", 30000)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.retry_delay_ms", 1000)
	v.SetDefault("ai.model_strategy", "claude-first")
	v.SetDefault("ai.token_estimator", "bytes")
	v.SetDefault("ai.pricing_file", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.queue_max", 1000)
	v.SetDefault("metrics.flush_ms", 2000)
	v.SetDefault("metrics.batch_size", 50)
	v.SetDefault("metrics.dir", "./metrics")
	v.SetDefault("metrics.ledger_file", "")

	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.anthropic.model", "claude-3-5-haiku-latest")
}

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选，未找到默认文件时只使用默认值与环境变量）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP") // 环境变量前缀：APP_
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	for key, envName := range envBindings {
		if err := v.BindEnv(key, envName); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", envName, err)
		}
	}
	for _, envName := range liveKeys {
		if err := v.BindEnv(envName, envName); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", envName, err)
		}
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.normalize()
	cfg.v = v
	return &cfg, nil
}

// normalize 修正明显非法的数值，保证下游组件拿到可用配置
func (c *Config) normalize() {
	if c.AI.TimeoutMs <= 0 {
		c.AI.TimeoutMs = 30000
	}
	if c.AI.MaxRetries < 0 {
		c.AI.MaxRetries = 0
	}
	if c.AI.RetryDelayMs < 0 {
		c.AI.RetryDelayMs = 0
	}
	switch c.AI.ModelStrategy {
	case "claude-first", "openai-first", "round-robin":
	default:
		c.AI.ModelStrategy = "claude-first"
	}
	if c.Metrics.QueueMax <= 0 {
		c.Metrics.QueueMax = 1000
	}
	if c.Metrics.FlushMs <= 0 {
		c.Metrics.FlushMs = 2000
	}
	if c.Metrics.BatchSize <= 0 {
		c.Metrics.BatchSize = 50
	}
}

// Live 返回底层 viper 实例，用于每次调用时实时读取的配置（如 A/B 开关）
// 以环境变量名作为键，例如 GetString("ROOM_CLASSIFIER_AB_SPLIT")
func (c *Config) Live() *viper.Viper {
	return c.v
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
