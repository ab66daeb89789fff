package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 主配置结构
type Config struct {
	App       App       `yaml:"app"`
	Server    Server    `yaml:"server"`
	Database  DB        `yaml:"database"`
	Cache     Cache     `yaml:"cache"`
	Auth      Auth      `yaml:"auth"`
	RateLimit Limit     `yaml:"rate_limit"`
	Log       Log       `yaml:"log"`
	ShortCode ShortCode `yaml:"shortcode"`
	Expiry    Expiry    `yaml:"expiry"`
	Usage     Usage     `yaml:"usage"`
	Metrics   Metrics   `yaml:"metrics"`
}

// 应用配置
type App struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode" env:"APP_MODE"`
	Version string `yaml:"version"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"` // 短链接前缀, 例如 http://localhost:8080/
}

// 服务器配置
type Server struct {
	Port            int `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     int `yaml:"read_timeout"`
	WriteTimeout    int `yaml:"write_timeout"`
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// 数据库配置
type DB struct {
	Driver   string `yaml:"driver" env:"DB_DRIVER"` // mysql | postgres | sqlite
	DSN      string `yaml:"dsn" env:"DB_DSN"`       // 非空时优先使用
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Name     string `yaml:"name" env:"DB_NAME"`
	Charset  string `yaml:"charset"`
	LogLevel string `yaml:"log_level"`
}

// 缓存配置（Redis）
type Cache struct {
	Host     string        `yaml:"host" env:"REDIS_HOST"`
	Port     int           `yaml:"port" env:"REDIS_PORT"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	Prefix   string        `yaml:"prefix"` // 为空时使用 shortlink:
	TTL      time.Duration `yaml:"ttl"`    // 为空时 24h
}

// 认证配置
type Auth struct {
	Secret          string `yaml:"secret" env:"AUTH_SECRET"`
	Issuer          string `yaml:"issuer"`
	ExpirationHours int    `yaml:"expiration_hours"`
}

// 限流配置
type Limit struct {
	Enabled   bool     `yaml:"enabled"`
	Requests  int64    `yaml:"requests_per_minute"`
	Burst     int64    `yaml:"burst"`
	SkipPaths []string `yaml:"skip_paths"`
}

// 日志配置
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// 短码生成配置
type ShortCode struct {
	Length      int `yaml:"length"`
	MaxAttempts int `yaml:"max_attempts"`
}

// 过期策略配置
type Expiry struct {
	// Window 访问后顺延的时长, 0 表示新建链接默认不过期
	Window        time.Duration `yaml:"window" env:"EXPIRY_WINDOW"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	WarmCache     bool          `yaml:"warm_cache"`
}

// 访问记录队列配置
type Usage struct {
	Backend   string `yaml:"backend" env:"USAGE_BACKEND"` // memory | amqp
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
	AMQPURL   string `yaml:"amqp_url" env:"AMQP_URL"`
	Queue     string `yaml:"queue"`
}

// 监控配置
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

const envPrefix = "FASTLINK_"

// 加载配置: YAML 文件 -> .env -> FASTLINK_* 环境变量覆盖 -> 默认值
// 环境变量格式错误时返回错误, 不会静默回退到文件中的值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// .env 不存在时忽略, 直接读取进程环境变量
	_ = godotenv.Load()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("环境变量解析失败: %w", err)
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults 为未配置的字段填充默认值
func (c *Config) SetDefaults() {
	if c.App.Name == "" {
		c.App.Name = "fastlink"
	}
	if c.App.BaseURL == "" {
		c.App.BaseURL = "http://localhost:8080/"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "fastlink"
	}
	if c.Auth.ExpirationHours == 0 {
		c.Auth.ExpirationHours = 24
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" {
		c.Log.File = "./logs/app.log"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAge == 0 {
		c.Log.MaxAge = 30
	}
	if c.ShortCode.Length == 0 {
		c.ShortCode.Length = 5
	}
	if c.ShortCode.MaxAttempts == 0 {
		c.ShortCode.MaxAttempts = 5
	}
	if c.Expiry.SweepInterval == 0 {
		c.Expiry.SweepInterval = time.Minute
	}
	if c.Usage.Backend == "" {
		c.Usage.Backend = "memory"
	}
	if c.Usage.Workers == 0 {
		c.Usage.Workers = 4
	}
	if c.Usage.QueueSize == 0 {
		c.Usage.QueueSize = 1024
	}
	if c.Usage.Queue == "" {
		c.Usage.Queue = "fastlink.usage"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate 校验配置的合法性
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.Usage.Backend {
	case "memory":
	case "amqp":
		if c.Usage.AMQPURL == "" {
			return errors.New("usage.backend 为 amqp 时必须配置 usage.amqp_url")
		}
	default:
		return fmt.Errorf("不支持的访问记录队列: %q", c.Usage.Backend)
	}
	if c.ShortCode.Length <= 0 || c.ShortCode.Length > 32 {
		return fmt.Errorf("短码长度非法: %d", c.ShortCode.Length)
	}
	if c.ShortCode.MaxAttempts <= 0 {
		return fmt.Errorf("短码重试次数非法: %d", c.ShortCode.MaxAttempts)
	}
	if c.Expiry.Window < 0 {
		return errors.New("expiry.window 不能为负数")
	}
	if c.Expiry.SweepInterval <= 0 {
		return errors.New("expiry.sweep_interval 必须大于 0")
	}
	if c.Usage.Workers <= 0 || c.Usage.QueueSize <= 0 {
		return errors.New("usage.workers 与 usage.queue_size 必须大于 0")
	}
	return nil
}
