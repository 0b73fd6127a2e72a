package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	JWT           JWTConfig
	Tracing       TracingConfig `mapstructure:"tracing"`
	Redis         RedisConfig
	Log           LogConfig           `mapstructure:"log"`
	Sentry        SentryConfig        `mapstructure:"sentry"`
	CORS          CORSConfig          `mapstructure:"cors"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Anonymization AnonymizationConfig `mapstructure:"anonymization"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string `mapstructure:"driver"` // mysql | postgres | sqlite
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool   `mapstructure:"parse_time"`
	SSLMode   string `mapstructure:"ssl_mode"`
	Path      string `mapstructure:"path"` // sqlite 文件路径
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
	Release     string `mapstructure:"release"`
}

// AnonymizationConfig 匿名令牌派生所用的密钥
type AnonymizationConfig struct {
	Secret string `mapstructure:"secret"`
}

type NotificationConfig struct {
	Timezone          string        `mapstructure:"timezone"`
	ChannelTimeout    time.Duration `mapstructure:"channel_timeout"`
	QuietHoursStart   string        `mapstructure:"quiet_hours_start"`
	QuietHoursEnd     string        `mapstructure:"quiet_hours_end"`
	DevTokenPrefixes  []string      `mapstructure:"dev_token_prefixes"`
	FanoutConcurrency int           `mapstructure:"fanout_concurrency"`
	Email             EmailConfig   `mapstructure:"email"`
	Push              PushConfig    `mapstructure:"push"`
	Outbox            OutboxConfig  `mapstructure:"outbox"`
}

type EmailConfig struct {
	Provider       string `mapstructure:"provider"` // sendgrid | console
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromName       string `mapstructure:"from_name"`
	FromEmail      string `mapstructure:"from_email"`
}

type PushConfig struct {
	Provider  string `mapstructure:"provider"` // fcm | console
	Endpoint  string `mapstructure:"endpoint"`
	ServerKey string `mapstructure:"server_key"`
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type SchedulerConfig struct {
	ActivationSpec      string `mapstructure:"activation_spec"`
	ReminderSpec        string `mapstructure:"reminder_spec"`
	AutoCloseSpec       string `mapstructure:"auto_close_spec"`
	CleanupSpec         string `mapstructure:"cleanup_spec"`
	DeviceRetentionDays int    `mapstructure:"device_retention_days"`
}

// Location 返回通知使用的时区（解析失败时回落到 UTC）
func (c NotificationConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parse_time", true)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)

	v.SetDefault("notification.timezone", "UTC")
	v.SetDefault("notification.channel_timeout", 10*time.Second)
	v.SetDefault("notification.quiet_hours_start", "08:00:00")
	v.SetDefault("notification.quiet_hours_end", "22:00:00")
	v.SetDefault("notification.dev_token_prefixes", []string{"dev:", "test:"})
	v.SetDefault("notification.email.provider", "console")
	v.SetDefault("notification.email.from_name", "Course Evaluation")
	v.SetDefault("notification.push.provider", "console")
	v.SetDefault("notification.push.endpoint", "https://fcm.googleapis.com/fcm/send")
	v.SetDefault("notification.outbox.poll_interval", 5*time.Second)
	v.SetDefault("notification.outbox.batch_size", 20)
	v.SetDefault("notification.outbox.max_attempts", 5)
	v.SetDefault("notification.outbox.retry_backoff", 30*time.Second)

	v.SetDefault("scheduler.activation_spec", "@every 1m")
	v.SetDefault("scheduler.reminder_spec", "@every 1h")
	v.SetDefault("scheduler.auto_close_spec", "@every 10m")
	v.SetDefault("scheduler.cleanup_spec", "0 3 * * *")
	v.SetDefault("scheduler.device_retention_days", 30)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("COURSE_EVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Sentry
	v.BindEnv("sentry.dsn", "SENTRY_DSN")

	// 匿名化 / 通知渠道密钥
	v.BindEnv("anonymization.secret", "ANONYMIZATION_SECRET")
	v.BindEnv("notification.email.sendgrid_api_key", "SENDGRID_API_KEY")
	v.BindEnv("notification.email.from_email", "EMAIL_FROM")
	v.BindEnv("notification.push.server_key", "PUSH_SERVER_KEY")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	// 生产环境校验密钥强度
	if c.Server.Mode == "release" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
		}
		if len(c.Anonymization.Secret) < 32 {
			return fmt.Errorf("anonymization secret is too short (%d chars), must be at least 32 characters in release mode", len(c.Anonymization.Secret))
		}
	}
	if _, err := time.LoadLocation(c.Notification.Timezone); err != nil {
		return fmt.Errorf("notification.timezone: %w", err)
	}
	return nil
}
