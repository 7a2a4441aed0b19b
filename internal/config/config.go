// Package config loads service configuration from config.yml, with
// NOTIFY_* environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" envconfig:"RATE_LIMIT"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	URL          string `mapstructure:"url"`
	MaxRetries   int    `mapstructure:"max_retries" envconfig:"MAX_RETRIES"`
	PoolSize     int    `mapstructure:"pool_size" envconfig:"POOL_SIZE"`
	MinIdleConns int    `mapstructure:"min_idle_conns" envconfig:"MIN_IDLE_CONNS"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours" envconfig:"EXPIRY_HOURS"`
}

func (c JWTConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type MonitoringConfig struct {
	LogLevel string `mapstructure:"log_level" envconfig:"LOG_LEVEL"`
}

// NotifierConfig tunes the dispatch pipeline itself.
type NotifierConfig struct {
	MasterKey        string        `mapstructure:"master_key" envconfig:"MASTER_KEY"`
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts" envconfig:"RETRY_MAX_ATTEMPTS"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay" envconfig:"RETRY_BASE_DELAY"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout" envconfig:"HTTP_TIMEOUT"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl" envconfig:"CACHE_TTL"`
	EventsChannel    string        `mapstructure:"events_channel" envconfig:"EVENTS_CHANNEL"`
	WorkerHealthPort int           `mapstructure:"worker_health_port" envconfig:"WORKER_HEALTH_PORT"`
}

// WeakMasterKey reports whether the master key is shorter than 16 bytes.
func (c NotifierConfig) WeakMasterKey() bool {
	return c.MasterKey != "" && len(c.MasterKey) < 16
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	if err := viper.ReadInConfig(); err != nil {
		// Env-only deployments run without a config file.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("notify", &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.TimeoutSeconds == 0 {
		c.Server.TimeoutSeconds = 30
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Redis.MaxRetries == 0 {
		c.Redis.MaxRetries = 3
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.JWT.ExpiryHours == 0 {
		c.JWT.ExpiryHours = 24
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 50
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 100
	}
	if c.Monitoring.LogLevel == "" {
		c.Monitoring.LogLevel = "info"
	}
	if c.Notifier.RetryMaxAttempts == 0 {
		c.Notifier.RetryMaxAttempts = 4
	}
	if c.Notifier.RetryBaseDelay == 0 {
		c.Notifier.RetryBaseDelay = 2 * time.Second
	}
	if c.Notifier.HTTPTimeout == 0 {
		c.Notifier.HTTPTimeout = 15 * time.Second
	}
	if c.Notifier.CacheTTL == 0 {
		c.Notifier.CacheTTL = time.Minute
	}
	if c.Notifier.EventsChannel == "" {
		c.Notifier.EventsChannel = "platform.events"
	}
	if c.Notifier.WorkerHealthPort == 0 {
		c.Notifier.WorkerHealthPort = 8081
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "" {
			return fmt.Errorf("database host, name and user are required with the postgres driver")
		}
		if c.Notifier.MasterKey == "" {
			return fmt.Errorf("notifier master_key is required with the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Notifier.RetryMaxAttempts < 1 {
		return fmt.Errorf("notifier retry_max_attempts must be at least 1")
	}
	return nil
}
