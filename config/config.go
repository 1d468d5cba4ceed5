package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// DefaultAllowOrigins is the booking site served by the React dev server.
var DefaultAllowOrigins = []string{"http://localhost:3000"}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
}

// APIConfig points every controller at one booking API origin.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type BookingConfig struct {
	DefaultService string        `mapstructure:"default_service"`
	SuccessDismiss time.Duration `mapstructure:"success_dismiss"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	MetricsPath       string `mapstructure:"metrics_path"`
	Namespace         string `mapstructure:"namespace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// EventsConfig selects the audit event broker. Driver is one of none, redis
// or kafka.
type EventsConfig struct {
	Driver string      `mapstructure:"driver"`
	Topic  string      `mapstructure:"topic"`
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	GroupID      string        `mapstructure:"group_id"`
}

// VisitorConfig controls how long an idle booking form is kept.
type VisitorConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	API        APIConfig        `mapstructure:"api"`
	Booking    BookingConfig    `mapstructure:"booking"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Log        LogConfig        `mapstructure:"log"`
	Events     EventsConfig     `mapstructure:"events"`
	Visitors   VisitorConfig    `mapstructure:"visitors"`
}

// envOverrides are read from BOOKING_* environment variables after the file.
type envOverrides struct {
	APIURL         string        `envconfig:"API_URL"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT"`
	Port           int           `envconfig:"PORT"`
	LogLevel       string        `envconfig:"LOG_LEVEL"`
	EventsDriver   string        `envconfig:"EVENTS_DRIVER"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	KafkaBrokers   []string      `envconfig:"KAFKA_BROKERS"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.allow_origins", append([]string(nil), DefaultAllowOrigins...))
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("api.request_timeout", 10*time.Second)

	v.SetDefault("booking.default_service", "Basic Manicure")
	v.SetDefault("booking.success_dismiss", 3*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.namespace", "salon")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("events.driver", "none")
	v.SetDefault("events.topic", "salon.booking.events")
	v.SetDefault("events.redis.url", "redis://localhost:6379/0")
	v.SetDefault("events.redis.max_retries", 3)
	v.SetDefault("events.redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("events.redis.pool_size", 10)
	v.SetDefault("events.redis.min_idle_conns", 1)
	v.SetDefault("events.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("events.kafka.batch_timeout", 50*time.Millisecond)
	v.SetDefault("events.kafka.group_id", "salon-audit-worker")

	v.SetDefault("visitors.ttl", 30*time.Minute)
	v.SetDefault("visitors.cleanup_interval", 10*time.Minute)
}

// LoadConfig reads config.yaml from path, or from . and ./config when path is
// empty. A missing file is not an error; defaults and BOOKING_* variables
// still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("BOOKING", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.applyEnv(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(env envOverrides) {
	if env.APIURL != "" {
		c.API.BaseURL = env.APIURL
	}
	if env.RequestTimeout > 0 {
		c.API.RequestTimeout = env.RequestTimeout
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.EventsDriver != "" {
		c.Events.Driver = env.EventsDriver
	}
	if env.RedisURL != "" {
		c.Events.Redis.URL = env.RedisURL
	}
	if len(env.KafkaBrokers) > 0 {
		c.Events.Kafka.Brokers = env.KafkaBrokers
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.RequestTimeout <= 0 {
		return errors.New("api.request_timeout must be positive")
	}
	if c.Booking.SuccessDismiss <= 0 {
		return errors.New("booking.success_dismiss must be positive")
	}
	switch c.Events.Driver {
	case "", "none", "redis", "kafka":
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}
	return nil
}
