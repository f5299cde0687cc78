package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the hookbridge services.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	DLQ      DLQConfig      `mapstructure:"dlq"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration for the dispatcher and the
// worker's metrics endpoint.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	SSLMode        string `mapstructure:"sslmode"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// ConnString builds the pgx connection string.
func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig holds queue engine configuration.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	PoolSize int    `mapstructure:"pool_size"`
}

// WebhookConfig holds the provider handshake settings.
type WebhookConfig struct {
	VerifyToken string `mapstructure:"verify_token"`
}

// WorkerConfig tunes the queue consumer loops.
type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	PopTimeout  time.Duration `mapstructure:"pop_timeout"`
	IdleWait    time.Duration `mapstructure:"idle_wait"`
}

// DeliveryConfig tunes outbound destination calls.
type DeliveryConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`

	// RawForwardMarker selects the signature-verifying transport class:
	// destinations whose URL contains it receive the raw body and the
	// original signature header instead of re-serialized JSON.
	RawForwardMarker string `mapstructure:"raw_forward_marker"`
}

// ThrottleConfig holds plan ceilings and staff exemptions.
type ThrottleConfig struct {
	// PlanCeilings maps subscription plan IDs to their billable-message
	// ceilings. Plans not listed are unrestricted.
	PlanCeilings map[string]int `mapstructure:"plan_ceilings"`

	// ExemptUserIDs are staff users treated as unrestricted regardless of
	// their stored plan.
	ExemptUserIDs []string `mapstructure:"exempt_user_ids"`
}

// DLQConfig holds the optional dead letter sink settings.
type DLQConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	NatsURL string `mapstructure:"nats_url"`
	Stream  string `mapstructure:"stream"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.metrics_port", 3001)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "hookbridge")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "hookbridge")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.migrations_path", "migrations")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("webhook.verify_token", "")

	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.pop_timeout", "5s")
	v.SetDefault("worker.idle_wait", "1s")

	v.SetDefault("delivery.timeout", "10s")
	v.SetDefault("delivery.raw_forward_marker", "wp-json")

	v.SetDefault("throttle.plan_ceilings", map[string]int{"bronze": 250})
	v.SetDefault("throttle.exempt_user_ids", []string{})

	v.SetDefault("dlq.enabled", false)
	v.SetDefault("dlq.nats_url", "nats://localhost:4222")
	v.SetDefault("dlq.stream", "HOOKBRIDGE_DLQ")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("HOOKBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
