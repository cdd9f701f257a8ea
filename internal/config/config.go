package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/irfndi/oracle-alpha-go/internal/correlation"
	"github.com/irfndi/oracle-alpha-go/internal/ledger"
	"github.com/irfndi/oracle-alpha-go/internal/reliability"
)

type Config struct {
	Environment string             `mapstructure:"environment"`
	LogLevel    string             `mapstructure:"log_level"`
	Server      ServerConfig       `mapstructure:"server"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Redis       RedisConfig        `mapstructure:"redis"`
	PriceFeed   PriceFeedConfig    `mapstructure:"price_feed"`
	Refresh     RefreshConfig      `mapstructure:"refresh"`
	Kafka       KafkaConfig        `mapstructure:"kafka"`
	Telegram    TelegramConfig     `mapstructure:"telegram"`
	Telemetry   TelemetryConfig    `mapstructure:"telemetry"`
	Security    SecurityConfig     `mapstructure:"security"`
	Scoring     ScoringConfig      `mapstructure:"scoring"`
	Correlation correlation.Config `mapstructure:"correlation"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// AdminAPIKey guards the write routes. AdminAPIKeyHash takes precedence
	// when both are set.
	AdminAPIKey     string `mapstructure:"admin_api_key" json:"-" yaml:"-"`
	AdminAPIKeyHash string `mapstructure:"admin_api_key_hash" json:"-" yaml:"-"`
}

type DatabaseConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"dbname"`
	SSLMode          string        `mapstructure:"sslmode"`
	DatabaseURL      string        `mapstructure:"database_url"`
	MaxConns         int           `mapstructure:"max_conns"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	QuoteTTL time.Duration `mapstructure:"quote_ttl"`
}

type PriceFeedConfig struct {
	ServiceURL      string        `mapstructure:"service_url"`
	Timeout         int           `mapstructure:"timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// GetServiceURL returns the price service base URL.
func (c PriceFeedConfig) GetServiceURL() string {
	return c.ServiceURL
}

// GetTimeout returns the request timeout in seconds.
func (c PriceFeedConfig) GetTimeout() int {
	return c.Timeout
}

type RefreshConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	MinUpdateAge  time.Duration `mapstructure:"min_update_age"`
	FetchInterval time.Duration `mapstructure:"fetch_interval"`
	Burst         int           `mapstructure:"burst"`
	QueueSize     int           `mapstructure:"queue_size"`
}

type KafkaConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Brokers    []string      `mapstructure:"brokers"`
	Topic      string        `mapstructure:"topic"`
	GroupID    string        `mapstructure:"group_id"`
	MaxRetries int           `mapstructure:"max_retries"`
	BackoffMin time.Duration `mapstructure:"backoff_min"`
	BackoffMax time.Duration `mapstructure:"backoff_max"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Exporter       string `mapstructure:"exporter"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	LogsEnabled    bool   `mapstructure:"logs_enabled"`
}

type SecurityConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry  string `mapstructure:"jwt_expiry"`
	BcryptCost int    `mapstructure:"bcrypt_cost"`
}

// ScoringConfig groups the call status thresholds and the reliability
// policy.
type ScoringConfig struct {
	Retention   time.Duration       `mapstructure:"retention"`
	Status      ledger.StatusPolicy `mapstructure:"status"`
	Reliability reliability.Policy  `mapstructure:"reliability"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	if err := v.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := v.BindEnv("server.admin_api_key", "ADMIN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY environment variable: %w", err)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Policy structs start from their defaults so a config file only needs
	// the thresholds it overrides.
	config := Config{
		Scoring: ScoringConfig{
			Status:      ledger.DefaultStatusPolicy(),
			Reliability: reliability.DefaultPolicy(),
		},
		Correlation: correlation.DefaultConfig(),
	}
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the settings that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c.Environment != "development" && c.Server.AdminAPIKey == "" && c.Server.AdminAPIKeyHash == "" && c.Security.JWTSecret == "" {
		return errors.New("ADMIN_API_KEY or JWT_SECRET is required in non-development environments")
	}

	if c.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(c.Security.JWTExpiry); err != nil {
			return fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}

	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Security.BcryptCost)
	}

	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", c.Refresh.Interval)
	}
	if c.Refresh.FetchInterval < 0 || c.Refresh.MinUpdateAge < 0 {
		return errors.New("refresh fetch interval and min update age must not be negative")
	}
	if c.Refresh.QueueSize <= 0 {
		return fmt.Errorf("refresh queue size must be positive, got %d", c.Refresh.QueueSize)
	}

	status := c.Scoring.Status
	if status.LossROI >= 0 || status.WinROI <= 0 {
		return fmt.Errorf("scoring: win threshold must be positive and loss threshold negative, got %.2f/%.2f",
			status.WinROI, status.LossROI)
	}
	if status.EvaluationAge <= 0 || status.ExpiryAge <= status.EvaluationAge {
		return errors.New("scoring: expiry age must exceed the evaluation age")
	}

	policy := c.Scoring.Reliability
	if policy.MinWeight <= 0 || policy.MaxWeight < policy.MinWeight {
		return fmt.Errorf("scoring: invalid weight range [%.2f, %.2f]", policy.MinWeight, policy.MaxWeight)
	}
	if policy.TrendWindow <= 0 || policy.ROIDivisor <= 0 || policy.NegativeROIDivisor <= 0 {
		return errors.New("scoring: trend window and ROI divisors must be positive")
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka: brokers and topic are required when enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.admin_api_key", "")
	v.SetDefault("server.admin_api_key_hash", "")

	// Database
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "oracle_alpha")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.snapshot_interval", "5m")

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.quote_ttl", "20s")

	// Price feed
	v.SetDefault("price_feed.service_url", "http://localhost:3001")
	v.SetDefault("price_feed.timeout", 10)
	v.SetDefault("price_feed.breaker_failures", 5)
	v.SetDefault("price_feed.breaker_timeout", "60s")

	// Refresh
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.interval", "1m")
	v.SetDefault("refresh.min_update_age", "30s")
	v.SetDefault("refresh.fetch_interval", "200ms")
	v.SetDefault("refresh.burst", 1)
	v.SetDefault("refresh.queue_size", 1000)

	// Kafka
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "oracle.signals")
	v.SetDefault("kafka.group_id", "oracle-alpha")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.backoff_min", "50ms")
	v.SetDefault("kafka.backoff_max", "2s")

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "oracle-alpha-go")
	v.SetDefault("telemetry.service_version", "1.0.0")
	v.SetDefault("telemetry.logs_enabled", false)

	// Security
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_expiry", "24h")
	v.SetDefault("security.bcrypt_cost", bcrypt.DefaultCost)

	// Scoring
	v.SetDefault("scoring.retention", "24h")
}
