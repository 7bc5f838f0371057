package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Source    SourceConfig    `mapstructure:"source"`
	Composer  ComposerConfig  `mapstructure:"composer"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	// Path is the database file when Driver is sqlite
	Path string `mapstructure:"path"`
}

// SourceConfig holds the helpdesk API configuration
type SourceConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	APIVersion string        `mapstructure:"api_version"`
	Timeout    time.Duration `mapstructure:"timeout"`
	PageSize   int           `mapstructure:"page_size"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	RateBurst  int           `mapstructure:"rate_burst"`
}

// ComposerConfig holds the language-model API configuration
type ComposerConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	HistoryLimit int           `mapstructure:"history_limit"`
	SignOff      string        `mapstructure:"sign_off"`
}

// PollerConfig holds polling engine tuning
type PollerConfig struct {
	Workers        int           `mapstructure:"workers"`
	ItemTimeout    time.Duration `mapstructure:"item_timeout"`
	ClosedStatuses []string      `mapstructure:"closed_statuses"`
	SendClaimTTL   time.Duration `mapstructure:"send_claim_ttl"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	PollCron string `mapstructure:"poll_cron"`
	SendCron string `mapstructure:"send_cron"`
}

// AuthConfig holds approval API authentication
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Environment string `mapstructure:"environment"`
}

// LoadConfig loads configuration from .env, config file and environment variables
func LoadConfig() (*Config, error) {
	// A missing .env is fine; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "autoreply.db")

	v.SetDefault("source.api_version", "2024-03-05")
	v.SetDefault("source.timeout", "20s")
	v.SetDefault("source.page_size", 100)
	v.SetDefault("source.rate_limit", 5.0)
	v.SetDefault("source.rate_burst", 5)

	v.SetDefault("composer.base_url", "https://api.anthropic.com")
	v.SetDefault("composer.model", "claude-sonnet-4-20250514")
	v.SetDefault("composer.max_tokens", 1024)
	v.SetDefault("composer.timeout", "60s")
	v.SetDefault("composer.max_retries", 2)
	v.SetDefault("composer.history_limit", 10)

	v.SetDefault("poller.workers", 4)
	v.SetDefault("poller.item_timeout", "2m")
	v.SetDefault("poller.closed_statuses", []string{"closed", "resolved", "completed", "canceled", "cancelled"})
	v.SetDefault("poller.send_claim_ttl", "5m")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.poll_cron", "0 0 * * * *")
	v.SetDefault("scheduler.send_cron", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.environment", "production")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT", "PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.path", "DB_PATH")

	// Helpdesk
	v.BindEnv("source.base_url", "SPP_BASE_URL")
	v.BindEnv("source.api_key", "SPP_API_KEY")
	v.BindEnv("source.api_version", "SPP_API_VERSION")
	v.BindEnv("source.timeout", "SPP_TIMEOUT")
	v.BindEnv("source.page_size", "SPP_PAGE_SIZE")
	v.BindEnv("source.rate_limit", "SPP_RATE_LIMIT")

	// Composer
	v.BindEnv("composer.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("composer.base_url", "ANTHROPIC_BASE_URL")
	v.BindEnv("composer.model", "COMPOSER_MODEL")
	v.BindEnv("composer.max_tokens", "COMPOSER_MAX_TOKENS")
	v.BindEnv("composer.timeout", "COMPOSER_TIMEOUT")
	v.BindEnv("composer.sign_off", "COMPOSER_SIGN_OFF")

	// Poller
	v.BindEnv("poller.workers", "POLLER_WORKERS")
	v.BindEnv("poller.item_timeout", "POLLER_ITEM_TIMEOUT")

	// Scheduler
	v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	v.BindEnv("scheduler.poll_cron", "SCHEDULER_POLL_CRON")
	v.BindEnv("scheduler.send_cron", "SCHEDULER_SEND_CRON")

	v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")

	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.environment", "ENVIRONMENT")
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	case "sqlite":
		return c.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch strings.ToLower(c.Database.Driver) {
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Source.BaseURL == "" || c.Source.APIKey == "" {
		return fmt.Errorf("helpdesk base URL and API key are required")
	}

	if c.Composer.APIKey == "" {
		return fmt.Errorf("composer API key is required")
	}

	if c.Poller.Workers <= 0 {
		return fmt.Errorf("poller workers must be greater than 0")
	}

	if c.Scheduler.Enabled && c.Scheduler.PollCron == "" {
		return fmt.Errorf("scheduler poll cron is required when the scheduler is enabled")
	}

	return nil
}
